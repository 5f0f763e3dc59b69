package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"tgstat-bot/db"
	"tgstat-bot/messages"

	"github.com/getsentry/sentry-go"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"
)

// Store is the part of the database the bot works with
type Store interface {
	EnsureUser(telegramID int64, name, username string) error
	RemainingRequests(userID int64, maxPerDay int) (int, error)
	IncreaseCounter(userID int64) error
	CreateSearchRequest(userID, chatID int64, messageID int, query string) (*db.SearchRequest, error)
}

// API is the subset of *tgbotapi.BotAPI the bot uses
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Options configures the bot front end
type Options struct {
	ChannelID         int64
	ChannelURL        string
	MaxRequestsPerDay int
	MaxQueryLength    int
	OwnerIDs          []int64

	// Paces incoming updates; unlimited when nil
	Limiter ratelimit.Limiter
}

type chatState int

const (
	stateDefault chatState = iota
	stateCheckSubscription
)

// Bot handles Telegram updates: onboarding, the channel subscription gate,
// the daily quota and queueing of searches
type Bot struct {
	api     API
	store   Store
	opts    Options
	owners  map[int64]bool
	limiter ratelimit.Limiter
	log     *zap.Logger

	mu     sync.Mutex
	states map[int64]chatState
}

// New creates a Bot
func New(api API, store Store, opts Options, log *zap.Logger) *Bot {
	owners := make(map[int64]bool, len(opts.OwnerIDs))
	for _, id := range opts.OwnerIDs {
		owners[id] = true
	}

	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.NewUnlimited()
	}

	return &Bot{
		api:     api,
		store:   store,
		opts:    opts,
		owners:  owners,
		limiter: limiter,
		log:     log,
		states:  make(map[int64]chatState),
	}
}

// Run long-polls Telegram until ctx is cancelled
func (b *Bot) Run(ctx context.Context) {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	// Start from the latest update so a restart does not replay old messages
	updateConfig.Offset = -1

	updates := b.api.GetUpdatesChan(updateConfig)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.limiter.Take()
			b.HandleUpdate(update)
		}
	}
}

// HandleUpdate routes one update to its handler
func (b *Bot) HandleUpdate(update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("Panic while handling update", zap.Any("panic", r), zap.Stack("stack"))
			sentry.CurrentHub().Recover(r)
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(update.CallbackQuery)
	case update.Message != nil && update.Message.From != nil:
		message := update.Message
		if message.IsCommand() {
			b.handleCommand(message)
			return
		}
		if message.Text != "" {
			b.handleSearch(message)
		}
	}
}

// NotifyOwners forwards the tgstat authorization link to every owner
func (b *Bot) NotifyOwners(link string) {
	if len(b.opts.OwnerIDs) == 0 {
		b.log.Warn("Authorization required but no owners configured", zap.String("link", link))
		return
	}
	b.broadcastOwners(fmt.Sprintf(messages.MsgAuthRequired, link))
}

// AnnounceStartup tells the owners the service is up
func (b *Bot) AnnounceStartup() {
	b.broadcastOwners(messages.MsgServiceStarted)
}

func (b *Bot) broadcastOwners(text string) {
	for _, id := range b.opts.OwnerIDs {
		b.sendText(id, text, nil)
	}
}

func (b *Bot) handleCommand(message *tgbotapi.Message) {
	chatID := message.Chat.ID

	switch message.Command() {
	case "start":
		b.handleStart(message)
	case "help":
		b.sendText(chatID, messages.Help(b.opts.MaxRequestsPerDay), nil)
	default:
		b.sendText(chatID, messages.PromptForRequests(b.opts.MaxRequestsPerDay), nil)
	}
}

func (b *Bot) handleStart(message *tgbotapi.Message) {
	user := message.From
	chatID := message.Chat.ID

	b.setState(chatID, stateDefault)

	if err := b.store.EnsureUser(user.ID, user.FirstName, user.UserName); err != nil {
		b.log.Error("Failed to register user", zap.Int64("user_id", user.ID), zap.Error(err))
		sentry.CaptureException(fmt.Errorf("register user %d: %w", user.ID, err))
	}

	b.sendText(chatID, messages.Welcome(user.FirstName), nil)

	if !b.isSubscribed(user.ID) {
		b.askToSubscribe(chatID)
		return
	}
	b.sendText(chatID, messages.PromptForRequests(b.opts.MaxRequestsPerDay), nil)
}

func (b *Bot) askToSubscribe(chatID int64) {
	keyboard := messages.SubscribeKeyboard(b.opts.ChannelURL)
	b.sendText(chatID, messages.MsgSubscriptionNeeded, keyboard)
	b.setState(chatID, stateCheckSubscription)
}

func (b *Bot) handleCallback(callback *tgbotapi.CallbackQuery) {
	if callback.Data != messages.CallbackCheckSubscribe || callback.Message == nil {
		b.answerCallback(callback.ID, "")
		return
	}

	chatID := callback.Message.Chat.ID
	if b.getState(chatID) != stateCheckSubscription {
		b.answerCallback(callback.ID, "")
		return
	}

	if !b.isSubscribed(callback.From.ID) {
		b.answerCallback(callback.ID, messages.MsgNotSubscribed)
		return
	}

	b.setState(chatID, stateDefault)
	b.answerCallback(callback.ID, messages.MsgSubscribed)
	b.sendText(chatID, messages.PromptForRequests(b.opts.MaxRequestsPerDay), nil)
	b.deleteMessage(chatID, callback.Message.MessageID)
}

func (b *Bot) handleSearch(message *tgbotapi.Message) {
	userID := message.From.ID
	chatID := message.Chat.ID
	log := b.log.With(zap.Int64("user_id", userID))

	if !b.isSubscribed(userID) {
		b.askToSubscribe(chatID)
		return
	}
	// Searching starts only once the subscription was confirmed with the button
	if b.getState(chatID) == stateCheckSubscription {
		log.Debug("Ignoring message while waiting for subscription check")
		return
	}

	// The counter row references users, so the user must exist even when
	// /start was never handled against this database
	if err := b.store.EnsureUser(userID, message.From.FirstName, message.From.UserName); err != nil {
		log.Error("Failed to register user", zap.Error(err))
		sentry.CaptureException(fmt.Errorf("register user %d: %w", userID, err))
		b.sendText(chatID, messages.MsgErrorGeneral, nil)
		return
	}

	query := strings.TrimSpace(message.Text)
	owner := b.owners[userID]

	if !owner {
		left, err := b.store.RemainingRequests(userID, b.opts.MaxRequestsPerDay)
		if err != nil {
			log.Error("Failed to get remaining requests", zap.Error(err))
			sentry.CaptureException(fmt.Errorf("remaining requests for %d: %w", userID, err))
			b.sendText(chatID, messages.MsgErrorGeneral, nil)
			return
		}
		if left <= 0 {
			b.sendText(chatID, messages.DayRequestsExceeded(b.opts.MaxRequestsPerDay), nil)
			return
		}
	}

	if len([]rune(query)) >= b.opts.MaxQueryLength {
		b.sendText(chatID, messages.RequestTooLong(b.opts.MaxQueryLength), nil)
		return
	}

	if !owner {
		if err := b.store.IncreaseCounter(userID); err != nil {
			log.Error("Failed to increase request counter", zap.Error(err))
			sentry.CaptureException(fmt.Errorf("increase counter for %d: %w", userID, err))
			b.sendText(chatID, messages.MsgErrorGeneral, nil)
			return
		}
	}

	wait, err := b.send(chatID, messages.MsgPleaseWait, nil)
	if err != nil {
		log.Error("Failed to send message", zap.Error(err))
		return
	}

	req, err := b.store.CreateSearchRequest(userID, chatID, wait.MessageID, query)
	if err != nil {
		log.Error("Failed to queue search request", zap.Error(err))
		sentry.CaptureException(fmt.Errorf("queue search for %d: %w", userID, err))
		b.deleteMessage(chatID, wait.MessageID)
		b.sendText(chatID, messages.MsgErrorGeneral, nil)
		return
	}

	log.Info("Search request queued", zap.Int("request_id", req.ID), zap.String("query", query))
}

// isSubscribed reports whether the user is a member of the gate channel.
// Lookup failures count as not subscribed.
func (b *Bot) isSubscribed(userID int64) bool {
	member, err := b.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: b.opts.ChannelID,
			UserID: userID,
		},
	})
	if err != nil {
		b.log.Warn("Failed to check subscription", zap.Int64("user_id", userID), zap.Error(err))
		return false
	}

	return member.Status != "" && !member.HasLeft() && !member.WasKicked()
}

func (b *Bot) getState(chatID int64) chatState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.states[chatID]
}

func (b *Bot) setState(chatID int64, state chatState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if state == stateDefault {
		delete(b.states, chatID)
		return
	}
	b.states[chatID] = state
}
