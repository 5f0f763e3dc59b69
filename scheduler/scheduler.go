package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tgstat-bot/db"
	"tgstat-bot/filter"
	"tgstat-bot/messages"
	"tgstat-bot/models"
	"tgstat-bot/sheets"

	"github.com/getsentry/sentry-go"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"
)

// Store is the part of the database the scheduler works with
type Store interface {
	GetNextCreatedRequest() (*db.SearchRequest, error)
	CompleteRequest(requestID int, resultsCount int) error
	FailRequest(requestID int, reason string) error
	RemainingRequests(userID int64, maxPerDay int) (int, error)
}

// Searcher runs one tgstat search
type Searcher interface {
	Search(ctx context.Context, query string) ([]models.PostData, error)
}

// Sender is the subset of *tgbotapi.BotAPI used to talk to users
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Exporter stores a copy of the results outside Telegram
type Exporter interface {
	CreateSheetAndWritePosts(ctx context.Context, sheetName string, posts []models.PostData, query string) (string, int64, error)
}

// Options configures a Scheduler
type Options struct {
	MaxRequestsPerDay int
	MaxResults        int
	PollInterval      time.Duration

	// Optional; results are not exported when nil
	Exporter Exporter
	// Paces outgoing Telegram calls; unlimited when nil
	Limiter ratelimit.Limiter
}

// Scheduler processes queued search requests one at a time. Searches share
// a single cookie snapshot, so they must never run concurrently.
type Scheduler struct {
	store    Store
	searcher Searcher
	api      Sender
	exporter Exporter
	filter   *filter.Filter
	limiter  ratelimit.Limiter
	log      *zap.Logger

	maxPerDay int
	interval  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a new scheduler (the browser is launched per search)
func NewScheduler(store Store, searcher Searcher, api Sender, opts Options, log *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.NewUnlimited()
	}

	return &Scheduler{
		store:     store,
		searcher:  searcher,
		api:       api,
		exporter:  opts.Exporter,
		filter:    filter.NewFilter(opts.MaxResults),
		limiter:   limiter,
		log:       log,
		maxPerDay: opts.MaxRequestsPerDay,
		interval:  opts.PollInterval,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start starts the scheduler in a goroutine
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop cancels the running search, if any, and waits for the loop to exit
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	s.log.Info("Scheduler stopped")
}

// run is the main scheduler loop
func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.processNextRequest(s.ctx)
		}
	}
}

// processNextRequest runs the oldest queued search and replies to the user
func (s *Scheduler) processNextRequest(ctx context.Context) {
	req, err := s.store.GetNextCreatedRequest()
	if err != nil {
		s.log.Error("Failed to get next request", zap.Error(err))
		return
	}
	if req == nil {
		return
	}

	log := s.log.With(zap.Int("request_id", req.ID), zap.Int64("user_id", req.UserID))
	log.Info("Processing search request", zap.String("query", req.Query))

	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic while processing request", zap.Any("panic", r), zap.Stack("stack"))
			sentry.CurrentHub().Recover(r)
			if err := s.store.FailRequest(req.ID, fmt.Sprintf("panic: %v", r)); err != nil {
				log.Error("Failed to mark request as failed", zap.Error(err))
			}
		}
	}()

	posts, searchErr := s.searcher.Search(ctx, req.Query)
	if searchErr != nil && ctx.Err() != nil {
		// Shutting down; the request is requeued on the next start
		log.Warn("Search interrupted", zap.Error(searchErr))
		return
	}

	s.deleteMessage(req.ChatID, req.MessageID)

	if searchErr != nil {
		log.Error("Search failed", zap.Error(searchErr))
		sentry.CaptureException(fmt.Errorf("search request %d: %w", req.ID, searchErr))

		s.sendText(req.ChatID, messages.MsgNotFound)
		if err := s.store.FailRequest(req.ID, searchErr.Error()); err != nil {
			log.Error("Failed to mark request as failed", zap.Error(err))
		}
		s.sendRemaining(req.ChatID, req.UserID)
		return
	}

	posts = s.filter.Apply(posts)

	if len(posts) == 0 {
		s.sendText(req.ChatID, messages.MsgNotFound)
	} else {
		for _, part := range messages.RequestResponse(req.Query, posts) {
			s.sendText(req.ChatID, part)
		}
		s.export(ctx, req, posts)
	}

	if err := s.store.CompleteRequest(req.ID, len(posts)); err != nil {
		log.Error("Failed to mark request as done", zap.Error(err))
	}

	log.Info("Search request done", zap.Int("posts", len(posts)))
	s.sendRemaining(req.ChatID, req.UserID)
}

// export copies the results to Google Sheets; failures never reach the user
func (s *Scheduler) export(ctx context.Context, req *db.SearchRequest, posts []models.PostData) {
	if s.exporter == nil {
		return
	}

	sheetName := sheets.SheetName(req.Query, time.Now())
	if _, _, err := s.exporter.CreateSheetAndWritePosts(ctx, sheetName, posts, req.Query); err != nil {
		s.log.Error("Failed to export results", zap.Int("request_id", req.ID), zap.Error(err))
		sentry.CaptureException(fmt.Errorf("export request %d: %w", req.ID, err))
	}
}

// sendRemaining prompts for the next query while the user has quota left
func (s *Scheduler) sendRemaining(chatID, userID int64) {
	left, err := s.store.RemainingRequests(userID, s.maxPerDay)
	if err != nil {
		s.log.Error("Failed to get remaining requests", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	if left > 0 {
		s.sendText(chatID, messages.PromptForRequestsLeft(left))
	}
}

func (s *Scheduler) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	s.limiter.Take()
	if _, err := s.api.Send(msg); err != nil {
		s.log.Error("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (s *Scheduler) deleteMessage(chatID int64, messageID int) {
	if messageID == 0 {
		return
	}

	s.limiter.Take()
	if _, err := s.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		s.log.Warn("Failed to delete message",
			zap.Int64("chat_id", chatID),
			zap.Int("message_id", messageID),
			zap.Error(err),
		)
	}
}
