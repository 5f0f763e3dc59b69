package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tgstat-bot/bot"
	"tgstat-bot/config"
	"tgstat-bot/db"
	"tgstat-bot/filter"
	"tgstat-bot/logger"
	"tgstat-bot/models"
	"tgstat-bot/parser"
	"tgstat-bot/scheduler"
	"tgstat-bot/scraper"
	"tgstat-bot/sheets"

	"github.com/getsentry/sentry-go"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	query := flag.String("query", "", "Search query (optional, if not provided, runs as Telegram bot)")
	htmlPath := flag.String("html", "", "Parse a saved tgstat search results page instead of searching")
	spreadsheetURL := flag.String("spreadsheet", "", "Google Sheets URL for exports (or use SPREADSHEET_URL env var)")
	credentialsPath := flag.String("credentials", "", "Path to Google service account credentials JSON file (or use GOOGLE_SHEETS_CREDENTIALS env var)")
	flag.Parse()

	cfg := loadConfig(*configPath)
	if err := cfg.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *spreadsheetURL != "" {
		cfg.Env.SpreadsheetURL = *spreadsheetURL
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *htmlPath != "":
		err = runParseMode(cfg, *htmlPath, log)
	case *query != "":
		err = runCLIMode(ctx, cfg, *query, *credentialsPath, log)
	default:
		err = runTelegramBot(ctx, cfg, *credentialsPath, log)
	}

	if err != nil {
		log.Error("Exiting with error", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}

// loadConfig reads the config file when present, defaults otherwise
func loadConfig(configPath string) *config.Config {
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		return config.GetDefaultConfig()
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// newScraper wires the browser session, search and extraction components
func newScraper(cfg *config.Config, onAuth scraper.AuthHook, log *zap.Logger) *scraper.Scraper {
	t := cfg.Search.Timeouts
	timeouts := scraper.DefaultTimeouts()
	timeouts.Input = t.Input
	timeouts.Submit = t.Submit
	timeouts.Sort = t.Sort
	timeouts.Results = t.Results
	timeouts.Lookup = t.Lookup
	timeouts.AuthPause = t.AuthPause

	launcher := scraper.NewRodLauncher(scraper.RodOptions{
		Headless:    cfg.Search.Headless,
		BrowserBin:  cfg.Search.BrowserBin,
		UserDataDir: cfg.Search.UserDataDir,
		Lookup:      t.Lookup,
	}, log.Named("browser"))

	sessions := scraper.NewSessionManager(launcher, scraper.NewCookieStore(cfg.Search.CookiesPath), log.Named("session"))

	return scraper.New(sessions, scraper.Options{
		BaseURL:        cfg.Search.BaseURL,
		Selectors:      scraper.DefaultSelectors(),
		Timeouts:       timeouts,
		OnAuthRequired: onAuth,
	}, log.Named("scraper"))
}

// newExporter returns nil when no spreadsheet is configured
func newExporter(ctx context.Context, cfg *config.Config, credentialsPath string, log *zap.Logger) (*sheets.Writer, error) {
	if cfg.Env.SpreadsheetURL == "" {
		return nil, nil
	}

	spreadsheetID := sheets.ExtractSpreadsheetID(cfg.Env.SpreadsheetURL)
	if spreadsheetID == "" {
		return nil, fmt.Errorf("could not extract spreadsheet ID from URL: %s", cfg.Env.SpreadsheetURL)
	}

	writer, err := sheets.NewWriter(ctx, spreadsheetID, credentialsPath, cfg.Env.SheetsCredentials, log.Named("sheets"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets writer: %w", err)
	}

	log.Info("Google Sheets export enabled", zap.String("spreadsheet_id", spreadsheetID))
	return writer, nil
}

// runParseMode extracts posts from a saved results page
func runParseMode(cfg *config.Config, htmlPath string, log *zap.Logger) error {
	data, err := os.ReadFile(htmlPath)
	if err != nil {
		return fmt.Errorf("failed to read HTML file: %w", err)
	}

	posts, err := parser.ParseResultsHTML(string(data), cfg.Search.BaseURL, log.Named("parser"))
	if err != nil {
		return err
	}

	printPosts(filter.NewFilter(cfg.Bot.MaxResults).Apply(posts))
	return nil
}

// runCLIMode runs one search and prints the results
func runCLIMode(ctx context.Context, cfg *config.Config, query, credentialsPath string, log *zap.Logger) error {
	onAuth := func(link string) {
		fmt.Printf("\nAuthorization required. Open this link within %s:\n%s\n\n", cfg.Search.Timeouts.AuthPause, link)
	}

	posts, err := newScraper(cfg, onAuth, log).Search(ctx, query)
	if err != nil {
		return err
	}

	posts = filter.NewFilter(cfg.Bot.MaxResults).Apply(posts)
	if len(posts) == 0 {
		fmt.Println("No posts found.")
		return nil
	}
	printPosts(posts)

	writer, err := newExporter(ctx, cfg, credentialsPath, log)
	if err != nil {
		log.Warn("Export disabled", zap.Error(err))
		return nil
	}
	if writer != nil {
		if _, _, err := writer.CreateSheetAndWritePosts(ctx, sheets.SheetName(query, time.Now()), posts, query); err != nil {
			log.Warn("Failed to write to Google Sheets", zap.Error(err))
		}
	}
	return nil
}

// runTelegramBot serves searches through the Telegram bot until interrupted
func runTelegramBot(ctx context.Context, cfg *config.Config, credentialsPath string, log *zap.Logger) error {
	if cfg.Env.BotToken == "" {
		return errors.New("BOT_TOKEN environment variable is not set")
	}

	if cfg.Env.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Env.SentryDSN}); err != nil {
			return fmt.Errorf("sentry.Init: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	database, err := db.NewDB(cfg.Env.DatabaseURL)
	if err != nil {
		sentry.CaptureException(err)
		return err
	}
	defer database.Close()

	if n, err := database.RequeueInProgress(); err != nil {
		log.Warn("Failed to requeue interrupted searches", zap.Error(err))
	} else if n > 0 {
		log.Info("Requeued interrupted searches", zap.Int64("count", n))
	}

	api, err := tgbotapi.NewBotAPI(cfg.Env.BotToken)
	if err != nil {
		return fmt.Errorf("failed to initialize bot: %w", err)
	}
	log.Info("Authorized on account", zap.String("username", api.Self.UserName))

	tgBot := bot.New(api, database, bot.Options{
		ChannelID:         cfg.Bot.ChannelID,
		ChannelURL:        cfg.Bot.ChannelURL,
		MaxRequestsPerDay: cfg.Bot.MaxRequestsPerDay,
		MaxQueryLength:    cfg.Bot.MaxQueryLength,
		OwnerIDs:          cfg.Env.OwnerIDs,
		Limiter:           ratelimit.New(20),
	}, log.Named("bot"))

	exporter, err := newExporter(ctx, cfg, credentialsPath, log)
	if err != nil {
		log.Warn("Export disabled", zap.Error(err))
	}

	opts := scheduler.Options{
		MaxRequestsPerDay: cfg.Bot.MaxRequestsPerDay,
		MaxResults:        cfg.Bot.MaxResults,
		PollInterval:      cfg.Bot.PollInterval,
		Limiter:           ratelimit.New(20),
	}
	if exporter != nil {
		opts.Exporter = exporter
	}

	sched := scheduler.NewScheduler(database, newScraper(cfg, tgBot.NotifyOwners, log), api, opts, log.Named("scheduler"))
	sched.Start()
	defer sched.Stop()

	tgBot.AnnounceStartup()
	log.Info("Bot started")

	tgBot.Run(ctx)
	return nil
}

func printPosts(posts []models.PostData) {
	fmt.Printf("Found %d posts\n", len(posts))
	fmt.Println("==================")
	for i, post := range posts {
		fmt.Printf("\n%d. %s\n", i+1, post.SourceTitle)
		fmt.Printf("   Channel: %s\n", post.SourceURL)
		fmt.Printf("   Post: %s\n", post.PostURL)
		fmt.Printf("   Published: %s\n", post.PublicationDate)
		fmt.Printf("   Views: %s, Reposts: %s\n", post.ViewsCount, post.RepostsCount)
	}
}
