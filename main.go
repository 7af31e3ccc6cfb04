package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tweet-notifier/classifier"
	"tweet-notifier/composer"
	"tweet-notifier/config"
	"tweet-notifier/openai"
	"tweet-notifier/pipeline"
	"tweet-notifier/poller"
	"tweet-notifier/state"
	"tweet-notifier/telegram"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Set up structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	slog.Info("starting tweet notifier")

	// Load configuration
	configPath := config.GetConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "path", configPath, "error", err)
		return 1
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))
	slog.Info("config loaded", "path", configPath)

	// Initialize Telegram bot
	tgBot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		slog.Error("failed to initialize Telegram bot", "error", err)
		return 1
	}
	slog.Info("telegram bot initialized", "username", tgBot.Self.UserName)

	// Initialize components
	timeout := time.Duration(cfg.RequestTimeoutSecs) * time.Second
	llm := openai.NewClient(cfg.OpenAIAPIKey,
		openai.WithModel(cfg.OpenAIModel),
		openai.WithTimeout(timeout),
	)

	runner := pipeline.NewRunner(
		classifier.New(llm),
		composer.New(llm),
		&dispatcherAdapter{telegram.NewDispatcher(tgBot, cfg.ChatID)},
		state.NewStore(cfg.StatePath),
	)

	// Set up context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.PollSchedule != "" {
		return runWatch(ctx, cfg, runner, timeout)
	}
	return runOnce(ctx, runner)
}

// runOnce processes a single item passed as the first argument.
func runOnce(ctx context.Context, runner *pipeline.Runner) int {
	raw := ""
	if len(os.Args) > 1 {
		raw = os.Args[1]
	}

	item, err := pipeline.ParseItem(raw)
	if err != nil {
		slog.Info("no valid tweet data provided")
		return 0
	}

	outcome := runner.Run(ctx, item)
	slog.Info("pipeline finished", "outcome", outcome)

	if outcome == pipeline.OutcomeDeliveryFailed {
		return 1
	}
	return 0
}

// runWatch polls the configured account on a cron schedule until the
// process is signalled to stop.
func runWatch(ctx context.Context, cfg *config.Config, runner *pipeline.Runner, timeout time.Duration) int {
	source := poller.NewClient(cfg.TwitterAPIKey, poller.WithTimeout(timeout))
	p := poller.New(source, runner, cfg.PollUserName)

	if err := p.Schedule(cfg.PollSchedule); err != nil {
		slog.Error("failed to schedule poll", "schedule", cfg.PollSchedule, "error", err)
		return 1
	}
	p.Start()
	defer p.Stop()
	slog.Info("watch mode started", "user", cfg.PollUserName, "schedule", cfg.PollSchedule)

	<-ctx.Done()
	slog.Info("shutting down")
	return 0
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// dispatcherAdapter maps the dispatcher's delivery report onto the
// pipeline's status values.
type dispatcherAdapter struct {
	d *telegram.Dispatcher
}

func (a *dispatcherAdapter) Deliver(ctx context.Context, message string) (pipeline.DeliveryStatus, error) {
	res := a.d.Deliver(ctx, message)
	switch res.Outcome {
	case telegram.Sent:
		return pipeline.DeliverySent, nil
	case telegram.SentPlain:
		return pipeline.DeliverySentPlain, nil
	default:
		return pipeline.DeliveryFailed, res.Err
	}
}
