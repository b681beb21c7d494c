package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/replyflow/replyflow/internal/actions"
	"github.com/replyflow/replyflow/internal/api"
	"github.com/replyflow/replyflow/internal/classify"
	"github.com/replyflow/replyflow/internal/engine"
	"github.com/replyflow/replyflow/internal/escalation"
	"github.com/replyflow/replyflow/internal/lockfile"
	"github.com/replyflow/replyflow/internal/messaging"
	"github.com/replyflow/replyflow/internal/scenario"
	"github.com/replyflow/replyflow/internal/store"
	"github.com/replyflow/replyflow/internal/sweep"
	"github.com/replyflow/replyflow/internal/trigger"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for ReplyFlow state data
	DefaultStateDir = "/var/lib/replyflow"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "replyflow.db"
	// DefaultAPIAddr is the default API listen address
	DefaultAPIAddr = ":8080"
	// DefaultSweepCron runs the staleness sweep every fifteen minutes
	DefaultSweepCron = "*/15 * * * *"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	slog.Info("Bootstrapping ReplyFlow with configured modules")
	if err := run(flags); err != nil {
		slog.Error("ReplyFlow failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("ReplyFlow exited successfully")
}

// Config holds environment configuration
type Config struct {
	DbDriver    string
	DatabaseURL string
	StateDir    string
	ScenarioDir string
	OpenAIKey   string
	APIAddr     string
	EscalateURL string
	SweepCron   string
	TwilioSID   string
	TwilioToken string
	TwilioFrom  string
}

// Flags holds command line flag values
type Flags struct {
	stateDir    *string
	scenarioDir *string
	dbDriver    *string
	dbDSN       *string
	openaiKey   *string
	apiAddr     *string
	escalateURL *string
	sweepCron   *string
	workStart   *int
	workEnd     *int
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DbDriver:    os.Getenv("REPLYFLOW_DB_DRIVER"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("REPLYFLOW_STATE_DIR"),
		ScenarioDir: os.Getenv("REPLYFLOW_SCENARIO_DIR"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		APIAddr:     os.Getenv("API_ADDR"),
		EscalateURL: os.Getenv("ESCALATION_WEBHOOK_URL"),
		SweepCron:   os.Getenv("SWEEP_SCHEDULE"),
		TwilioSID:   os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken: os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:  os.Getenv("TWILIO_FROM_NUMBER"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No REPLYFLOW_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.APIAddr == "" {
		config.APIAddr = DefaultAPIAddr
	}
	if config.SweepCron == "" {
		config.SweepCron = DefaultSweepCron
	}

	slog.Debug("environment variables loaded",
		"REPLYFLOW_DB_DRIVER", config.DbDriver,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"REPLYFLOW_STATE_DIR", config.StateDir,
		"REPLYFLOW_SCENARIO_DIR", config.ScenarioDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"ESCALATION_WEBHOOK_URL_SET", config.EscalateURL != "",
		"SWEEP_SCHEDULE", config.SweepCron,
		"TWILIO_CONFIGURED", config.TwilioSID != "" && config.TwilioToken != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	dsn := config.DatabaseURL
	if dsn == "" {
		dsn = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", dsn)
	}

	flags := Flags{
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for ReplyFlow data (overrides $REPLYFLOW_STATE_DIR)"),
		scenarioDir: flag.String("scenario-dir", config.ScenarioDir, "directory of scenario YAML files to load on startup (overrides $REPLYFLOW_SCENARIO_DIR)"),
		dbDriver:    flag.String("db-driver", config.DbDriver, "flow store driver: memory, sqlite3 or postgres (overrides $REPLYFLOW_DB_DRIVER)"),
		dbDSN:       flag.String("db-dsn", dsn, "flow store DSN (overrides $DATABASE_URL)"),
		openaiKey:   flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key for message classification (overrides $OPENAI_API_KEY)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		escalateURL: flag.String("escalation-webhook", config.EscalateURL, "webhook URL for human handoffs (overrides $ESCALATION_WEBHOOK_URL)"),
		sweepCron:   flag.String("sweep-cron", config.SweepCron, "cron schedule for the stale flow sweep (overrides $SWEEP_SCHEDULE)"),
		workStart:   flag.Int("working-hours-start", 0, "working hours window start, 0-23, 0/0 disables the window"),
		workEnd:     flag.Int("working-hours-end", 0, "working hours window end, 0-23, 0/0 disables the window"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"scenarioDir", *flags.scenarioDir,
		"dbDriver", *flags.dbDriver,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"sweepCron", *flags.sweepCron)

	return flags
}

// openStore selects the flow store driver.
func openStore(flags Flags) (store.Store, error) {
	switch *flags.dbDriver {
	case "postgres":
		return store.NewPostgresStore(store.WithDSN(*flags.dbDSN))
	case "memory":
		return store.NewInMemoryStore(), nil
	default:
		return store.NewSQLiteStore(store.WithDSN(*flags.dbDSN))
	}
}

func run(flags Flags) error {
	// The SQLite store lives in the state directory; lock it so two
	// instances never share a database file.
	if *flags.dbDriver != "postgres" && *flags.dbDriver != "memory" {
		lock, err := lockfile.AcquireLock(*flags.stateDir)
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	flows, err := openStore(flags)
	if err != nil {
		return err
	}
	defer flows.Close()

	commerce := actions.NewStaticCommerce()
	actionReg := actions.NewRegistry()
	actions.RegisterCommerceActions(actionReg, commerce)

	registry, err := scenario.NewRegistry(actionReg.Names())
	if err != nil {
		return err
	}
	if *flags.scenarioDir != "" {
		count, err := scenario.LoadDir(*flags.scenarioDir, registry)
		if err != nil {
			return err
		}
		slog.Info("Loaded scenarios from directory", "dir", *flags.scenarioDir, "count", count)
	}

	var sink escalation.Sink = escalation.LogSink{}
	if *flags.escalateURL != "" {
		sink = escalation.NewWebhookSink(*flags.escalateURL)
	}

	hours := trigger.WorkingHours{StartHour: *flags.workStart, EndHour: *flags.workEnd}
	facts := engine.NewStoreFacts(flows, commerce)
	matcher := trigger.NewMatcher(registry, facts, hours)
	executor := engine.NewExecutor(actionReg, registry)

	orchOpts := []engine.OrchestratorOption{engine.WithEscalationSink(sink)}
	if *flags.openaiKey != "" {
		classifier, err := classify.NewOpenAIClassifier(classify.WithAPIKey(*flags.openaiKey))
		if err != nil {
			return err
		}
		orchOpts = append(orchOpts, engine.WithClassifier(classifier))
		slog.Info("Using OpenAI message classification")
	} else {
		orchOpts = append(orchOpts, engine.WithClassifier(classify.NewKeywordClassifier()))
		slog.Info("Using keyword message classification")
	}

	var sender sweep.MessageSender
	if sid := os.Getenv("TWILIO_ACCOUNT_SID"); sid != "" {
		twilio, err := messaging.NewTwilioSender()
		if err != nil {
			return err
		}
		sender = twilio
		orchOpts = append(orchOpts, engine.WithMessageSender(twilio))
		slog.Info("Outbound delivery via Twilio WhatsApp")
	}

	orch := engine.NewOrchestrator(registry, matcher, flows, executor, orchOpts...)

	sweepOpts := []sweep.SweeperOption{}
	if sender != nil {
		sweepOpts = append(sweepOpts, sweep.WithMessageSender(sender))
	}
	sweeper := sweep.NewSweeper(flows, registry, sink, sweepOpts...)
	runner := sweep.NewCronRunner(sweeper)
	if err := runner.Schedule(*flags.sweepCron); err != nil {
		return err
	}
	defer runner.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := api.NewServer(orch, registry, api.WithAddr(*flags.apiAddr))
	return srv.Start(ctx)
}
