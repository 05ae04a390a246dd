package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/obenan/reviewbridge/internal/analytics"
	"github.com/obenan/reviewbridge/internal/api"
	"github.com/obenan/reviewbridge/internal/flow"
	"github.com/obenan/reviewbridge/internal/store"
	"github.com/obenan/reviewbridge/internal/util"
	"github.com/obenan/reviewbridge/internal/whatsapp"
)

// Default configuration constants.
const (
	// DefaultStateDir is the default directory for Review Bridge state data.
	DefaultStateDir = "/var/lib/reviewbridge"
	// DefaultDBFileName is the default SQLite database filename for
	// sessions.
	DefaultDBFileName = "reviewbridge.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow device database
	// filename.
	DefaultWhatsAppDBFileName = "whatsmeow.db"
)

// Config holds environment configuration.
type Config struct {
	APIAddr          string
	DatabaseURL      string
	StateDir         string
	Backend          string
	WhatsAppDSN      string
	AnalyticsBaseURL string
	AnalyticsPath    string
	MaxAttempts      int
	RetryDelay       time.Duration
	AnalyticsTimeout time.Duration
	Cooldown         time.Duration
}

// Flags holds command line flag values.
type Flags struct {
	apiAddr     *string
	dbDSN       *string
	stateDir    *string
	backend     *string
	waDSN       *string
	qrOutput    *string
	numericCode *bool
}

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	storeOpts := buildStoreOptions(flags)
	analyticsOpts := buildAnalyticsOptions(config)
	engineOpts := buildEngineOptions(config)
	waOpts := buildWhatsAppOptions(flags)
	apiOpts := buildAPIOptions(flags)

	slog.Info("Bootstrapping Review Bridge", "backend", *flags.backend, "api_addr", *flags.apiAddr)
	if err := api.Run(*flags.backend, waOpts, storeOpts, analyticsOpts, engineOpts, apiOpts); err != nil {
		slog.Error("Review Bridge failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Review Bridge exited successfully")
}

// initializeLogger sets up structured logging; LOG_LEVEL selects the
// minimum level (debug, info, warn, error).
func initializeLogger() {
	level := slog.LevelInfo
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and
// an optional .env file.
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		APIAddr:          os.Getenv("API_ADDR"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		StateDir:         os.Getenv("REVIEWBRIDGE_STATE_DIR"),
		Backend:          os.Getenv("MESSAGING_BACKEND"),
		WhatsAppDSN:      os.Getenv("WHATSAPP_DB_DSN"),
		AnalyticsBaseURL: os.Getenv("REVIEW_ANALYZER_API_URL"),
		AnalyticsPath:    os.Getenv("REVIEW_ANALYZER_ENDPOINT"),
		MaxAttempts:      util.ParseIntEnv("ANALYTICS_MAX_ATTEMPTS", analytics.DefaultMaxAttempts),
		RetryDelay:       util.ParseDurationEnv("ANALYTICS_RETRY_DELAY", analytics.DefaultRetryDelay),
		AnalyticsTimeout: util.ParseDurationEnv("ANALYTICS_TIMEOUT", analytics.DefaultTimeout),
		Cooldown:         util.ParseDurationEnv("REVIEW_COOLDOWN", flow.DefaultCooldown),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No REVIEWBRIDGE_STATE_DIR set, using default", "state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = "file:" + filepath.Join(config.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	}
	if config.Backend == "" {
		config.Backend = api.BackendCloudAPI
	}

	slog.Debug("environment variables loaded",
		"API_ADDR", config.APIAddr,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"REVIEWBRIDGE_STATE_DIR", config.StateDir,
		"MESSAGING_BACKEND", config.Backend,
		"REVIEW_ANALYZER_API_URL_SET", config.AnalyticsBaseURL != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment
// defaults.
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		apiAddr:     flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		dbDSN:       flag.String("db-dsn", config.DatabaseURL, "session database DSN (overrides $DATABASE_URL)"),
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for Review Bridge data (overrides $REVIEWBRIDGE_STATE_DIR)"),
		backend:     flag.String("backend", config.Backend, "messaging backend: cloudapi, twilio or whatsapp (overrides $MESSAGING_BACKEND)"),
		waDSN:       flag.String("whatsapp-db-dsn", config.WhatsAppDSN, "whatsmeow device database DSN (overrides $WHATSAPP_DB_DSN)"),
		qrOutput:    flag.String("qr-output", "", "path to write the WhatsApp login QR code"),
		numericCode: flag.Bool("numeric-code", util.ParseBoolEnv("WHATSAPP_NUMERIC_CODE", false), "use a numeric WhatsApp login code instead of a QR code (overrides $WHATSAPP_NUMERIC_CODE)"),
	}

	flag.Parse()

	// Follow a relocated state directory when the DSN was left at its
	// default.
	if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
	}

	slog.Debug("flags parsed",
		"apiAddr", *flags.apiAddr,
		"dbDSN_set", *flags.dbDSN != "",
		"stateDir", *flags.stateDir,
		"backend", *flags.backend)

	return flags
}

// buildStoreOptions constructs session store configuration options.
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	}
	return storeOpts
}

// buildAnalyticsOptions constructs analytics client configuration options.
func buildAnalyticsOptions(config Config) []analytics.Option {
	var opts []analytics.Option
	if config.AnalyticsBaseURL != "" {
		opts = append(opts, analytics.WithBaseURL(config.AnalyticsBaseURL))
	}
	if config.AnalyticsPath != "" {
		opts = append(opts, analytics.WithEndpoint(config.AnalyticsPath))
	}
	opts = append(opts,
		analytics.WithMaxAttempts(config.MaxAttempts),
		analytics.WithRetryDelay(config.RetryDelay),
		analytics.WithTimeout(config.AnalyticsTimeout),
	)
	return opts
}

// buildEngineOptions constructs conversation engine configuration options.
func buildEngineOptions(config Config) []flow.Option {
	return []flow.Option{flow.WithCooldown(config.Cooldown)}
}

// buildWhatsAppOptions constructs linked-device WhatsApp configuration
// options.
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.waDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.waDSN))
	}
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numericCode {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	return waOpts
}

// buildAPIOptions constructs API server configuration options.
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	return apiOpts
}
