package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"

	"github.com/tario-you/pollevbot/internal/bot"
	"github.com/tario-you/pollevbot/internal/common"
	"github.com/tario-you/pollevbot/internal/interfaces"
	"github.com/tario-you/pollevbot/internal/models"
	"github.com/tario-you/pollevbot/internal/pollev"
	"github.com/tario-you/pollevbot/internal/responder"
	"github.com/tario-you/pollevbot/internal/storage/badger"
	"github.com/tario-you/pollevbot/internal/watcher"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	// Command-line flags
	configFiles  configPaths // Multiple -config flags supported
	pollHost     = flag.String("host", "", "Poll host to watch (overrides config)")
	loginMode    = flag.String("mode", "", "Login mode: cookies, token or login (overrides config)")
	cookiePairs  = flag.String("cookies", "", "Semicolon-delimited session cookies (overrides config)")
	firehoseTok  = flag.String("token", "", "Pre-captured firehose token (overrides config)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")

	// Global state
	config *common.Config
	logger arbor.ILogger
)

func init() {
	// Register custom flag for multiple config files
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	defer common.RecoverWithCrashFile()

	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Pollevbot version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// Startup sequence (REQUIRED ORDER):
	// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
	// 2. Apply CLI overrides (highest priority)
	// 3. Initialize logger
	// 4. Print banner
	var err error

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("pollevbot.toml"); err == nil {
			configFiles = append(configFiles, "pollevbot.toml")
		}
	}

	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration files")
		os.Exit(1)
	}

	common.ApplyFlagOverrides(config, *pollHost, *loginMode, *cookiePairs, *firehoseTok)

	if err := config.Validate(); err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Err(err).Msg("Invalid configuration")
		os.Exit(1)
	}

	logger = common.InitLogger(config)
	common.InstallCrashHandler("./logs")
	common.PrintBanner(common.GetVersion())

	logger.Info().
		Strs("config_files", configFiles).
		Str("host", config.Host).
		Str("login_mode", config.Login.Mode).
		Str("log_level", config.Logging.Level).
		Msg("Application configuration loaded")

	credential, err := config.Credential()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build session credential")
		os.Exit(1)
	}

	// Credential store
	db, err := badger.NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open credential store")
		os.Exit(1)
	}
	defer db.Close()

	store := badger.NewCredentialStorage(db, logger)
	auth := pollev.NewAuthenticator(store, logger)

	controller := bot.NewController(bot.Deps{
		Host:       config.Host,
		Credential: credential,
		Auth:       auth,
		NewWatcher: func(session *pollev.SessionHandle) interfaces.PollWatcher {
			return watcher.New(session, config.Watch, logger)
		},
		NewSubmitter: func(session *pollev.SessionHandle) interfaces.PollSubmitter {
			return responder.New(session, config.Respond, logger)
		},
		Logger:   logger,
		OpenWait: config.Respond.OpenWait,
		Lifetime: config.Watch.Lifetime,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("host", config.Host).
		Str("lifetime", config.Watch.Lifetime.String()).
		Msg("Starting watch loop - Press Ctrl+C to stop")

	if err := controller.Run(ctx); err != nil {
		var authErr *models.AuthError
		if errors.As(err, &authErr) {
			logger.Error().Err(authErr).Msg("Authentication failed")
		} else {
			logger.Error().Err(err).Msg("Bot terminated with error")
		}
		db.Close()
		os.Exit(1)
	}

	logger.Info().Msg("Bot stopped")
}
