package cmd

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/scriptstash/scriptstash/internal/config"
	"github.com/scriptstash/scriptstash/internal/discovery"
	"github.com/scriptstash/scriptstash/internal/engine"
	"github.com/scriptstash/scriptstash/internal/genai"
	"github.com/scriptstash/scriptstash/internal/remote"
	"github.com/scriptstash/scriptstash/internal/store"
)

// loadConfig reads and validates the config file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", configPath, err)
	}
	return cfg, nil
}

// stateRoot resolves the local state directory: flag, then config, then
// the default.
func stateRoot(cfg *config.Config) string {
	if rootDir != "" {
		return rootDir
	}
	if cfg.Root != "" {
		return cfg.Root
	}
	return config.DefaultRoot()
}

var (
	loggerOnce sync.Once
	fileLogger *log.Logger
)

// appLogger returns the shared rotating file logger under the state root.
// Internal components log here; user-facing output goes through info,
// detail, and errorf.
func appLogger(root string) *log.Logger {
	loggerOnce.Do(func() {
		fileLogger = log.New(&lumberjack.Logger{
			Filename:   filepath.Join(root, "logs", "scriptstash.log"),
			MaxSize:    5, // megabytes
			MaxBackups: 3,
			MaxAge:     30, // days
		}, "", log.LstdFlags)
	})
	return fileLogger
}

// newStore opens the local state store.
func newStore(cfg *config.Config) (*store.Store, error) {
	root := stateRoot(cfg)
	return store.New(root, appLogger(root))
}

// newRemote builds the document store client from config.
func newRemote(cfg *config.Config) *remote.Client {
	return remote.NewClient(remote.Options{
		BaseURL: cfg.APIBaseURL,
		Token:   cfg.Token(),
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		Logger:  appLogger(stateRoot(cfg)),
	})
}

// newEngine wires the full sync engine.
func newEngine(cfg *config.Config) (*engine.Engine, error) {
	st, err := newStore(cfg)
	if err != nil {
		return nil, err
	}
	rc := newRemote(cfg)
	logger := appLogger(stateRoot(cfg))
	return &engine.Engine{
		Store:   st,
		Remote:  rc,
		Finder:  discovery.NewFinder(rc, cfg.Owner, logger),
		Owner:   cfg.Owner,
		Private: cfg.PrivateDocuments,
		Logger:  logger,
	}, nil
}

// newGenerator builds the script generation collaborator. The API key
// comes from the environment, never from config.
func newGenerator(cfg *config.Config) (genai.Generator, error) {
	key := os.Getenv("ANTHROPIC_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is not set; script generation needs it")
	}
	return genai.NewAnthropic(key, cfg.Generation.Model, cfg.Generation.MaxTokens, appLogger(stateRoot(cfg))), nil
}

// info prints a line unless quiet mode is active.
func info(format string, args ...any) {
	if !quiet {
		fmt.Printf(format+"\n", args...)
	}
}

// detail prints a line only in verbose mode.
func detail(format string, args ...any) {
	if verbose {
		fmt.Printf("  "+format+"\n", args...)
	}
}

// errorf prints an error message to stderr.
func errorf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
