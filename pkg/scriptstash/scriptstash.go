// Package scriptstash provides the public Go library API for scriptstash.
//
// scriptstash keeps a personal inventory of small scripts synchronized
// across machines through a remote document store. This package exposes
// constructors and operations for embedding it in other Go programs.
//
// # Basic Usage
//
//	client, err := scriptstash.New(scriptstash.Options{
//	    ConfigPath: "/home/me/.config/scriptstash/scriptstash.yaml",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Reconcile with the remote mapping record.
//	result, err := client.Sync(ctx)
//
//	// Stage and publish a new script.
//	err = client.Stage("greet", body, []string{"demo"})
//	result, err = client.Push(ctx)
package scriptstash

import (
	"context"
	"log"
	"time"

	"github.com/scriptstash/scriptstash/internal/config"
	"github.com/scriptstash/scriptstash/internal/discovery"
	"github.com/scriptstash/scriptstash/internal/engine"
	"github.com/scriptstash/scriptstash/internal/remote"
	"github.com/scriptstash/scriptstash/internal/store"
)

// Options configures a scriptstash client.
type Options struct {
	// ConfigPath is the path to the config file. Empty means the
	// platform-standard location; a missing file yields defaults.
	ConfigPath string

	// Root overrides the local state directory from the config.
	Root string

	// Token overrides token resolution (environment, then token file).
	Token string

	// Logger receives operational messages from every component. Nil
	// means each component logs to stderr.
	Logger *log.Logger
}

// Client is the main entry point for the scriptstash library.
type Client struct {
	cfg    *config.Config
	store  *store.Store
	engine *engine.Engine
}

// New creates a Client by loading configuration and wiring the engine.
func New(opts Options) (*Client, error) {
	path := opts.ConfigPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if opts.Root != "" {
		cfg.Root = opts.Root
	}
	if cfg.Root == "" {
		cfg.Root = config.DefaultRoot()
	}

	st, err := store.New(cfg.Root, opts.Logger)
	if err != nil {
		return nil, err
	}

	token := opts.Token
	if token == "" {
		token = cfg.Token()
	}
	rc := remote.NewClient(remote.Options{
		BaseURL: cfg.APIBaseURL,
		Token:   token,
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		Logger:  opts.Logger,
	})

	return &Client{
		cfg:   cfg,
		store: st,
		engine: &engine.Engine{
			Store:   st,
			Remote:  rc,
			Finder:  discovery.NewFinder(rc, cfg.Owner, opts.Logger),
			Owner:   cfg.Owner,
			Private: cfg.PrivateDocuments,
			Logger:  opts.Logger,
		},
	}, nil
}

// Sync reconciles the local inventory with the remote mapping record and
// pushes the merged result.
func (c *Client) Sync(ctx context.Context) (*Result, error) {
	return c.engine.Run(ctx, engine.ModeSync)
}

// Push is Sync with the additional guarantee that the remote mapping
// record exists afterwards.
func (c *Client) Push(ctx context.Context) (*Result, error) {
	return c.engine.Run(ctx, engine.ModePush)
}

// Pull adopts the remote mapping record without writing remotely.
func (c *Client) Pull(ctx context.Context) (*Result, error) {
	return c.engine.Run(ctx, engine.ModePull)
}

// Stage caches a script body and records it in the inventory, unpublished.
func (c *Client) Stage(name, body string, tags []string) error {
	return c.engine.Stage(name, body, tags)
}

// PushScript replaces the remote document of a published script with the
// cached local body.
func (c *Client) PushScript(ctx context.Context, name string) error {
	return c.engine.PushScript(ctx, name)
}

// RemoveScript deletes a script locally and remotely.
func (c *Client) RemoveScript(ctx context.Context, name string) error {
	return c.engine.RemoveScript(ctx, name)
}

// EnsureScript returns the local path of a script body, fetching it from
// the remote when absent.
func (c *Client) EnsureScript(ctx context.Context, name string, force bool) (string, error) {
	return c.engine.EnsureScript(ctx, name, force)
}

// Inventory returns the current local mapping record.
func (c *Client) Inventory() (*Record, error) {
	return c.store.Load()
}
