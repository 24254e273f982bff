package cli

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"agentdeck/internal/auth"
	"agentdeck/internal/backend"
	"agentdeck/internal/config"
	"agentdeck/internal/storage"
	"agentdeck/pkg/logger"
)

// CLIContext carries shared dependencies across commands. Storage and
// the credential store open lazily so read-only commands stay cheap.
type CLIContext struct {
	Config     *config.Config
	ConfigPath string
	Logger     *zerolog.Logger
	Verbose    bool
	Quiet      bool

	storagePath string
	storageOnce sync.Once
	storageErr  error
	storage     *storage.DB

	storeOnce sync.Once
	storeErr  error
	store     *auth.Store
}

// NewCLIContext builds a context for one command invocation.
func NewCLIContext(cfg *config.Config, configPath string, log *zerolog.Logger, storagePath string, verbose, quiet bool) *CLIContext {
	return &CLIContext{
		Config:      cfg,
		ConfigPath:  configPath,
		Logger:      log,
		storagePath: storagePath,
		Verbose:     verbose,
		Quiet:       quiet,
	}
}

// GetStorage opens the local database on first use.
func (c *CLIContext) GetStorage() (*storage.DB, error) {
	c.storageOnce.Do(func() {
		c.storage, c.storageErr = storage.Open(c.storagePath)
	})
	return c.storage, c.storageErr
}

// GetStore returns the credential store, loading persisted credentials
// on first use.
func (c *CLIContext) GetStore() (*auth.Store, error) {
	c.storeOnce.Do(func() {
		db, err := c.GetStorage()
		if err != nil {
			c.storeErr = err
			return
		}
		c.store, c.storeErr = auth.NewStore(db)
	})
	return c.store, c.storeErr
}

// ResolveService maps a --service flag value (or empty for the default)
// to a registered service.
func (c *CLIContext) ResolveService(id string) (string, config.ServiceConfig, error) {
	if id == "" {
		def, ok := c.Config.DefaultService()
		if !ok {
			return "", config.ServiceConfig{}, fmt.Errorf("no default service configured; pass --service or mark one default")
		}
		id = def
	}
	svc, ok := c.Config.Services[id]
	if !ok {
		return "", config.ServiceConfig{}, fmt.Errorf("unknown service %q", id)
	}
	return id, svc, nil
}

// BackendClient builds a client for a service, wired to the stored
// credential if one exists.
func (c *CLIContext) BackendClient(serviceID string, svc config.ServiceConfig) (*backend.Client, error) {
	client := backend.NewClient(svc.URL, 30*time.Second)

	store, err := c.GetStore()
	if err != nil {
		return nil, err
	}
	client.SetTokenFunc(func() string {
		cred, err := store.Get(serviceID)
		if err != nil {
			return ""
		}
		return cred.Token
	})
	return client, nil
}

// Close releases lazily opened resources.
func (c *CLIContext) Close() error {
	if c.storage != nil {
		return c.storage.Close()
	}
	return nil
}

// Log returns the command logger.
func (c *CLIContext) Log() *zerolog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logger.Get()
}
