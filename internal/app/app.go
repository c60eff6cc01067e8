// Package app owns the application root: the page state machine, the
// session and catalog cells, and the mutation gateway. Pages and the HTTP
// layer read the cells and call the gateway; only this package transitions
// the page state.
package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/snehith2024/Wallify/internal/backend"
	"github.com/snehith2024/Wallify/internal/catalog"
	"github.com/snehith2024/Wallify/internal/gateway"
	"github.com/snehith2024/Wallify/internal/session"
)

var (
	errMissingRecords  = errors.New("app: record store required")
	errMissingBlobs    = errors.New("app: blob store required")
	errMissingIdentity = errors.New("app: identity provider required")
)

// Config describes the collaborators the application is wired to.
type Config struct {
	Records  backend.RecordStore
	Blobs    backend.BlobStore
	Identity backend.IdentityProvider
	Clock    func() time.Time
	Logger   *zap.Logger
	Notifier gateway.Notifier
}

// App is the application root.
type App struct {
	records  backend.RecordStore
	identity backend.IdentityProvider
	logger   *zap.Logger

	Session *session.Cell
	Catalog *catalog.Cell
	Gateway *gateway.Gateway

	mu   sync.RWMutex
	page Page

	cancelWatch func()
}

// New constructs the application and its cells; nothing is connected to
// the collaborators until Start.
func New(cfg Config) (*App, error) {
	if cfg.Records == nil {
		return nil, errMissingRecords
	}
	if cfg.Blobs == nil {
		return nil, errMissingBlobs
	}
	if cfg.Identity == nil {
		return nil, errMissingIdentity
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sessionCell, err := session.New(session.Config{
		Records: cfg.Records,
		Logger:  logger.Named("session"),
	})
	if err != nil {
		return nil, err
	}
	catalogCell := catalog.New(catalog.Config{
		Logger: logger.Named("catalog"),
	})
	mutationGateway, err := gateway.New(gateway.Config{
		Records:  cfg.Records,
		Blobs:    cfg.Blobs,
		Identity: cfg.Identity,
		Clock:    cfg.Clock,
		Logger:   logger.Named("gateway"),
		Notifier: cfg.Notifier,
	})
	if err != nil {
		return nil, err
	}

	return &App{
		records:  cfg.Records,
		identity: cfg.Identity,
		logger:   logger,
		Session:  sessionCell,
		Catalog:  catalogCell,
		Gateway:  mutationGateway,
		page:     PageLoading,
	}, nil
}

// Start probes connectivity and establishes the two standing
// subscriptions. A failed probe or subscription moves the application to
// the terminal connection-error state rather than failing Start: the
// diagnostic page is itself a valid outcome.
func (a *App) Start(ctx context.Context) error {
	if err := a.records.Ping(ctx); err != nil {
		a.logger.Error("startup health probe failed", zap.Error(err))
		a.failConnection()
		return nil
	}

	if err := a.Session.Start(ctx, a.identity); err != nil {
		return err
	}
	a.cancelWatch = a.Session.Watch(func(_ backend.User, signedIn bool) {
		a.onSessionChange(signedIn)
	})

	if err := a.Catalog.Start(ctx, a.records, func(error) {
		a.failConnection()
	}); err != nil {
		a.failConnection()
		return nil
	}

	// The first auth event, whatever its outcome, ends the loading state.
	go func() {
		select {
		case <-ctx.Done():
		case <-a.Session.Ready():
			a.exitLoading()
		}
	}()

	return nil
}

// Stop detaches the cells from their collaborators.
func (a *App) Stop() {
	if a.cancelWatch != nil {
		a.cancelWatch()
		a.cancelWatch = nil
	}
	a.Session.Stop()
	a.Catalog.Stop()
}

// Page returns the current top-level view state.
func (a *App) Page() Page {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.page
}

// Navigate requests a transition to the target view. Entering profile or
// admin without a session redirects to login; the requested destination is
// not remembered. Navigation is ignored while loading and after a
// connection failure.
func (a *App) Navigate(target Page) Page {
	if !ContentPage(target) {
		return a.Page()
	}

	_, signedIn := a.Session.CurrentUser()

	a.mu.Lock()
	defer a.mu.Unlock()
	if !ContentPage(a.page) {
		return a.page
	}
	if RequiresSession(target) && !signedIn {
		a.page = PageLogin
		return a.page
	}
	a.page = target
	return a.page
}

func (a *App) onSessionChange(signedIn bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if signedIn && a.page == PageLogin {
		a.page = PageHome
	}
	if !signedIn && RequiresSession(a.page) {
		a.page = PageHome
	}
}

func (a *App) exitLoading() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.page == PageLoading {
		a.page = PageHome
	}
}

func (a *App) failConnection() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.page = PageConnectionError
}
