// Package session holds the process-wide session cell: a single-writer
// mirror of the identity provider's auth state, resolved against the
// backing user records. Only the auth-event handler mutates the cell;
// every other caller reads it.
package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/snehith2024/Wallify/internal/backend"
)

var (
	errMissingRecords  = errors.New("session: record store required")
	errMissingProvider = errors.New("session: identity provider required")
	errAlreadyStarted  = errors.New("session: already started")
)

// Records is the slice of the record store the session cell needs.
type Records interface {
	GetUser(ctx context.Context, id string) (backend.User, bool, error)
}

// Config describes the dependencies required to construct a Cell.
type Config struct {
	Records Records
	Logger  *zap.Logger
}

// Cell tracks the authenticated identity, or the absence of one.
type Cell struct {
	records Records
	logger  *zap.Logger

	mu       sync.RWMutex
	current  backend.User
	signedIn bool
	watchers map[int64]func(backend.User, bool)
	nextID   int64

	ready     chan struct{}
	readyOnce sync.Once

	cancelObserve func()
}

// New constructs a Cell and validates its dependencies.
func New(cfg Config) (*Cell, error) {
	if cfg.Records == nil {
		return nil, errMissingRecords
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cell{
		records:  cfg.Records,
		logger:   logger,
		watchers: make(map[int64]func(backend.User, bool)),
		ready:    make(chan struct{}),
	}, nil
}

// Start registers the cell with the identity provider. The first delivered
// event, whatever its outcome, releases Ready exactly once.
func (c *Cell) Start(ctx context.Context, provider backend.IdentityProvider) error {
	if provider == nil {
		return errMissingProvider
	}
	if c.cancelObserve != nil {
		return errAlreadyStarted
	}
	c.cancelObserve = provider.ObserveAuthChanges(func(state backend.AuthState) {
		c.handleAuthEvent(ctx, state)
	})
	return nil
}

// Stop detaches the cell from the identity provider.
func (c *Cell) Stop() {
	if c.cancelObserve != nil {
		c.cancelObserve()
		c.cancelObserve = nil
	}
}

// CurrentUser returns the mirrored user and whether a session is active.
func (c *Cell) CurrentUser() (backend.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current, c.signedIn
}

// Ready is closed once the first auth event has been processed.
func (c *Cell) Ready() <-chan struct{} {
	return c.ready
}

// Watch registers a callback invoked after every session transition.
func (c *Cell) Watch(watcher func(user backend.User, signedIn bool)) (cancel func()) {
	c.mu.Lock()
	c.nextID++
	watcherID := c.nextID
	c.watchers[watcherID] = watcher
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.watchers, watcherID)
			c.mu.Unlock()
		})
	}
}

func (c *Cell) handleAuthEvent(ctx context.Context, state backend.AuthState) {
	defer c.releaseReady()

	if !state.SignedIn {
		c.setCurrent(backend.User{}, false)
		return
	}

	user, found, err := c.records.GetUser(ctx, state.UserID)
	if err != nil {
		c.logger.Warn("user record lookup failed",
			zap.String("user_id", state.UserID),
			zap.Error(err))
		c.setCurrent(backend.User{}, false)
		return
	}
	if !found {
		// Identity provider and record store disagree. Not fatal: the
		// session simply stays unauthenticated.
		c.logger.Warn("user record not found for authenticated identity",
			zap.String("user_id", state.UserID))
		c.setCurrent(backend.User{}, false)
		return
	}

	c.setCurrent(user, true)
}

func (c *Cell) setCurrent(user backend.User, signedIn bool) {
	c.mu.Lock()
	c.current = user
	c.signedIn = signedIn
	watchers := make([]func(backend.User, bool), 0, len(c.watchers))
	for _, watcher := range c.watchers {
		watchers = append(watchers, watcher)
	}
	c.mu.Unlock()

	for _, watcher := range watchers {
		watcher(user, signedIn)
	}
}

func (c *Cell) releaseReady() {
	c.readyOnce.Do(func() {
		close(c.ready)
	})
}
