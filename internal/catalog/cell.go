// Package catalog holds the catalog cell: a single-writer, always-current
// mirror of the wallpaper collection, replaced wholesale on every push
// from the record store's standing subscription.
package catalog

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/snehith2024/Wallify/internal/backend"
)

var (
	errMissingStore   = errors.New("catalog: record store required")
	errAlreadyStarted = errors.New("catalog: already started")
)

// Config describes the dependencies required to construct a Cell.
type Config struct {
	Logger *zap.Logger
}

// Cell exposes the latest full catalog snapshot, ordered by creation time
// descending. Snapshots are immutable once published: readers receive the
// slice as-is and must not modify it.
type Cell struct {
	logger *zap.Logger

	mu       sync.RWMutex
	snapshot []backend.Wallpaper
	watchers map[int64]func([]backend.Wallpaper)
	nextID   int64

	started bool
	stopped bool
	cancel  func()
}

// New constructs a Cell.
func New(cfg Config) *Cell {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cell{
		logger:   logger,
		watchers: make(map[int64]func([]backend.Wallpaper)),
	}
}

// Start establishes the standing subscription. A failure to establish it
// is returned to the caller; a stream that ends while ctx is still live is
// reported through onFailure. Either way the design treats the condition
// as terminal: there is no automatic resubscribe.
func (c *Cell) Start(ctx context.Context, store backend.RecordStore, onFailure func(error)) error {
	if store == nil {
		return errMissingStore
	}
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	stream, cancel, err := store.SubscribeWallpapers(ctx)
	if err != nil {
		c.logger.Error("catalog subscription failed", zap.Error(err))
		return err
	}
	c.cancel = cancel

	go func() {
		for snapshot := range stream {
			c.replace(snapshot)
		}
		if ctx.Err() != nil || c.isStopped() {
			return
		}
		c.logger.Error("catalog subscription ended unexpectedly")
		if onFailure != nil {
			onFailure(errors.New("catalog: subscription closed"))
		}
	}()

	return nil
}

// Stop cancels the standing subscription. The store closes the stream on
// unsubscribe; marking the cell stopped first keeps that close from being
// mistaken for a mid-session subscription loss.
func (c *Cell) Stop() {
	c.mu.Lock()
	c.stopped = true
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Cell) isStopped() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stopped
}

// Snapshot returns the current catalog snapshot.
func (c *Cell) Snapshot() []backend.Wallpaper {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// Watch registers a callback invoked with every replacement snapshot.
func (c *Cell) Watch(watcher func([]backend.Wallpaper)) (cancel func()) {
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

func (c *Cell) replace(snapshot []backend.Wallpaper) {
	c.mu.Lock()
	c.snapshot = snapshot
	watchers := make([]func([]backend.Wallpaper), 0, len(c.watchers))
	for _, watcher := range c.watchers {
		watchers = append(watchers, watcher)
	}
	c.mu.Unlock()

	for _, watcher := range watchers {
		watcher(snapshot)
	}
}
