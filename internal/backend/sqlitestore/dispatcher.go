package sqlitestore

import (
	"context"
	"sync"

	"github.com/snehith2024/Wallify/internal/backend"
)

const snapshotBufferSize = 4

// snapshotDispatcher fans out full catalog snapshots to standing
// subscribers. When a subscriber's buffer is full the oldest queued
// snapshot is discarded so the channel always converges on the latest
// state. Streams are closed under the write lock, on unsubscribe or on
// failAll; sends hold the read lock so they never race a close.
type snapshotDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]chan []backend.Wallpaper
	nextID      int64
	failed      bool
}

func newSnapshotDispatcher() *snapshotDispatcher {
	return &snapshotDispatcher{
		subscribers: make(map[int64]chan []backend.Wallpaper),
	}
}

func (d *snapshotDispatcher) subscribe(ctx context.Context, initial []backend.Wallpaper) (<-chan []backend.Wallpaper, func()) {
	stream := make(chan []backend.Wallpaper, snapshotBufferSize)
	stream <- initial

	d.mu.Lock()
	if d.failed {
		close(stream)
		d.mu.Unlock()
		return stream, func() {}
	}
	d.nextID++
	subscriberID := d.nextID
	d.subscribers[subscriberID] = stream
	d.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			d.mu.Lock()
			if _, registered := d.subscribers[subscriberID]; registered {
				delete(d.subscribers, subscriberID)
				close(stream)
			}
			d.mu.Unlock()
		})
	}

	go func() {
		<-ctx.Done()
		cancel()
	}()

	return stream, cancel
}

func (d *snapshotDispatcher) publish(snapshot []backend.Wallpaper) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, stream := range d.subscribers {
		for {
			select {
			case stream <- snapshot:
			default:
				select {
				case <-stream:
				default:
				}
				continue
			}
			break
		}
	}
}

// failAll closes every subscriber stream and rejects later subscribers.
// Standing consumers observe the closed stream as subscription loss.
func (d *snapshotDispatcher) failAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failed {
		return
	}
	d.failed = true
	for subscriberID, stream := range d.subscribers {
		delete(d.subscribers, subscriberID)
		close(stream)
	}
}
