// Package backend declares the boundary contract to the remote
// collaborators Wallify is built on: an identity provider, a record store
// with standing snapshot subscriptions, and a blob store. The application
// core depends only on these interfaces; adapters live in subpackages.
package backend

import (
	"context"
	"io"
	"time"
)

// User is the identity record mirrored into session state. Password is
// populated only when seeding demo accounts and is never carried on an
// authenticated session.
type User struct {
	ID       string
	Email    string
	IsAdmin  bool
	Password string
}

// Wallpaper is a catalog entry. ImageURL is immutable after creation and
// CreatedAt is assigned by the record store, never by the caller.
type Wallpaper struct {
	ID            string
	Name          string
	ImageURL      string
	Category      string
	Tags          []string
	UploaderID    string
	DownloadCount int64
	CreatedAt     time.Time
}

// WallpaperFields carries the caller-supplied portion of a new catalog
// record. ID, download count and creation timestamp are store-assigned.
type WallpaperFields struct {
	Name       string
	ImageURL   string
	Category   string
	Tags       []string
	UploaderID string
}

// RecordStore is the document-store side of the remote collaborator.
// Snapshots delivered by Subscribe are always the full collection ordered
// by creation time descending.
type RecordStore interface {
	// Ping is the startup health probe: a single read against a fixed
	// record used only to detect connectivity before subscriptions are
	// established.
	Ping(ctx context.Context) error

	GetUser(ctx context.Context, id string) (User, bool, error)
	GetWallpaper(ctx context.Context, id string) (Wallpaper, bool, error)

	// CreateWallpaper persists a new record with a store-assigned id,
	// zero download count and a server-side creation timestamp, and
	// returns the assigned id.
	CreateWallpaper(ctx context.Context, fields WallpaperFields) (string, error)

	// IncrementDownloadCount adds delta to the stored counter atomically
	// on the server side, never via read-modify-write.
	IncrementDownloadCount(ctx context.Context, id string, delta int64) error

	// DeleteWallpaper removes the record. A missing id is a no-op.
	DeleteWallpaper(ctx context.Context, id string) error

	// SubscribeWallpapers establishes a standing subscription. The
	// returned channel receives the current snapshot immediately and a
	// fresh full snapshot after every change, until ctx is cancelled or
	// cancel is called.
	SubscribeWallpapers(ctx context.Context) (<-chan []Wallpaper, func(), error)
}

// BlobStore is the object-storage side of the remote collaborator.
type BlobStore interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// PublicURL resolves the durable retrieval URL for a stored object.
	PublicURL(ctx context.Context, key string) (string, error)

	// Delete removes the object backing the provided retrieval URL.
	Delete(ctx context.Context, url string) error
}

// AuthState describes one identity-provider event. SignedIn false means
// the session ended or none was ever established; UserID is the provider's
// stable key and is empty when signed out.
type AuthState struct {
	UserID   string
	SignedIn bool
}

// IdentityProvider is the authentication side of the remote collaborator.
type IdentityProvider interface {
	// ObserveAuthChanges registers an observer for auth-state events.
	// The current state is delivered immediately, then every transition,
	// until cancel is called.
	ObserveAuthChanges(observer func(AuthState)) (cancel func())

	SignInWithPassword(ctx context.Context, email, password string) error
	SignInWithGoogle(ctx context.Context, idToken string) error
	SignOut(ctx context.Context) error
}
