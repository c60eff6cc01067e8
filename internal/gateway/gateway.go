// Package gateway is the single choke point for catalog mutations and
// auth operations. Every operation owns its failure handling: user-facing
// alerts go through the Notifier, diagnostics through the logger, and
// nothing escalates past this layer.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/snehith2024/Wallify/internal/backend"
)

const (
	opUpload   = "gateway.upload"
	opDelete   = "gateway.delete"
	opDownload = "gateway.download"
	opSignIn   = "gateway.sign_in"
	opSignOut  = "gateway.sign_out"

	alertUploadFailed     = "Failed to upload wallpaper."
	alertDeleteFailed     = "Failed to delete wallpaper."
	alertLoginFailed      = "Failed to login. Check your credentials."
	alertGoogleFailed     = "Failed to login with Google."
	alertLogoutFailed     = "Failed to logout."
	alertLoginRequired    = "You must be logged in to upload."
	alertIncompleteUpload = "Please provide a name, a category and an image file."
)

var (
	// ErrNotSignedIn rejects uploads without an authenticated user.
	ErrNotSignedIn = errors.New("gateway: sign-in required")
	// ErrIncompleteUpload rejects uploads missing name, category or file
	// before any backend call is issued.
	ErrIncompleteUpload = errors.New("gateway: upload fields incomplete")

	errMissingRecords  = errors.New("gateway: record store required")
	errMissingBlobs    = errors.New("gateway: blob store required")
	errMissingIdentity = errors.New("gateway: identity provider required")
)

// GatewayError wraps a failure with an operation code.
type GatewayError struct {
	code string
	err  error
}

func (e *GatewayError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *GatewayError) Unwrap() error {
	return e.err
}

// Code exposes the operation code.
func (e *GatewayError) Code() string {
	return e.code
}

func newGatewayError(operation, reason string, cause error) error {
	return &GatewayError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// Notifier receives user-facing alert messages.
type Notifier interface {
	Notify(message string)
}

type nopNotifier struct{}

func (nopNotifier) Notify(string) {}

// UploadRequest carries the form fields and file of an upload intent.
type UploadRequest struct {
	Name        string
	Category    string
	Tags        []string
	FileName    string
	File        io.Reader
	Size        int64
	ContentType string
}

// Config describes the dependencies required to construct a Gateway.
type Config struct {
	Records  backend.RecordStore
	Blobs    backend.BlobStore
	Identity backend.IdentityProvider
	Clock    func() time.Time
	Logger   *zap.Logger
	Notifier Notifier
}

// Gateway issues create/delete/download-count and auth operations against
// the remote collaborators.
type Gateway struct {
	records  backend.RecordStore
	blobs    backend.BlobStore
	identity backend.IdentityProvider
	clock    func() time.Time
	logger   *zap.Logger
	notifier Notifier
}

// New constructs a Gateway and validates its dependencies.
func New(cfg Config) (*Gateway, error) {
	if cfg.Records == nil {
		return nil, errMissingRecords
	}
	if cfg.Blobs == nil {
		return nil, errMissingBlobs
	}
	if cfg.Identity == nil {
		return nil, errMissingIdentity
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Gateway{
		records:  cfg.Records,
		blobs:    cfg.Blobs,
		identity: cfg.Identity,
		clock:    clock,
		logger:   logger,
		notifier: notifier,
	}, nil
}

// Upload stores the image blob, resolves its durable URL and creates the
// catalog record. Missing fields are rejected before any backend call.
// A record-create failure leaves the already-written blob in place; the
// orphan is an accepted cost and is not rolled back.
func (g *Gateway) Upload(ctx context.Context, uploader backend.User, request UploadRequest) (string, error) {
	if uploader.ID == "" {
		g.notifier.Notify(alertLoginRequired)
		return "", newGatewayError(opUpload, "not_signed_in", ErrNotSignedIn)
	}
	if strings.TrimSpace(request.Name) == "" ||
		strings.TrimSpace(request.Category) == "" ||
		strings.TrimSpace(request.FileName) == "" ||
		request.File == nil {
		g.notifier.Notify(alertIncompleteUpload)
		return "", newGatewayError(opUpload, "incomplete_request", ErrIncompleteUpload)
	}

	key := g.blobKey(request.FileName)
	if err := g.blobs.Put(ctx, key, request.File, request.Size, request.ContentType); err != nil {
		g.logError(opUpload, "blob_put_failed", err, zap.String("key", key))
		g.notifier.Notify(alertUploadFailed)
		return "", newGatewayError(opUpload, "blob_put_failed", err)
	}

	imageURL, err := g.blobs.PublicURL(ctx, key)
	if err != nil {
		g.logError(opUpload, "url_resolve_failed", err, zap.String("key", key))
		g.notifier.Notify(alertUploadFailed)
		return "", newGatewayError(opUpload, "url_resolve_failed", err)
	}

	recordID, err := g.records.CreateWallpaper(ctx, backend.WallpaperFields{
		Name:       request.Name,
		ImageURL:   imageURL,
		Category:   request.Category,
		Tags:       request.Tags,
		UploaderID: uploader.ID,
	})
	if err != nil {
		g.logError(opUpload, "record_create_failed", err, zap.String("key", key))
		g.notifier.Notify(alertUploadFailed)
		return "", newGatewayError(opUpload, "record_create_failed", err)
	}

	return recordID, nil
}

// Delete removes the catalog record and, best effort, its backing blob.
// A blob-store failure is logged and swallowed; a missing id is a no-op.
func (g *Gateway) Delete(ctx context.Context, id string) error {
	wallpaper, found, err := g.records.GetWallpaper(ctx, id)
	if err != nil {
		g.logError(opDelete, "lookup_failed", err, zap.String("wallpaper_id", id))
		g.notifier.Notify(alertDeleteFailed)
		return newGatewayError(opDelete, "lookup_failed", err)
	}
	if !found {
		return nil
	}

	if wallpaper.ImageURL != "" {
		if err := g.blobs.Delete(ctx, wallpaper.ImageURL); err != nil {
			g.logError(opDelete, "blob_delete_failed", err,
				zap.String("wallpaper_id", id),
				zap.String("image_url", wallpaper.ImageURL))
		}
	}

	if err := g.records.DeleteWallpaper(ctx, id); err != nil {
		g.logError(opDelete, "record_delete_failed", err, zap.String("wallpaper_id", id))
		g.notifier.Notify(alertDeleteFailed)
		return newGatewayError(opDelete, "record_delete_failed", err)
	}
	return nil
}

// Download records one download through the store's atomic increment.
// Failures are logged only: the caller's file retrieval has already
// succeeded or will proceed independently.
func (g *Gateway) Download(ctx context.Context, id string) {
	if err := g.records.IncrementDownloadCount(ctx, id, 1); err != nil {
		g.logError(opDownload, "increment_failed", err, zap.String("wallpaper_id", id))
	}
}

// SignInWithPassword delegates to the identity provider; a failure alerts
// the user and leaves session state unchanged.
func (g *Gateway) SignInWithPassword(ctx context.Context, email, password string) error {
	if err := g.identity.SignInWithPassword(ctx, email, password); err != nil {
		g.logError(opSignIn, "password_failed", err)
		g.notifier.Notify(alertLoginFailed)
		return newGatewayError(opSignIn, "password_failed", err)
	}
	return nil
}

// SignInWithGoogle delegates to the identity provider; a failure alerts
// the user and leaves session state unchanged.
func (g *Gateway) SignInWithGoogle(ctx context.Context, idToken string) error {
	if err := g.identity.SignInWithGoogle(ctx, idToken); err != nil {
		g.logError(opSignIn, "google_failed", err)
		g.notifier.Notify(alertGoogleFailed)
		return newGatewayError(opSignIn, "google_failed", err)
	}
	return nil
}

// SignOut delegates to the identity provider.
func (g *Gateway) SignOut(ctx context.Context) error {
	if err := g.identity.SignOut(ctx); err != nil {
		g.logError(opSignOut, "failed", err)
		g.notifier.Notify(alertLogoutFailed)
		return newGatewayError(opSignOut, "failed", err)
	}
	return nil
}

// blobKey derives the storage key from the upload time and the original
// filename. Collisions within the same millisecond are accepted.
func (g *Gateway) blobKey(fileName string) string {
	base := strings.ReplaceAll(path.Base(fileName), " ", "_")
	return fmt.Sprintf("wallpapers/%d_%s", g.clock().UnixMilli(), base)
}

func (g *Gateway) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	g.logger.Error("mutation gateway error", attrs...)
}
