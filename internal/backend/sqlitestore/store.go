// Package sqlitestore implements the backend.RecordStore contract over a
// GORM-managed SQLite database, including the standing snapshot
// subscription that pushes the full, creation-time-descending catalog to
// subscribers after every mutation.
package sqlitestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/snehith2024/Wallify/internal/backend"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingRecordID   = errors.New("record id is required")
	noOpLogger           = zap.NewNop()
)

const (
	opStoreNew       = "sqlitestore.new"
	opPing           = "sqlitestore.ping"
	opGetUser        = "sqlitestore.get_user"
	opGetUserByEmail = "sqlitestore.get_user_by_email"
	opGetWallpaper   = "sqlitestore.get_wallpaper"
	opCreate         = "sqlitestore.create_wallpaper"
	opIncrement      = "sqlitestore.increment_download_count"
	opDelete         = "sqlitestore.delete_wallpaper"
	opSubscribe      = "sqlitestore.subscribe_wallpapers"
	opSnapshot       = "sqlitestore.snapshot"
)

// StoreError wraps a failure with an operation code for structured
// diagnostics.
type StoreError struct {
	code string
	err  error
}

func (e *StoreError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *StoreError) Unwrap() error {
	return e.err
}

// Code exposes the operation code for assertions and log routing.
func (e *StoreError) Code() string {
	return e.code
}

func newStoreError(operation, reason string, cause error) error {
	return &StoreError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

const defaultHealthInterval = 5 * time.Second

// Config describes the dependencies required to construct a Store.
type Config struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
	// HealthInterval is the period of the liveness probe that guards
	// standing subscriptions. Zero selects the default.
	HealthInterval time.Duration
}

// Store is the SQLite-backed record store.
type Store struct {
	db             *gorm.DB
	clock          func() time.Time
	idProvider     IDProvider
	logger         *zap.Logger
	dispatcher     *snapshotDispatcher
	healthInterval time.Duration
}

// New constructs a Store and validates its dependencies.
func New(cfg Config) (*Store, error) {
	if cfg.Database == nil {
		return nil, newStoreError(opStoreNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newStoreError(opStoreNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	healthInterval := cfg.HealthInterval
	if healthInterval <= 0 {
		healthInterval = defaultHealthInterval
	}
	return &Store{
		db:             cfg.Database,
		clock:          clock,
		idProvider:     cfg.IDProvider,
		logger:         logger,
		dispatcher:     newSnapshotDispatcher(),
		healthInterval: healthInterval,
	}, nil
}

// Ping reads the fixed healthcheck record. A missing row counts as
// reachable; only a failing read indicates a connectivity problem.
func (s *Store) Ping(ctx context.Context) error {
	var record HealthCheckRecord
	err := s.db.WithContext(ctx).Where("id = ?", 1).Take(&record).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return newStoreError(opPing, "probe_failed", err)
	}
	return nil
}

// GetUser returns the backing user record for the provided identity key.
// The stored password hash is never included.
func (s *Store) GetUser(ctx context.Context, id string) (backend.User, bool, error) {
	if id == "" {
		return backend.User{}, false, newStoreError(opGetUser, "missing_id", errMissingRecordID)
	}
	var record UserRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return backend.User{}, false, nil
	}
	if err != nil {
		return backend.User{}, false, newStoreError(opGetUser, "query_failed", err)
	}
	return backend.User{ID: record.ID, Email: record.Email, IsAdmin: record.IsAdmin}, true, nil
}

// GetUserByEmail returns the user record for a login email with the
// stored password hash populated, for credential verification only.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (backend.User, bool, error) {
	if email == "" {
		return backend.User{}, false, newStoreError(opGetUserByEmail, "missing_email", errMissingRecordID)
	}
	var record UserRecord
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return backend.User{}, false, nil
	}
	if err != nil {
		return backend.User{}, false, newStoreError(opGetUserByEmail, "query_failed", err)
	}
	return backend.User{
		ID:       record.ID,
		Email:    record.Email,
		IsAdmin:  record.IsAdmin,
		Password: record.PasswordHash,
	}, true, nil
}

// GetWallpaper returns a single catalog record.
func (s *Store) GetWallpaper(ctx context.Context, id string) (backend.Wallpaper, bool, error) {
	if id == "" {
		return backend.Wallpaper{}, false, newStoreError(opGetWallpaper, "missing_id", errMissingRecordID)
	}
	var record WallpaperRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return backend.Wallpaper{}, false, nil
	}
	if err != nil {
		return backend.Wallpaper{}, false, newStoreError(opGetWallpaper, "query_failed", err)
	}
	return record.toDomain(), true, nil
}

// CreateWallpaper persists a new record with a store-assigned id, a zero
// download count and the server clock as creation timestamp, then pushes a
// fresh snapshot to subscribers.
func (s *Store) CreateWallpaper(ctx context.Context, fields backend.WallpaperFields) (string, error) {
	recordID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return "", newStoreError(opCreate, "id_generation_failed", err)
	}

	record := WallpaperRecord{
		ID:            recordID,
		Name:          fields.Name,
		ImageURL:      fields.ImageURL,
		Category:      fields.Category,
		TagsJSON:      encodeTags(fields.Tags),
		UploaderID:    fields.UploaderID,
		DownloadCount: 0,
		CreatedAt:     s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.String("wallpaper_id", recordID))
		return "", newStoreError(opCreate, "insert_failed", err)
	}

	s.publishSnapshot(ctx)
	return recordID, nil
}

// IncrementDownloadCount adds delta to the stored counter with a single
// server-side expression, so concurrent increments never lose updates.
// A missing id is a no-op.
func (s *Store) IncrementDownloadCount(ctx context.Context, id string, delta int64) error {
	if id == "" {
		return newStoreError(opIncrement, "missing_id", errMissingRecordID)
	}
	result := s.db.WithContext(ctx).
		Model(&WallpaperRecord{}).
		Where("id = ?", id).
		UpdateColumn("download_count", gorm.Expr("download_count + ?", delta))
	if result.Error != nil {
		s.logError(opIncrement, "update_failed", result.Error, zap.String("wallpaper_id", id))
		return newStoreError(opIncrement, "update_failed", result.Error)
	}
	if result.RowsAffected > 0 {
		s.publishSnapshot(ctx)
	}
	return nil
}

// DeleteWallpaper removes the record if present. A missing id completes
// without error and pushes no snapshot.
func (s *Store) DeleteWallpaper(ctx context.Context, id string) error {
	if id == "" {
		return newStoreError(opDelete, "missing_id", errMissingRecordID)
	}
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&WallpaperRecord{})
	if result.Error != nil {
		s.logError(opDelete, "delete_failed", result.Error, zap.String("wallpaper_id", id))
		return newStoreError(opDelete, "delete_failed", result.Error)
	}
	if result.RowsAffected > 0 {
		s.publishSnapshot(ctx)
	}
	return nil
}

// SubscribeWallpapers establishes a standing snapshot subscription. The
// current snapshot is queued before the call returns, so the first receive
// never blocks on a later mutation.
func (s *Store) SubscribeWallpapers(ctx context.Context) (<-chan []backend.Wallpaper, func(), error) {
	snapshot, err := s.querySnapshot(ctx)
	if err != nil {
		return nil, nil, newStoreError(opSubscribe, "initial_query_failed", err)
	}
	stream, cancel := s.dispatcher.subscribe(ctx, snapshot)
	go s.monitorHealth(ctx)
	return stream, cancel, nil
}

// monitorHealth probes the database on a fixed interval for the lifetime
// of a subscription. A failed probe closes every subscriber stream, so
// standing consumers observe the loss instead of reading stale snapshots
// from a store that can no longer serve them.
func (s *Store) monitorHealth(ctx context.Context) {
	ticker := time.NewTicker(s.healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Ping(ctx); err != nil {
				s.logError(opSubscribe, "health_probe_failed", err)
				s.dispatcher.failAll()
				return
			}
		}
	}
}

func (s *Store) querySnapshot(ctx context.Context) ([]backend.Wallpaper, error) {
	var records []WallpaperRecord
	if err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	snapshot := make([]backend.Wallpaper, 0, len(records))
	for _, record := range records {
		snapshot = append(snapshot, record.toDomain())
	}
	return snapshot, nil
}

func (s *Store) publishSnapshot(ctx context.Context) {
	snapshot, err := s.querySnapshot(ctx)
	if err != nil {
		// A store that mutated but cannot re-read its own state is no
		// longer a trustworthy snapshot source; fail the subscriptions
		// rather than leave readers on stale data.
		s.logError(opSnapshot, "query_failed", err)
		s.dispatcher.failAll()
		return
	}
	s.dispatcher.publish(snapshot)
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("record store error", attrs...)
}
