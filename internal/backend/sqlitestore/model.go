package sqlitestore

import (
	"encoding/json"
	"time"

	"github.com/snehith2024/Wallify/internal/backend"
)

// WallpaperRecord is the persisted catalog entry. Tags are stored as a
// JSON array in a text column.
type WallpaperRecord struct {
	ID            string    `gorm:"column:id;primaryKey;size:190;not null"`
	Name          string    `gorm:"column:name;size:320;not null"`
	ImageURL      string    `gorm:"column:image_url;size:512;not null"`
	Category      string    `gorm:"column:category;size:64;not null"`
	TagsJSON      string    `gorm:"column:tags_json;type:text;not null;default:'[]'"`
	UploaderID    string    `gorm:"column:uploader_id;size:190;not null;index"`
	DownloadCount int64     `gorm:"column:download_count;not null;default:0"`
	CreatedAt     time.Time `gorm:"column:created_at;not null;index:idx_wallpapers_created,sort:desc"`
}

// TableName provides the explicit table binding for GORM.
func (WallpaperRecord) TableName() string {
	return "wallpapers"
}

// UserRecord is the backing record for an identity. PasswordHash is a
// bcrypt hash and is only surfaced through GetUserByEmail for credential
// checks, never through GetUser.
type UserRecord struct {
	ID           string    `gorm:"column:id;primaryKey;size:190;not null"`
	Email        string    `gorm:"column:email;size:320;not null;uniqueIndex"`
	PasswordHash string    `gorm:"column:password_hash;size:190;not null;default:''"`
	IsAdmin      bool      `gorm:"column:is_admin;not null;default:false"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (UserRecord) TableName() string {
	return "users"
}

// HealthCheckRecord backs the startup connectivity probe. Exactly one row
// with ID 1 exists after migration.
type HealthCheckRecord struct {
	ID        int64 `gorm:"column:id;primaryKey"`
	CheckedAt int64 `gorm:"column:checked_at_s;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (HealthCheckRecord) TableName() string {
	return "healthchecks"
}

func (r WallpaperRecord) toDomain() backend.Wallpaper {
	tags := []string{}
	if r.TagsJSON != "" {
		// A malformed column yields an empty tag list rather than a
		// failed snapshot.
		_ = json.Unmarshal([]byte(r.TagsJSON), &tags)
	}
	return backend.Wallpaper{
		ID:            r.ID,
		Name:          r.Name,
		ImageURL:      r.ImageURL,
		Category:      r.Category,
		Tags:          tags,
		UploaderID:    r.UploaderID,
		DownloadCount: r.DownloadCount,
		CreatedAt:     r.CreatedAt,
	}
}

func encodeTags(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(encoded)
}
