package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/snehith2024/Wallify/internal/backend/sqlitestore"
)

const migrationInstallHealthcheckRow = "2026-08-20_install_healthcheck_row"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationInstallHealthcheckRow, apply: installHealthcheckRow},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// installHealthcheckRow creates the fixed record the startup probe reads.
func installHealthcheckRow(db *gorm.DB) error {
	row := sqlitestore.HealthCheckRecord{ID: 1, CheckedAt: time.Now().UTC().Unix()}
	return db.Where("id = ?", 1).FirstOrCreate(&row).Error
}

// SeedAccount describes a demo account installed at startup. Password is
// the clear-text demo credential; it is stored only as a bcrypt hash.
type SeedAccount struct {
	ID       string
	Email    string
	Password string
	IsAdmin  bool
}

// SeedAccounts installs the provided demo accounts, keyed by email.
// Existing accounts are left untouched, so a changed configuration does
// not rotate live credentials.
func SeedAccounts(db *gorm.DB, accounts []SeedAccount, logger *zap.Logger) error {
	for _, account := range accounts {
		email := strings.ToLower(strings.TrimSpace(account.Email))
		if email == "" || account.Password == "" {
			continue
		}

		var existing sqlitestore.UserRecord
		err := db.Where("email = ?", email).Take(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(account.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash seed password for %s: %w", email, err)
		}
		record := sqlitestore.UserRecord{
			ID:           account.ID,
			Email:        email,
			PasswordHash: string(hash),
			IsAdmin:      account.IsAdmin,
		}
		if err := db.Create(&record).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("seed account installed",
				zap.String("email", email),
				zap.Bool("is_admin", account.IsAdmin))
		}
	}
	return nil
}
