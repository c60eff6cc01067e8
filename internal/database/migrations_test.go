package database

import (
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/snehith2024/Wallify/internal/backend/sqlitestore"
)

func TestOpenSQLiteInstallsHealthcheckRow(t *testing.T) {
	databasePath := filepath.Join(t.TempDir(), "migration.db")

	db, err := OpenSQLite(databasePath, nil)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	var row sqlitestore.HealthCheckRecord
	if err := db.Where("id = ?", 1).Take(&row).Error; err != nil {
		t.Fatalf("expected healthcheck row after migration: %v", err)
	}

	var record migrationRecord
	if err := db.Where("name = ?", migrationInstallHealthcheckRow).Take(&record).Error; err != nil {
		t.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		t.Fatalf("expected migration timestamp to be set")
	}
}

func TestOpenSQLiteIsIdempotent(t *testing.T) {
	databasePath := filepath.Join(t.TempDir(), "migration.db")

	if _, err := OpenSQLite(databasePath, nil); err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	db, err := OpenSQLite(databasePath, nil)
	if err != nil {
		t.Fatalf("second open failed: %v", err)
	}

	var count int64
	if err := db.Model(&sqlitestore.HealthCheckRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count healthcheck rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one healthcheck row, got %d", count)
	}
}

func TestSeedAccountsHashesPasswordsAndSkipsExisting(t *testing.T) {
	databasePath := filepath.Join(t.TempDir(), "seed.db")

	db, err := OpenSQLite(databasePath, nil)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	accounts := []SeedAccount{
		{ID: "u-admin", Email: "Admin@Wallify.app", Password: "admin-pass", IsAdmin: true},
		{ID: "u-demo", Email: "demo@wallify.app", Password: "demo-pass"},
		{ID: "u-skip", Email: "skip@wallify.app"},
	}
	if err := SeedAccounts(db, accounts, nil); err != nil {
		t.Fatalf("failed to seed accounts: %v", err)
	}

	var admin sqlitestore.UserRecord
	if err := db.Where("email = ?", "admin@wallify.app").Take(&admin).Error; err != nil {
		t.Fatalf("expected lowercased admin email: %v", err)
	}
	if !admin.IsAdmin {
		t.Fatalf("expected admin flag")
	}
	if admin.PasswordHash == "admin-pass" {
		t.Fatalf("password must never be stored in clear")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte("admin-pass")); err != nil {
		t.Fatalf("stored hash must verify the seed password: %v", err)
	}

	var missing sqlitestore.UserRecord
	if err := db.Where("email = ?", "skip@wallify.app").Take(&missing).Error; err == nil {
		t.Fatalf("accounts without a password must not be installed")
	} else if err != gorm.ErrRecordNotFound {
		t.Fatalf("unexpected lookup error: %v", err)
	}

	// Reseeding with a different password must not rotate credentials.
	accounts[1].Password = "rotated"
	if err := SeedAccounts(db, accounts, nil); err != nil {
		t.Fatalf("failed to reseed accounts: %v", err)
	}
	var demo sqlitestore.UserRecord
	if err := db.Where("email = ?", "demo@wallify.app").Take(&demo).Error; err != nil {
		t.Fatalf("expected demo account: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(demo.PasswordHash), []byte("demo-pass")); err != nil {
		t.Fatalf("reseeding must keep the original password: %v", err)
	}
}
