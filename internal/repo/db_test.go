package repo

import (
	"path/filepath"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/tbourn/dogblood-backend/internal/config"
	"github.com/tbourn/dogblood-backend/internal/domain"
)

// newRepoDB opens a migrated file-backed SQLite database private to the test.
func newRepoDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "repo.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

func TestOpenSQLite_RejectsUnusablePaths(t *testing.T) {
	for name, path := range map[string]string{
		"blank":          "  ",
		"missing parent": filepath.Join(t.TempDir(), "nowhere", "dogblood.db"),
	} {
		t.Run(name, func(t *testing.T) {
			db, err := OpenSQLite(path)
			if err == nil || db != nil {
				t.Fatalf("OpenSQLite(%q) = %v, %v; want error", path, db, err)
			}
		})
	}
}

func TestOpenSQLite_ConnectionSettings(t *testing.T) {
	db := newRepoDB(t)

	pragmas := []struct {
		name string
		want string
	}{
		{"journal_mode", "wal"},
		{"foreign_keys", "1"},
		{"busy_timeout", "5000"},
	}
	for _, p := range pragmas {
		var got string
		if err := db.Raw("PRAGMA " + p.name).Row().Scan(&got); err != nil {
			t.Fatalf("PRAGMA %s: %v", p.name, err)
		}
		if !strings.EqualFold(got, p.want) {
			t.Errorf("PRAGMA %s = %q want %q", p.name, got, p.want)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	if n := sqlDB.Stats().MaxOpenConnections; n != 10 {
		t.Errorf("MaxOpenConnections=%d want 10", n)
	}
}

func TestAutoMigrate_CreatesEveryTable(t *testing.T) {
	m := newRepoDB(t).Migrator()
	for _, model := range []any{
		&domain.User{}, &domain.BloodTest{}, &domain.ChatSession{},
		&domain.ChatMessage{}, &domain.PaymentTransaction{}, &domain.Idempotency{},
	} {
		if !m.HasTable(model) {
			t.Errorf("missing table for %T", model)
		}
	}
}

func TestOpen_DriverSelection(t *testing.T) {
	if _, err := Open(config.DBConfig{Driver: "oracle"}, false); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	if _, err := Open(config.DBConfig{Driver: "postgres", URL: ""}, false); err == nil {
		t.Fatalf("expected error for empty postgres dsn")
	}

	db, err := Open(config.DBConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "x.db")}, true)
	if err != nil {
		t.Fatalf("Open sqlite traced: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if isUniqueViolation(nil) {
		t.Fatalf("nil is not a violation")
	}
	if !isUniqueViolation(gorm.ErrDuplicatedKey) {
		t.Fatalf("ErrDuplicatedKey should match")
	}
	if !isUniqueViolation(errString("UNIQUE constraint failed: users.email")) {
		t.Fatalf("sqlite text should match")
	}
	if !isUniqueViolation(errString(`ERROR: duplicate key value violates unique constraint "ux_users_email"`)) {
		t.Fatalf("postgres text should match")
	}
	if isUniqueViolation(errString("disk I/O error")) {
		t.Fatalf("unrelated error should not match")
	}
}

type errString string

func (e errString) Error() string { return string(e) }
