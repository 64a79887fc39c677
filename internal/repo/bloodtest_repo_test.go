package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/dogblood-backend/internal/domain"
)

func seedUser(t *testing.T, db *gorm.DB, email string) *domain.User {
	t.Helper()
	u, err := CreateUser(context.Background(), db, email, "Owner "+email, "hash")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func seedTest(t *testing.T, db *gorm.DB, userID, filename string, at time.Time) *domain.BloodTest {
	t.Helper()
	bt := &domain.BloodTest{
		ID:            uuid.NewString(),
		UserID:        userID,
		Filename:      filename,
		ExtractedText: "WBC 7.1",
		Analysis:      "Within range.",
		ReportPDF:     []byte("%PDF-1.4 report"),
		Status:        domain.StatusCompleted,
		CreatedAt:     at,
	}
	if err := CreateBloodTest(context.Background(), db, bt); err != nil {
		t.Fatalf("CreateBloodTest: %v", err)
	}
	return bt
}

func TestGetBloodTest_OwnershipAndReportColumn(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	owner := seedUser(t, db, "o@example.com")
	other := seedUser(t, db, "x@example.com")
	bt := seedTest(t, db, owner.ID, "cbc.pdf", time.Now().UTC())

	got, err := GetBloodTest(ctx, db, bt.ID, owner.ID, false)
	if err != nil {
		t.Fatalf("GetBloodTest: %v", err)
	}
	if got.Analysis != "Within range." || len(got.ReportPDF) != 0 {
		t.Fatalf("summary read unexpected: %+v", got)
	}

	full, err := GetBloodTest(ctx, db, bt.ID, owner.ID, true)
	if err != nil || string(full.ReportPDF) != "%PDF-1.4 report" {
		t.Fatalf("full read: err=%v pdf=%q", err, full.ReportPDF)
	}

	if _, err := GetBloodTest(ctx, db, bt.ID, other.ID, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("other owner: want ErrNotFound, got %v", err)
	}
}

func TestListBloodTests_NewestFirstAndLimit(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "l@example.com")
	base := time.Now().UTC().Add(-time.Hour)
	seedTest(t, db, u.ID, "old.pdf", base)
	seedTest(t, db, u.ID, "mid.pdf", base.Add(time.Minute))
	seedTest(t, db, u.ID, "new.pdf", base.Add(2*time.Minute))

	out, err := ListBloodTests(ctx, db, u.ID, 0)
	if err != nil {
		t.Fatalf("ListBloodTests: %v", err)
	}
	if len(out) != 3 || out[0].Filename != "new.pdf" || out[2].Filename != "old.pdf" {
		t.Fatalf("order unexpected: %+v", out)
	}
	if out[0].Analysis != "" || len(out[0].ReportPDF) != 0 {
		t.Fatalf("list should not load heavy columns")
	}

	limited, _ := ListBloodTests(ctx, db, u.ID, 2)
	if len(limited) != 2 {
		t.Fatalf("limit not applied: %d", len(limited))
	}
}

func TestCreateBloodTest_RequiresExistingUser(t *testing.T) {
	db := newRepoDB(t)
	bt := &domain.BloodTest{ID: uuid.NewString(), UserID: "ghost", Filename: "a.pdf", ExtractedText: "t", Analysis: "a", ReportPDF: []byte("x")}
	if err := CreateBloodTest(context.Background(), db, bt); err == nil {
		t.Fatalf("expected FK violation for unknown user")
	}
}
