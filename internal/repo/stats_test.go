package repo

import (
	"context"
	"testing"
	"time"
)

func TestBloodTestsStats(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "st@example.com")

	n, newest, err := BloodTestsStats(ctx, db, u.ID)
	if err != nil || n != 0 || newest != nil {
		t.Fatalf("empty: n=%d newest=%v err=%v", n, newest, err)
	}

	base := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	seedTest(t, db, u.ID, "a.pdf", base)
	seedTest(t, db, u.ID, "b.pdf", base.Add(time.Hour))

	n, newest, err = BloodTestsStats(ctx, db, u.ID)
	if err != nil || n != 2 || newest == nil || !newest.Equal(base.Add(time.Hour)) {
		t.Fatalf("populated: n=%d newest=%v err=%v", n, newest, err)
	}
}
