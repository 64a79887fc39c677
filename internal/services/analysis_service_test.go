package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSubmit_SuccessChargesOnceAndPersists(t *testing.T) {
	db := newServiceDB(t)
	u := seedUser(t, db, "alice@example.com", 2)
	an := &fakeAnalyzer{answer: "All values within range."}
	rd := &fakeRenderer{}
	svc := newAnalysis(db, &fakeExtractor{text: "ALT 45 U/L"}, an, rd)
	svc.Now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }

	res, err := svc.Submit(context.Background(), u.ID, Upload{Filename: "rex.PDF", Data: pdfBytes})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.CreditsRemaining != 1 || res.Status != "completed" || res.Analysis != "All values within range." {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := balance(t, db, u.ID); got != 1 {
		t.Fatalf("balance=%d want 1", got)
	}
	if n := countTests(t, db, u.ID); n != 1 {
		t.Fatalf("records=%d want 1", n)
	}
	if an.questions[0] != "" || an.texts[0] != "ALT 45 U/L" {
		t.Fatalf("analyzer called with %q / %q", an.texts, an.questions)
	}
	if rd.input.OwnerName != "Alice Owner" || rd.input.Date.Year() != 2024 {
		t.Fatalf("renderer input: %+v", rd.input)
	}

	bt, err := svc.Get(context.Background(), u.ID, res.TestID)
	if err != nil || bt.Filename != "rex.PDF" || len(bt.ReportPDF) != 0 {
		t.Fatalf("Get: %+v %v", bt, err)
	}
	rep, err := svc.Download(context.Background(), u.ID, res.TestID)
	if err != nil || rep.Filename != "blood_test_report_rex.pdf" || len(rep.PDF) == 0 {
		t.Fatalf("Download: %+v %v", rep, err)
	}
}

func TestSubmit_FailuresChargeNothing(t *testing.T) {
	cases := []struct {
		name    string
		credits int
		upload  Upload
		ex      *fakeExtractor
		an      *fakeAnalyzer
		rd      *fakeRenderer
		want    error
	}{
		{"no credit", 0, Upload{Filename: "a.pdf", Data: pdfBytes}, &fakeExtractor{text: "x"}, &fakeAnalyzer{answer: "y"}, &fakeRenderer{}, ErrInsufficientCredit},
		{"wrong extension", 1, Upload{Filename: "a.txt", Data: pdfBytes}, &fakeExtractor{text: "x"}, &fakeAnalyzer{answer: "y"}, &fakeRenderer{}, ErrInvalidInput},
		{"not a pdf", 1, Upload{Filename: "a.pdf", Data: []byte("hello")}, &fakeExtractor{text: "x"}, &fakeAnalyzer{answer: "y"}, &fakeRenderer{}, ErrInvalidInput},
		{"extract error", 1, Upload{Filename: "a.pdf", Data: pdfBytes}, &fakeExtractor{err: errBoom}, &fakeAnalyzer{answer: "y"}, &fakeRenderer{}, ErrExtraction},
		{"blank text", 1, Upload{Filename: "a.pdf", Data: pdfBytes}, &fakeExtractor{text: "  \n "}, &fakeAnalyzer{answer: "y"}, &fakeRenderer{}, ErrExtraction},
		{"analyzer error", 1, Upload{Filename: "a.pdf", Data: pdfBytes}, &fakeExtractor{text: "x"}, &fakeAnalyzer{err: errBoom}, &fakeRenderer{}, ErrAnalysisService},
		{"empty analysis", 1, Upload{Filename: "a.pdf", Data: pdfBytes}, &fakeExtractor{text: "x"}, &fakeAnalyzer{answer: " "}, &fakeRenderer{}, ErrAnalysisService},
		{"render error", 1, Upload{Filename: "a.pdf", Data: pdfBytes}, &fakeExtractor{text: "x"}, &fakeAnalyzer{answer: "y"}, &fakeRenderer{err: errBoom}, ErrRender},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db := newServiceDB(t)
			u := seedUser(t, db, "bob@example.com", tc.credits)
			svc := newAnalysis(db, tc.ex, tc.an, tc.rd)

			_, err := svc.Submit(context.Background(), u.ID, tc.upload)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err=%v want %v", err, tc.want)
			}
			if got := balance(t, db, u.ID); got != tc.credits {
				t.Fatalf("balance=%d want %d", got, tc.credits)
			}
			if n := countTests(t, db, u.ID); n != 0 {
				t.Fatalf("records=%d want 0", n)
			}
		})
	}
}

func TestSubmit_ValidationRunsBeforeExtraction(t *testing.T) {
	db := newServiceDB(t)
	u := seedUser(t, db, "c@example.com", 1)
	ex := &fakeExtractor{text: "x"}
	svc := newAnalysis(db, ex, &fakeAnalyzer{answer: "y"}, &fakeRenderer{})

	if _, err := svc.Submit(context.Background(), u.ID, Upload{Filename: "a.docx", Data: pdfBytes}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err=%v", err)
	}
	if ex.calls.Load() != 0 {
		t.Fatalf("extractor should not run for rejected files")
	}
}

func TestSubmit_UnknownOrInactiveUser(t *testing.T) {
	db := newServiceDB(t)
	svc := newAnalysis(db, &fakeExtractor{text: "x"}, &fakeAnalyzer{answer: "y"}, &fakeRenderer{})

	if _, err := svc.Submit(context.Background(), "missing", Upload{Filename: "a.pdf", Data: pdfBytes}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("missing user err=%v", err)
	}

	u := seedUser(t, db, "d@example.com", 1)
	if err := db.Model(u).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := svc.Submit(context.Background(), u.ID, Upload{Filename: "a.pdf", Data: pdfBytes}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("inactive user err=%v", err)
	}
}

func TestSubmit_CancelledBeforeCommitLeavesStateUnchanged(t *testing.T) {
	db := newServiceDB(t)
	u := seedUser(t, db, "e@example.com", 1)
	svc := newAnalysis(db, &fakeExtractor{text: "x"}, &fakeAnalyzer{block: true}, &fakeRenderer{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := svc.Submit(ctx, u.ID, Upload{Filename: "a.pdf", Data: pdfBytes})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
	if balance(t, db, u.ID) != 1 || countTests(t, db, u.ID) != 0 {
		t.Fatalf("cancelled run must not charge or persist")
	}
}

func TestSubmit_AnalyzeTimeout(t *testing.T) {
	db := newServiceDB(t)
	u := seedUser(t, db, "f@example.com", 1)
	svc := newAnalysis(db, &fakeExtractor{text: "x"}, &fakeAnalyzer{block: true}, &fakeRenderer{})
	svc.Timeouts.Analyze = 20 * time.Millisecond

	_, err := svc.Submit(context.Background(), u.ID, Upload{Filename: "a.pdf", Data: pdfBytes})
	if !errors.Is(err, ErrAnalysisService) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v", err)
	}
	if balance(t, db, u.ID) != 1 {
		t.Fatalf("timeout must not charge")
	}
}

func TestSubmit_ConcurrentOnBalanceOne(t *testing.T) {
	db := newPooledServiceDB(t)
	u := seedUser(t, db, "g@example.com", 1)
	svc := newAnalysis(db, &fakeExtractor{text: "x"}, &fakeAnalyzer{answer: "y"}, &fakeRenderer{})

	var wg sync.WaitGroup
	errs := make([]error, 8)
	start := make(chan struct{})
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.Submit(context.Background(), u.ID, Upload{Filename: "a.pdf", Data: pdfBytes})
		}(i)
	}
	close(start)
	wg.Wait()

	var ok, short int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInsufficientCredit):
			short++
		default:
			t.Fatalf("unexpected err: %v", err)
		}
	}
	if ok != 1 || short != len(errs)-1 {
		t.Fatalf("ok=%d insufficient=%d want 1/%d", ok, short, len(errs)-1)
	}
	if balance(t, db, u.ID) != 0 || countTests(t, db, u.ID) != 1 {
		t.Fatalf("want balance 0 and one record")
	}
}

func TestSubmit_IdempotencyKeyReplays(t *testing.T) {
	db := newServiceDB(t)
	u := seedUser(t, db, "h@example.com", 2)
	ex := &fakeExtractor{text: "x"}
	svc := newAnalysis(db, ex, &fakeAnalyzer{answer: "y"}, &fakeRenderer{})
	up := Upload{Filename: "a.pdf", Data: pdfBytes, IdempotencyKey: "k-1"}

	first, err := svc.Submit(context.Background(), u.ID, up)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := svc.Submit(context.Background(), u.ID, up)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !second.Replayed || second.TestID != first.TestID || second.CreditsRemaining != 1 {
		t.Fatalf("replay=%+v first=%+v", second, first)
	}
	if ex.calls.Load() != 1 || balance(t, db, u.ID) != 1 {
		t.Fatalf("replay must not rerun or recharge")
	}
}

func TestList_NewestFirstAndClamp(t *testing.T) {
	db := newServiceDB(t)
	u := seedUser(t, db, "i@example.com", 3)
	svc := newAnalysis(db, &fakeExtractor{text: "x"}, &fakeAnalyzer{answer: "y"}, &fakeRenderer{})

	var ids []string
	for _, name := range []string{"one.pdf", "two.pdf", "three.pdf"} {
		res, err := svc.Submit(context.Background(), u.ID, Upload{Filename: name, Data: pdfBytes})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		ids = append(ids, res.TestID)
		time.Sleep(2 * time.Millisecond)
	}
	items, err := svc.List(context.Background(), u.ID, 0)
	if err != nil || len(items) != 3 {
		t.Fatalf("List: %v %d", err, len(items))
	}
	if items[0].ID != ids[2] || items[2].ID != ids[0] {
		t.Fatalf("not newest first: %v", items)
	}
	if items, _ := svc.List(context.Background(), u.ID, 1); len(items) != 1 {
		t.Fatalf("limit not applied")
	}
	empty, err := svc.List(context.Background(), "nobody", 10)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("empty list: %v %v", empty, err)
	}
}

func TestGet_OwnershipIsolation(t *testing.T) {
	db := newServiceDB(t)
	owner := seedUser(t, db, "j@example.com", 1)
	other := seedUser(t, db, "k@example.com", 0)
	svc := newAnalysis(db, &fakeExtractor{text: "x"}, &fakeAnalyzer{answer: "y"}, &fakeRenderer{})

	res, err := svc.Submit(context.Background(), owner.ID, Upload{Filename: "a.pdf", Data: pdfBytes})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := svc.Get(context.Background(), other.ID, res.TestID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get by other: %v", err)
	}
	if _, err := svc.Download(context.Background(), other.ID, res.TestID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Download by other: %v", err)
	}
}

func TestReportFilename(t *testing.T) {
	cases := map[string]string{
		"rex.pdf":         "blood_test_report_rex.pdf",
		"Rex Panel.PDF":   "blood_test_report_Rex Panel.pdf",
		"../../etc/x.pdf": "blood_test_report_x.pdf",
		"noext":           "blood_test_report_noext.pdf",
	}
	for in, want := range cases {
		if got := ReportFilename(in); got != want {
			t.Fatalf("ReportFilename(%q)=%q want %q", in, got, want)
		}
	}
}

func TestSlots_BoundsAndRelease(t *testing.T) {
	s := NewSlots(1)
	release, err := s.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := s.Acquire(ctx); err == nil {
		t.Fatalf("second Acquire should block until ctx is done")
	}
	release()
	release() // idempotent
	r2, err := s.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	r2()

	var nilSlots *Slots
	r3, err := nilSlots.Acquire(context.Background())
	if err != nil {
		t.Fatalf("nil Slots: %v", err)
	}
	r3()
}
