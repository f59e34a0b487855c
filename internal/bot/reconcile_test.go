package bot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"remindline/internal/store"
)

func pendingRecord(id, scheduledAt, recipient string) store.Record {
	return store.Record{
		ID:          id,
		Message:     "reminder " + id,
		ScheduledAt: scheduledAt,
		RecipientID: recipient,
		Status:      store.StatusPending,
		CreatedAt:   "2025-04-19 09:30",
	}
}

func TestReconcileDeliversDueAndMarksSent(t *testing.T) {
	t.Parallel()

	st := &memStore{}
	st.seed(pendingRecord("rec-1", "2025-04-20 14:00", "U123"))
	n := &fakeNotifier{}
	b := newTestBot(t, st, n, time.Date(2025, 4, 20, 14, 0, 30, 0, time.UTC))

	delivered, err := b.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if delivered != 1 {
		t.Fatalf("delivered = %d, want 1", delivered)
	}

	sent := n.sent()
	if len(sent) != 1 || sent[0].to != "U123" || sent[0].text != "reminder rec-1" {
		t.Fatalf("unexpected pushes: %+v", sent)
	}
	if got := st.row(0).Field(store.ColStatus); got != store.StatusSent {
		t.Fatalf("status = %q, want %q", got, store.StatusSent)
	}
}

func TestReconcileSecondPassDeliversNothing(t *testing.T) {
	t.Parallel()

	st := &memStore{}
	st.seed(pendingRecord("rec-1", "2025-04-20 14:00", "U123"))
	n := &fakeNotifier{}
	b := newTestBot(t, st, n, time.Date(2025, 4, 20, 14, 0, 0, 0, time.UTC))

	if _, err := b.Reconcile(context.Background()); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	// one minute later, the record is Sent and must stay that way
	b.nowFn = func() time.Time { return time.Date(2025, 4, 20, 14, 1, 0, 0, time.UTC) }
	delivered, err := b.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if delivered != 0 {
		t.Fatalf("second pass delivered = %d, want 0", delivered)
	}
	if got := len(n.sent()); got != 1 {
		t.Fatalf("total pushes = %d, want 1", got)
	}
}

func TestReconcileDueBoundary(t *testing.T) {
	t.Parallel()

	st := &memStore{}
	st.seed(pendingRecord("minute-before", "2025-04-20 13:59", "U1"))
	st.seed(pendingRecord("exactly-now", "2025-04-20 14:00", "U2"))
	st.seed(pendingRecord("minute-after", "2025-04-20 14:01", "U3"))
	n := &fakeNotifier{}
	b := newTestBot(t, st, n, time.Date(2025, 4, 20, 14, 0, 59, 0, time.UTC))

	delivered, err := b.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if delivered != 2 {
		t.Fatalf("delivered = %d, want 2", delivered)
	}

	sent := n.sent()
	if len(sent) != 2 || sent[0].to != "U1" || sent[1].to != "U2" {
		t.Fatalf("unexpected pushes: %+v", sent)
	}
	if got := st.row(2).Field(store.ColStatus); got != store.StatusPending {
		t.Fatalf("future record flipped to %q", got)
	}
}

func TestReconcileSkipsLogOnlyAndMalformedRows(t *testing.T) {
	t.Parallel()

	st := &memStore{}
	st.seed(pendingRecord("log-only", "", "U1"))
	st.seed(pendingRecord("malformed", "20時に通知", "U2"))
	st.seed(pendingRecord("valid", "2025-04-20 14:00", "U3"))
	n := &fakeNotifier{}
	b := newTestBot(t, st, n, time.Date(2025, 4, 20, 14, 0, 0, 0, time.UTC))

	delivered, err := b.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if delivered != 1 {
		t.Fatalf("delivered = %d, want 1", delivered)
	}
	if sent := n.sent(); len(sent) != 1 || sent[0].to != "U3" {
		t.Fatalf("unexpected pushes: %+v", sent)
	}
	// skipped rows stay Pending
	for i := 0; i < 2; i++ {
		if got := st.row(i).Field(store.ColStatus); got != store.StatusPending {
			t.Fatalf("row %d status = %q, want Pending", i, got)
		}
	}
}

func TestReconcilePushFailureLeavesPending(t *testing.T) {
	t.Parallel()

	st := &memStore{}
	st.seed(pendingRecord("rec-1", "2025-04-20 14:00", "U123"))
	n := &fakeNotifier{err: context.DeadlineExceeded}
	b := newTestBot(t, st, n, time.Date(2025, 4, 20, 14, 0, 0, 0, time.UTC))

	delivered, err := b.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if delivered != 0 {
		t.Fatalf("delivered = %d, want 0", delivered)
	}
	if got := st.row(0).Field(store.ColStatus); got != store.StatusPending {
		t.Fatalf("status = %q, want Pending for retry next pass", got)
	}

	// gateway recovers, next pass delivers
	n.err = nil
	delivered, err = b.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("retry pass: %v", err)
	}
	if delivered != 1 {
		t.Fatalf("retry delivered = %d, want 1", delivered)
	}
}

func TestReconcileUpdateFailureRedelivers(t *testing.T) {
	t.Parallel()

	st := &memStore{updateErr: context.DeadlineExceeded}
	st.seed(pendingRecord("rec-1", "2025-04-20 14:00", "U123"))
	n := &fakeNotifier{}
	b := newTestBot(t, st, n, time.Date(2025, 4, 20, 14, 0, 0, 0, time.UTC))

	delivered, err := b.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if delivered != 1 {
		t.Fatalf("delivered = %d, want 1 (push succeeded)", delivered)
	}
	if got := st.row(0).Field(store.ColStatus); got != store.StatusPending {
		t.Fatalf("status = %q, want still Pending after failed mark", got)
	}

	// the accepted duplicate-delivery window: the next pass pushes again
	if _, err := b.Reconcile(context.Background()); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if got := len(n.sent()); got != 2 {
		t.Fatalf("total pushes = %d, want 2 (at-least-once)", got)
	}
}

func TestReconcileScanFailure(t *testing.T) {
	t.Parallel()

	st := &memStore{scanErr: context.DeadlineExceeded}
	b := newTestBot(t, st, &fakeNotifier{}, time.Now())

	if _, err := b.Reconcile(context.Background()); err == nil {
		t.Fatalf("expected error when the store scan fails")
	}
}

func TestRegisterThenReconcileScenario(t *testing.T) {
	t.Parallel()

	st := &memStore{}
	n := &fakeNotifier{}
	b := newTestBot(t, st, n, time.Date(2025, 4, 19, 9, 0, 0, 0, time.UTC))

	reply, err := b.Register(context.Background(), "2025-04-20 14:00 お願いします", "U123")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if reply != ReplyReserved {
		t.Fatalf("reply = %q, want %q", reply, ReplyReserved)
	}

	// not yet due
	delivered, err := b.Reconcile(context.Background())
	if err != nil || delivered != 0 {
		t.Fatalf("early pass delivered = %d, err = %v", delivered, err)
	}

	b.nowFn = func() time.Time { return time.Date(2025, 4, 20, 14, 0, 0, 0, time.UTC) }
	delivered, err = b.Reconcile(context.Background())
	if err != nil || delivered != 1 {
		t.Fatalf("due pass delivered = %d, err = %v", delivered, err)
	}
	if sent := n.sent(); len(sent) != 1 || sent[0].to != "U123" || sent[0].text != "2025-04-20 14:00 お願いします" {
		t.Fatalf("unexpected pushes: %+v", sent)
	}

	b.nowFn = func() time.Time { return time.Date(2025, 4, 20, 14, 1, 0, 0, time.UTC) }
	delivered, err = b.Reconcile(context.Background())
	if err != nil || delivered != 0 {
		t.Fatalf("follow-up pass delivered = %d, err = %v", delivered, err)
	}
}

func TestManualTriggerReportsCount(t *testing.T) {
	t.Parallel()

	st := &memStore{}
	st.seed(pendingRecord("rec-1", "2025-04-20 14:00", "U1"))
	st.seed(pendingRecord("rec-2", "2025-04-20 13:00", "U2"))
	n := &fakeNotifier{}
	b := newTestBot(t, st, n, time.Date(2025, 4, 20, 14, 0, 0, 0, time.UTC))

	req := httptest.NewRequest(http.MethodPost, "/reconcile", nil)
	rec := httptest.NewRecorder()
	b.handleReconcile(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["delivered"] != 2 {
		t.Fatalf("delivered = %d, want 2", body["delivered"])
	}
}

func TestManualTriggerScanFailure(t *testing.T) {
	t.Parallel()

	st := &memStore{scanErr: context.DeadlineExceeded}
	b := newTestBot(t, st, &fakeNotifier{}, time.Now())

	req := httptest.NewRequest(http.MethodPost, "/reconcile", nil)
	rec := httptest.NewRecorder()
	b.handleReconcile(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
