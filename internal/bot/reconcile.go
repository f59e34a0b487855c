package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"remindline/internal/store"
	"remindline/internal/timeparse"
)

// Reconcile runs one full pass over the store: scan every row, push each due
// Pending record, mark it Sent. Both the cron timer and the manual trigger
// call this method, so due-detection cannot diverge between the two.
//
// A row is due when its scheduledAt is at or before the current minute. Rows
// that fail individually (bad timestamp, push error, status write error) are
// logged and skipped; one bad row never aborts the pass. Returns the number of
// reminders pushed.
func (b *Bot) Reconcile(ctx context.Context) (int, error) {
	b.reconcileMu.Lock()
	defer b.reconcileMu.Unlock()

	if b.cfg.PassTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.PassTimeout)
		defer cancel()
	}

	now := b.now()

	snap, err := b.store.ScanAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("scan reminders: %w", err)
	}

	delivered := 0
	for _, row := range snap.Rows {
		if row.Field(store.ColStatus) == store.StatusSent {
			continue
		}
		cell := row.Field(store.ColScheduledAt)
		if cell == "" {
			// log-only record, never eligible for delivery
			continue
		}
		due, err := timeparse.Parse(cell, b.cfg.Timezone)
		if err != nil {
			b.logger.Printf("reconcile: row %d: bad scheduledAt %q: %v", row.Ref, cell, err)
			continue
		}
		if due.After(now) {
			continue
		}

		recipient := row.Field(store.ColRecipientID)
		if err := b.notifier.Push(ctx, recipient, row.Field(store.ColMessage)); err != nil {
			b.logger.Printf("reconcile: row %d: push to %s: %v", row.Ref, recipient, err)
			continue
		}
		delivered++

		if err := b.store.UpdateCell(ctx, row.Ref, store.ColStatus, store.StatusSent); err != nil {
			// The push went out but the row is still Pending: the next pass
			// will deliver it again.
			b.logger.Printf("reconcile: row %d: mark sent failed, duplicate delivery likely: %v", row.Ref, err)
		}
	}
	return delivered, nil
}

// handleReconcile is the on-demand trigger; it runs the same pass as the
// timer and reports how many reminders went out.
func (b *Bot) handleReconcile(w http.ResponseWriter, r *http.Request) {
	delivered, err := b.Reconcile(r.Context())
	if err != nil {
		b.logger.Printf("manual reconcile: %v", err)
		http.Error(w, "reconcile failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"delivered": delivered})
}
