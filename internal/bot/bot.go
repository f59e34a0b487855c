package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	"github.com/robfig/cron/v3"

	"remindline/internal/config"
	"remindline/internal/line"
	"remindline/internal/store"
	"remindline/internal/timeparse"
)

// User-facing acknowledgements. Registration either appends exactly one row
// and returns one of the first two, or appends nothing and the webhook layer
// falls back to ReplyError.
const (
	ReplyReserved = "予約を受け付けました。指定の時刻に通知します。"
	ReplyReceived = "メッセージを受け付けました。"
	ReplyError    = "エラーが発生しました。もう一度試してください。"
)

// Notifier delivers one message to one recipient. No internal retry: a failed
// push leaves the record Pending and the next reconciliation pass picks it up.
type Notifier interface {
	Push(ctx context.Context, to, text string) error
}

// Gateway is the inbound messaging platform: it verifies and decodes webhook
// calls and answers them through their reply tokens.
type Gateway interface {
	ParseWebhook(r *http.Request) (*webhook.CallbackRequest, error)
	Reply(replyToken, text string) error
}

// Bot coordinates reservation registration, reconciliation, and delivery.
// It keeps no reminder state of its own; every pass re-reads the store.
type Bot struct {
	cfg      *config.Config
	store    store.RowStore
	gateway  Gateway
	notifier Notifier
	cron     *cron.Cron
	logger   *log.Logger

	// serializes reconciliation passes; the scan/update gap still allows
	// duplicates when a previous pass's status write silently failed
	reconcileMu sync.Mutex

	nowFn func() time.Time
}

// New creates a fully configured Bot instance.
func New(cfg *config.Config, st store.RowStore, gateway Gateway, notifier Notifier, logger *log.Logger) *Bot {
	return &Bot{
		cfg:      cfg,
		store:    st,
		gateway:  gateway,
		notifier: notifier,
		cron:     cron.New(cron.WithLocation(cfg.Timezone)),
		logger:   logger,
		nowFn:    time.Now,
	}
}

// StartScheduler registers the periodic reconciliation job and starts the
// scheduler loop.
func (b *Bot) StartScheduler() error {
	_, err := b.cron.AddFunc(b.cfg.ReconcileCron, func() {
		if _, err := b.Reconcile(context.Background()); err != nil {
			b.logger.Printf("scheduled reconcile: %v", err)
		}
	})
	if err != nil {
		return err
	}
	b.cron.Start()
	return nil
}

// StopScheduler stops the cron scheduler and waits for a running pass to finish.
func (b *Bot) StopScheduler() {
	ctx := b.cron.Stop()
	<-ctx.Done()
}

// Router returns the HTTP surface: the LINE webhook, the manual reconciliation
// trigger, and a health check.
func (b *Bot) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Post("/callback", b.handleCallback)
	r.Post("/reconcile", b.handleReconcile)

	return r
}

// Register turns one inbound message into one persisted reservation row and
// returns the acknowledgement text for the sender.
func (b *Bot) Register(ctx context.Context, rawText, recipientID string) (string, error) {
	scheduledAt := ""
	when, found := timeparse.Extract(rawText, b.cfg.Timezone)
	if found {
		scheduledAt = timeparse.Format(when)
	}

	rec := store.Record{
		ID:          uuid.NewString(),
		Message:     rawText,
		ScheduledAt: scheduledAt,
		RecipientID: recipientID,
		Status:      store.StatusPending,
		CreatedAt:   timeparse.Format(b.now()),
	}
	if err := b.store.Append(ctx, rec); err != nil {
		return "", fmt.Errorf("append reservation: %w", err)
	}

	if found {
		return ReplyReserved, nil
	}
	return ReplyReceived, nil
}

// handleCallback processes LINE webhook POST requests. Each text message from
// a user becomes one registration; the reply token carries the acknowledgement.
func (b *Bot) handleCallback(w http.ResponseWriter, r *http.Request) {
	cb, err := b.gateway.ParseWebhook(r)
	if err != nil {
		if errors.Is(err, line.ErrInvalidSignature) {
			b.logger.Printf("webhook: invalid signature from %s", r.RemoteAddr)
		} else {
			b.logger.Printf("webhook: %v", err)
		}
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	for _, ev := range cb.Events {
		msgEv, ok := ev.(webhook.MessageEvent)
		if !ok {
			continue
		}
		text, ok := msgEv.Message.(webhook.TextMessageContent)
		if !ok {
			continue
		}
		src, ok := msgEv.Source.(webhook.UserSource)
		if !ok {
			continue
		}

		reply, err := b.Register(r.Context(), text.Text, src.UserId)
		if err != nil {
			b.logger.Printf("webhook: register for %s: %v", src.UserId, err)
			reply = ReplyError
		}
		if err := b.gateway.Reply(msgEv.ReplyToken, reply); err != nil {
			b.logger.Printf("webhook: reply: %v", err)
		}
	}

	_, _ = w.Write([]byte("OK"))
}

func (b *Bot) now() time.Time {
	return b.nowFn().In(b.cfg.Timezone).Truncate(time.Minute)
}
