// Package broadcast fans an admin message out to every reachable user.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/zanti495-bot/web-bot-outloud/internal/domain"
	apperrors "github.com/zanti495-bot/web-bot-outloud/internal/errors"
	"github.com/zanti495-bot/web-bot-outloud/internal/events"
	"github.com/zanti495-bot/web-bot-outloud/internal/repository"
	"github.com/zanti495-bot/web-bot-outloud/pkg/metrics"
)

const (
	ActionBroadcast = "broadcast_from_admin"
	previewRunes    = 50
)

// Job is one broadcast request. It is JSON encoded when handed to the queue.
type Job struct {
	ID      string `json:"id"`
	ActorID int64  `json:"actor_id"`
	Text    string `json:"text"`
	Media   *Media `json:"media,omitempty"`
}

// Result counts outcomes. Unreachable recipients are included in Failed.
type Result struct {
	Total       int  `json:"total"`
	Sent        int  `json:"sent"`
	Failed      int  `json:"failed"`
	Unreachable int  `json:"unreachable"`
	Cancelled   bool `json:"cancelled"`
}

// errPacingDeadline means the context ends before the rate limiter would allow another send.
var errPacingDeadline = errors.New("broadcast deadline reached while pacing")

// ProgressFunc observes the running counts after each recipient.
type ProgressFunc func(Result)

type Config struct {
	RatePerSecond      float64
	MaxRetries         int
	RetryBackoff       time.Duration
	IncludeUnreachable bool
}

type forgetter interface {
	Forget(key string)
}

type Dispatcher struct {
	store     repository.Store
	sender    Sender
	stager    *Stager
	publisher events.Publisher
	limiter   *rate.Limiter
	retry     apperrors.RetryPolicy
	cfg       Config
	log       *slog.Logger
}

func NewDispatcher(store repository.Store, sender Sender, stager *Stager, publisher events.Publisher, cfg Config, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 30
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}

	return &Dispatcher{
		store:     store,
		sender:    sender,
		stager:    stager,
		publisher: publisher,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		retry: apperrors.RetryPolicy{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.RetryBackoff,
			MaxBackoff:     30 * time.Second,
		},
		cfg: cfg,
		log: log.With(slog.String("component", "broadcast")),
	}
}

// Broadcast sends job to a snapshot of the roster taken at the start of the run.
//
// A single recipient's failure never stops the run. Recipients whose failure matches
// the blocked or deactivated signature are marked unreachable. The only fatal error is
// failing to load the roster. Cancellation is checked before every recipient; a
// cancelled run still writes its summary and returns the partial result with ctx.Err().
// The staged attachment is removed on every exit path.
func (d *Dispatcher) Broadcast(ctx context.Context, job Job, progress ProgressFunc) (result Result, err error) {
	started := time.Now()
	log := d.log.With(slog.String("broadcast_id", job.ID))

	defer func() {
		if job.Media == nil {
			return
		}
		if f, ok := d.sender.(forgetter); ok {
			f.Forget(job.Media.Path)
		}
		if rmErr := d.stager.Remove(job.Media); rmErr != nil {
			log.Warn("staged media not removed", slog.String("path", job.Media.Path), slog.Any("error", rmErr))
		}
	}()

	var attachment *Attachment
	if job.Media != nil {
		attachment, err = d.stager.Load(job.Media)
		if err != nil {
			metrics.RecordBroadcastRun("failed", time.Since(started))
			return result, apperrors.NewValidationError(err.Error())
		}
	}

	recipients, err := d.store.Users().ListRecipients(ctx, d.cfg.IncludeUnreachable)
	if err != nil {
		log.Error("recipient snapshot failed", slog.Any("error", err))
		metrics.RecordBroadcastRun("failed", time.Since(started))
		if apperrors.KindOf(err) == "" {
			err = apperrors.NewDatabaseError(err)
		}
		return result, err
	}

	result.Total = len(recipients)
	log.Info("broadcast started", slog.Int("recipients", result.Total), slog.Bool("media", attachment != nil))

	for _, user := range recipients {
		if ctx.Err() != nil {
			result.Cancelled = true
			break
		}

		sendErr := d.deliver(ctx, user, job.Text, attachment)
		switch {
		case sendErr == nil:
			result.Sent++
			metrics.RecordBroadcastMessage("sent")
		case apperrors.IsPermanentDeliveryFailure(sendErr):
			result.Failed++
			result.Unreachable++
			metrics.RecordBroadcastMessage("unreachable")
			d.markUnreachable(ctx, log, user)
		case stoppedByContext(sendErr):
			result.Cancelled = true
		default:
			result.Failed++
			metrics.RecordBroadcastMessage("failed")
			log.Warn("delivery failed", slog.Int64("telegram_id", user.TelegramID), slog.Any("error", sendErr))
		}

		if result.Cancelled {
			break
		}

		if progress != nil {
			progress(result)
		}
	}

	status := "finished"
	if result.Cancelled {
		status = "cancelled"
	}
	metrics.RecordBroadcastRun(status, time.Since(started))

	d.summarize(context.WithoutCancel(ctx), log, job, result)

	if result.Cancelled {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		return result, context.DeadlineExceeded
	}

	return result, nil
}

func stoppedByContext(err error) bool {
	return errors.Is(err, errPacingDeadline) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// deliver paces the send and retries transient failures. The returned error is the
// provider's last error so signature matching sees the original text.
func (d *Dispatcher) deliver(ctx context.Context, user domain.User, text string, media *Attachment) error {
	var last error
	attempts := 0

	err := apperrors.WithRetryPolicy(ctx, d.retry, func() error {
		if err := d.limiter.Wait(ctx); err != nil {
			last = fmt.Errorf("%w: %v", errPacingDeadline, err)
			return last
		}

		attempts++
		if attempts > 1 {
			metrics.RecordBroadcastMessage("retried")
		}

		last = send(ctx, d.sender, user.TelegramID, text, media)
		if last == nil {
			return nil
		}

		return apperrors.NewDeliveryError(user.TelegramID, last)
	})
	if err == nil {
		return nil
	}

	if last != nil {
		return last
	}

	return err
}

func (d *Dispatcher) markUnreachable(ctx context.Context, log *slog.Logger, user domain.User) {
	if err := d.store.Users().MarkUnreachable(context.WithoutCancel(ctx), user.TelegramID); err != nil {
		log.Error("failed to mark user unreachable", slog.Int64("telegram_id", user.TelegramID), slog.Any("error", err))
		return
	}

	log.Info("user marked unreachable", slog.Int64("telegram_id", user.TelegramID))
}

func (d *Dispatcher) summarize(ctx context.Context, log *slog.Logger, job Job, result Result) {
	details := fmt.Sprintf("sent=%d failed=%d unreachable=%d total=%d cancelled=%t text=%q",
		result.Sent, result.Failed, result.Unreachable, result.Total, result.Cancelled, Preview(job.Text, previewRunes))
	if job.Media != nil {
		details += fmt.Sprintf(" media=%s:%s", job.Media.Kind, job.Media.Name)
	}

	if err := d.store.Audit().Append(ctx, domain.AuditLog{
		ActorID: job.ActorID,
		Action:  ActionBroadcast,
		Details: details,
	}); err != nil {
		log.Error("broadcast audit entry not written", slog.Any("error", err))
	}

	event := events.New(events.TypeBroadcastFinished, events.BroadcastFinished{
		BroadcastID: job.ID,
		Sent:        result.Sent,
		Failed:      result.Failed,
		Unreachable: result.Unreachable,
		Cancelled:   result.Cancelled,
	})
	if err := d.publisher.Publish(ctx, event); err != nil {
		log.Warn("broadcast event not published", slog.Any("error", err))
	}

	log.Info("broadcast finished",
		slog.Int("sent", result.Sent),
		slog.Int("failed", result.Failed),
		slog.Int("unreachable", result.Unreachable),
		slog.Bool("cancelled", result.Cancelled),
	)
}
