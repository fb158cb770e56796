package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/zanti495-bot/web-bot-outloud/internal/bot/keyboard"
	"github.com/zanti495-bot/web-bot-outloud/internal/broadcast"
	"github.com/zanti495-bot/web-bot-outloud/internal/domain"
	apperrors "github.com/zanti495-bot/web-bot-outloud/internal/errors"
	"github.com/zanti495-bot/web-bot-outloud/internal/state"
)

// StatsSource provides the dashboard summary.
type StatsSource interface {
	Stats(ctx context.Context) (domain.Stats, error)
}

// Submitter queues a broadcast.
type Submitter interface {
	Submit(ctx context.Context, actorID int64, text string, upload *broadcast.Upload) (broadcast.Status, error)
}

// FileFetcher downloads a file the admin sent to the bot. *telebot.Bot satisfies it.
type FileFetcher interface {
	File(file *telebot.File) (io.ReadCloser, error)
}

// NewStatsHandler replies with user, purchase and view counts and the most viewed blocks.
func NewStatsHandler(stats StatsSource, loc Localizer) Handler {
	return func(c telebot.Context) error {
		summary, err := stats.Stats(Context(c))
		if err != nil {
			return err
		}

		tr := Translator(loc, c)
		var b strings.Builder
		b.WriteString(tr.Tf("admin.stats", summary.Users, summary.Purchases, summary.Views))
		for i, block := range summary.TopBlocks {
			b.WriteString("\n")
			b.WriteString(tr.Tf("admin.top_block", i+1, block.Title, block.Views))
		}

		return c.Send(b.String())
	}
}

// NewBroadcastPromptHandler moves the admin into the awaiting-broadcast state.
func NewBroadcastPromptHandler(fsm state.StateMachine, kb *keyboard.Builder, loc Localizer) Handler {
	return func(c telebot.Context) error {
		err := fsm.TransitionTo(Context(c), c.Sender().ID, state.StateAwaitingBroadcast)
		if err != nil && !errors.Is(err, state.ErrInvalidTransition) {
			return err
		}

		tr := Translator(loc, c)
		return c.Send(tr.T("admin.broadcast_prompt"), kb.CancelButton(tr.T("admin.cancel_button")))
	}
}

// NewBroadcastMessageHandler submits the admin's next message, text or captioned media, as a broadcast.
// The state is cleared whether or not the submission succeeds.
func NewBroadcastMessageHandler(fsm state.StateMachine, submitter Submitter, files FileFetcher, loc Localizer, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(c telebot.Context) error {
		ctx := Context(c)
		adminID := c.Sender().ID
		tr := Translator(loc, c)

		defer func() {
			if err := fsm.ClearState(ctx, adminID); err != nil {
				log.Error("broadcast state not cleared", slog.Int64("telegram_id", adminID), slog.Any("error", err))
			}
		}()

		upload, closeUpload, err := attachment(c.Message(), files)
		if err != nil {
			return c.Send(tr.Tf("admin.broadcast_failed", err.Error()))
		}
		defer closeUpload()

		status, err := submitter.Submit(ctx, adminID, c.Text(), upload)
		if err != nil {
			if apperrors.KindOf(err) == apperrors.KindValidation {
				return c.Send(tr.Tf("admin.broadcast_failed", err.Error()))
			}
			return err
		}

		return c.Send(tr.Tf("admin.broadcast_queued", status.ID))
	}
}

// attachment opens the photo, video or document of msg. A text message has none.
func attachment(msg *telebot.Message, files FileFetcher) (*broadcast.Upload, func(), error) {
	noop := func() {}
	if msg == nil {
		return nil, noop, nil
	}

	var (
		file *telebot.File
		name string
	)
	switch {
	case msg.Photo != nil:
		file, name = &msg.Photo.File, "photo.jpg"
	case msg.Video != nil:
		file, name = &msg.Video.File, fallbackName(msg.Video.FileName, "video.mp4")
	case msg.Document != nil:
		file, name = &msg.Document.File, fallbackName(msg.Document.FileName, "document")
	default:
		return nil, noop, nil
	}

	if files == nil {
		return nil, noop, errors.New("media download is not available")
	}

	rc, err := files.File(file)
	if err != nil {
		return nil, noop, fmt.Errorf("download media: %w", err)
	}

	return &broadcast.Upload{Name: name, Reader: rc}, func() { _ = rc.Close() }, nil
}

func fallbackName(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
