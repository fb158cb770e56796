package broadcast

import (
	"bytes"
	"context"
	"sync"

	tele "gopkg.in/telebot.v3"
)

// Sender delivers one message to one recipient. Errors carry the provider's text,
// which the dispatcher inspects to detect unreachable recipients.
type Sender interface {
	SendText(ctx context.Context, recipient int64, text string) error
	SendPhoto(ctx context.Context, recipient int64, media *Attachment, caption string) error
	SendVideo(ctx context.Context, recipient int64, media *Attachment, caption string) error
	SendDocument(ctx context.Context, recipient int64, media *Attachment, caption string) error
}

// send picks the Sender method matching the attachment kind.
func send(ctx context.Context, s Sender, recipient int64, text string, media *Attachment) error {
	if media == nil {
		return s.SendText(ctx, recipient, text)
	}

	switch media.Kind {
	case MediaPhoto:
		return s.SendPhoto(ctx, recipient, media, text)
	case MediaVideo:
		return s.SendVideo(ctx, recipient, media, text)
	default:
		return s.SendDocument(ctx, recipient, media, text)
	}
}

// TelebotSender sends through the Bot API with Markdown parsing.
// After the first successful upload of an attachment its Telegram file id is reused.
type TelebotSender struct {
	bot *tele.Bot

	mu      sync.Mutex
	fileIDs map[string]string
}

func NewTelebotSender(bot *tele.Bot) *TelebotSender {
	return &TelebotSender{bot: bot, fileIDs: make(map[string]string)}
}

func (s *TelebotSender) SendText(ctx context.Context, recipient int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.bot.Send(tele.ChatID(recipient), text, tele.ModeMarkdown)

	return err
}

func (s *TelebotSender) SendPhoto(ctx context.Context, recipient int64, media *Attachment, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := s.bot.Send(tele.ChatID(recipient), &tele.Photo{File: s.file(media), Caption: caption}, tele.ModeMarkdown)
	if err == nil && msg != nil && msg.Photo != nil {
		s.remember(media, msg.Photo.FileID)
	}

	return err
}

func (s *TelebotSender) SendVideo(ctx context.Context, recipient int64, media *Attachment, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	video := &tele.Video{File: s.file(media), Caption: caption, FileName: media.Name}
	msg, err := s.bot.Send(tele.ChatID(recipient), video, tele.ModeMarkdown)
	if err == nil && msg != nil && msg.Video != nil {
		s.remember(media, msg.Video.FileID)
	}

	return err
}

func (s *TelebotSender) SendDocument(ctx context.Context, recipient int64, media *Attachment, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := &tele.Document{File: s.file(media), Caption: caption, FileName: media.Name}
	msg, err := s.bot.Send(tele.ChatID(recipient), doc, tele.ModeMarkdown)
	if err == nil && msg != nil && msg.Document != nil {
		s.remember(media, msg.Document.FileID)
	}

	return err
}

func (s *TelebotSender) file(media *Attachment) tele.File {
	s.mu.Lock()
	id, ok := s.fileIDs[media.Key]
	s.mu.Unlock()

	if ok {
		return tele.File{FileID: id}
	}

	return tele.FromReader(bytes.NewReader(media.Data))
}

func (s *TelebotSender) remember(media *Attachment, fileID string) {
	if fileID == "" {
		return
	}

	s.mu.Lock()
	s.fileIDs[media.Key] = fileID
	s.mu.Unlock()
}

// Forget drops the cached file id once a run is over.
func (s *TelebotSender) Forget(key string) {
	s.mu.Lock()
	delete(s.fileIDs, key)
	s.mu.Unlock()
}

var _ Sender = (*TelebotSender)(nil)
