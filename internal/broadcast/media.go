package broadcast

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MediaKind selects the Telegram send method for an attachment.
type MediaKind string

const (
	MediaPhoto    MediaKind = "photo"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
)

// KindFromFilename sniffs the attachment kind from its extension.
func KindFromFilename(name string) MediaKind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg":
		return MediaPhoto
	case ".mp4", ".avi":
		return MediaVideo
	default:
		return MediaDocument
	}
}

// Media is an attachment staged on local disk for the duration of one run.
type Media struct {
	Path string    `json:"path"`
	Name string    `json:"name"`
	Kind MediaKind `json:"kind"`
}

// Attachment is the in-memory payload handed to a Sender.
// Key identifies the staged file so senders can reuse an uploaded file id.
type Attachment struct {
	Key  string
	Name string
	Kind MediaKind
	Data []byte
}

const stagedPrefix = "broadcast-"

var ErrMediaTooLarge = errors.New("attachment exceeds size limit")

// Stager keeps uploaded attachments in a directory until their run ends.
type Stager struct {
	dir      string
	maxBytes int64
}

func NewStager(dir string, maxBytes int64) *Stager {
	return &Stager{dir: dir, maxBytes: maxBytes}
}

// Stage copies r into a new file under the staging directory.
func (s *Stager) Stage(name string, r io.Reader) (*Media, error) {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}

	base := filepath.Base(name)
	f, err := os.CreateTemp(s.dir, stagedPrefix+"*"+strings.ToLower(filepath.Ext(base)))
	if err != nil {
		return nil, fmt.Errorf("create staged file: %w", err)
	}

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}

	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()
	if copyErr == nil && s.maxBytes > 0 && n > s.maxBytes {
		copyErr = ErrMediaTooLarge
	}
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("stage %q: %w", base, err)
	}

	return &Media{Path: f.Name(), Name: base, Kind: KindFromFilename(base)}, nil
}

// Load reads the staged file once for the whole run.
func (s *Stager) Load(m *Media) (*Attachment, error) {
	// #nosec G304: paths are produced by Stage
	data, err := os.ReadFile(m.Path)
	if err != nil {
		return nil, fmt.Errorf("read staged media: %w", err)
	}

	return &Attachment{Key: m.Path, Name: m.Name, Kind: m.Kind, Data: data}, nil
}

// Remove deletes a staged file. A file that is already gone is not an error.
func (s *Stager) Remove(m *Media) error {
	if m == nil || m.Path == "" {
		return nil
	}

	if err := os.Remove(m.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove staged media: %w", err)
	}

	return nil
}

// Sweep removes staged files older than maxAge left behind by crashed runs.
func (s *Stager) Sweep(maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read media dir: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), stagedPrefix) {
			continue
		}

		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) < maxAge {
			continue
		}

		if err := os.Remove(filepath.Join(s.dir, e.Name())); err == nil {
			removed++
		}
	}

	return removed, nil
}

// Preview truncates text to at most n runes.
func Preview(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}

	return string(runes[:n])
}
