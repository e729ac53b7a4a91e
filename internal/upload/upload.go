// Package upload pushes a chunk plan into a fresh agent session, one
// message per chunk, in order.
package upload

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/nubank/csvchat-backend/internal/chunk"
	"github.com/nubank/csvchat-backend/internal/provider"
)

var (
	ErrNoChunks         = errors.New("upload: no chunks to send")
	ErrEnvelopeTooLarge = errors.New("envelope exceeds hard cap")
)

// UploadError identifies the first chunk (1-based) that could not be sent.
// The whole upload is void; the caller has to start again from planning.
type UploadError struct {
	ChunkIndex int
	Total      int
	Cause      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload chunk %d/%d: %v", e.ChunkIndex, e.Total, e.Cause)
}

func (e *UploadError) Unwrap() error { return e.Cause }

// Handle is the remote session that holds the uploaded dataset.
type Handle struct {
	SessionID string
	Chunks    int
}

// Valid reports whether h refers to an established session.
func (h Handle) Valid() bool { return h.SessionID != "" }

// Progress is reported before each chunk is transmitted.
type Progress struct {
	Index int // 1-based
	Total int
	Chars int
}

type Options struct {
	// HardCap bounds the wrapped message; 0 means chunk.HardCap.
	HardCap     int
	DisplayName string
	Description string
}

// Uploader is not safe for concurrent use; one upload runs at a time.
type Uploader struct {
	transport   provider.AgentTransport
	hardCap     int
	displayName string
	description string
	log         *zap.Logger
}

func New(t provider.AgentTransport, opts Options, log *zap.Logger) *Uploader {
	if opts.HardCap <= 0 {
		opts.HardCap = chunk.HardCap
	}
	if opts.DisplayName == "" {
		opts.DisplayName = "csv-session"
	}
	if opts.Description == "" {
		opts.Description = "CSV context upload"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Uploader{
		transport:   t,
		hardCap:     opts.HardCap,
		displayName: opts.DisplayName,
		description: opts.Description,
		log:         log,
	}
}

// Upload creates a session on the first chunk and appends every following
// chunk to it. It stops at the first failure: no retry, no further calls,
// and the partially filled session is abandoned without remote cleanup.
func (u *Uploader) Upload(ctx context.Context, chunks []chunk.Chunk, onProgress func(Progress)) (Handle, error) {
	if len(chunks) == 0 {
		return Handle{}, ErrNoChunks
	}
	total := len(chunks)
	sessionID := ""

	for i, c := range chunks {
		idx := i + 1
		msg := chunk.WrapAt(c, idx, total)
		n := utf8.RuneCountInString(msg)
		if onProgress != nil {
			onProgress(Progress{Index: idx, Total: total, Chars: n})
		}
		if n > u.hardCap {
			return u.fail(sessionID, idx, total, fmt.Errorf("%w: %d > %d chars", ErrEnvelopeTooLarge, n, u.hardCap))
		}

		if sessionID == "" {
			id, err := u.transport.CreateSession(ctx, u.displayName, u.description)
			if err != nil {
				return u.fail(sessionID, idx, total, err)
			}
			sessionID = id
			u.log.Info("agent session created", zap.String("session_id", id), zap.Int("chunks", total))
		}

		if _, err := u.transport.SendMessage(ctx, sessionID, msg); err != nil {
			return u.fail(sessionID, idx, total, err)
		}
		u.log.Debug("chunk uploaded",
			zap.String("session_id", sessionID),
			zap.Int("chunk", idx),
			zap.Int("total", total),
			zap.Int("chars", n))
	}
	return Handle{SessionID: sessionID, Chunks: total}, nil
}

func (u *Uploader) fail(sessionID string, idx, total int, cause error) (Handle, error) {
	u.log.Error("chunk upload failed",
		zap.String("session_id", sessionID),
		zap.Int("chunk", idx),
		zap.Int("total", total),
		zap.Error(cause))
	return Handle{}, &UploadError{ChunkIndex: idx, Total: total, Cause: cause}
}
