// Package query asks questions against an uploaded session and tears it down.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nubank/csvchat-backend/internal/provider"
	"github.com/nubank/csvchat-backend/internal/upload"
)

var (
	// ErrNoSession is a caller error: Ask needs an uploaded session.
	ErrNoSession     = errors.New("query: no established session")
	ErrEmptyQuestion = errors.New("query: empty question")
)

// QueryError is a failed exchange. The session stays usable and the same
// question may be asked again.
type QueryError struct {
	Cause error
}

func (e *QueryError) Error() string { return "query: " + e.Cause.Error() }
func (e *QueryError) Unwrap() error { return e.Cause }

// TeardownError is a failed remote delete. It is a warning only.
type TeardownError struct {
	SessionID string
	Cause     error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("delete session %s: %v", e.SessionID, e.Cause)
}

func (e *TeardownError) Unwrap() error { return e.Cause }

type Client struct {
	transport provider.AgentTransport
	log       *zap.Logger
}

func New(t provider.AgentTransport, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{transport: t, log: log}
}

// Ask sends one question and returns the raw answer. Nothing is cached.
func (c *Client) Ask(ctx context.Context, h upload.Handle, question string) (string, error) {
	if !h.Valid() {
		return "", ErrNoSession
	}
	if strings.TrimSpace(question) == "" {
		return "", ErrEmptyQuestion
	}
	answer, err := c.transport.SendMessage(ctx, h.SessionID, question)
	if err != nil {
		c.log.Warn("question failed", zap.String("session_id", h.SessionID), zap.Error(err))
		return "", &QueryError{Cause: err}
	}
	c.log.Debug("question answered",
		zap.String("session_id", h.SessionID),
		zap.Int("answer_chars", len(answer)))
	return answer, nil
}

// Close requests deletion of the remote session. A failure is logged and
// returned as *TeardownError; callers drop their handle either way.
func (c *Client) Close(ctx context.Context, h upload.Handle) error {
	if !h.Valid() {
		return nil
	}
	if err := c.transport.DeleteSession(ctx, h.SessionID); err != nil {
		c.log.Warn("session teardown failed", zap.String("session_id", h.SessionID), zap.Error(err))
		return &TeardownError{SessionID: h.SessionID, Cause: err}
	}
	c.log.Info("agent session deleted", zap.String("session_id", h.SessionID))
	return nil
}
