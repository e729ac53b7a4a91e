// Package conversation wires planning, upload and querying around one
// ConversationState.
package conversation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nubank/csvchat-backend/internal"
	"github.com/nubank/csvchat-backend/internal/chunk"
	"github.com/nubank/csvchat-backend/internal/dataset"
	"github.com/nubank/csvchat-backend/internal/provider"
	"github.com/nubank/csvchat-backend/internal/query"
	"github.com/nubank/csvchat-backend/internal/render"
	"github.com/nubank/csvchat-backend/internal/store"
	"github.com/nubank/csvchat-backend/internal/upload"
)

var ErrNoRows = errors.New("dataset has no rows")

type Options struct {
	MaxChars int
	Overhead int
	Upload   upload.Options
}

// Service runs the upload-then-ask flow. Calls must not overlap; the HTTP
// layer gates them with MemoryStore.TryBegin.
type Service struct {
	state     *store.MemoryStore
	transport provider.AgentTransport
	uploader  *upload.Uploader
	queries   *query.Client
	maxChars  int
	overhead  int
	log       *zap.Logger
}

func NewService(t provider.AgentTransport, state *store.MemoryStore, opts Options, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = chunk.DefaultMaxChars
	}
	if opts.Overhead < 0 {
		opts.Overhead = chunk.DefaultOverhead
	}
	return &Service{
		state:     state,
		transport: t,
		uploader:  upload.New(t, opts.Upload, log.Named("upload")),
		queries:   query.New(t, log.Named("query")),
		maxChars:  opts.MaxChars,
		overhead:  opts.Overhead,
		log:       log,
	}
}

func (s *Service) Model() string { return s.transport.Model() }

func (s *Service) State() *store.MemoryStore { return s.state }

// Load replaces the current dataset: it plans ds, deletes any previous
// session (best effort, a failure comes back as the response warning),
// uploads every chunk into a new session and starts an empty conversation.
// maxChars <= 0 uses the configured budget.
func (s *Service) Load(ctx context.Context, name string, ds *dataset.Dataset, maxChars int, onProgress func(upload.Progress)) (internal.UploadCSVResponse, error) {
	if maxChars <= 0 {
		maxChars = s.maxChars
	}
	chunks, err := chunk.Plan(ds, maxChars, s.overhead)
	if err != nil {
		return internal.UploadCSVResponse{}, err
	}
	if len(chunks) == 0 {
		return internal.UploadCSVResponse{}, ErrNoRows
	}
	sum := chunk.Summarize(chunks)
	if len(sum.Oversized) > 0 {
		s.log.Warn("rows larger than chunk budget sent alone",
			zap.Ints("chunks", sum.Oversized),
			zap.Int("budget", maxChars-s.overhead))
	}
	s.log.Info("dataset planned",
		zap.String("name", name),
		zap.Int("rows", len(ds.Rows)),
		zap.Int("chunks", sum.Count),
		zap.Int("min_chars", sum.MinChars),
		zap.Int("max_chars", sum.MaxChars))

	var warning string
	if err := s.Reset(ctx); err != nil {
		warning = err.Error()
	}

	h, err := s.uploader.Upload(ctx, chunks, onProgress)
	if err != nil {
		return internal.UploadCSVResponse{}, err
	}
	info := internal.DatasetInfo{
		Name:    name,
		Columns: ds.Columns,
		Rows:    len(ds.Rows),
		Chunks:  sum.Count,
		MinSize: sum.MinChars,
		MaxSize: sum.MaxChars,
	}
	s.state.Attach(h, info)
	return internal.UploadCSVResponse{Dataset: info, SessionID: h.SessionID, Oversized: sum.Oversized, Warning: warning}, nil
}

// Ask sends question to the loaded session. Both turns are recorded only when
// the exchange succeeds, so a failed question can simply be asked again.
func (s *Service) Ask(ctx context.Context, question string) (internal.Message, render.Result, error) {
	h := s.state.Handle()
	answer, err := s.queries.Ask(ctx, h, question)
	if err != nil {
		return internal.Message{}, render.Result{}, err
	}
	s.state.Append(internal.RoleUser, question)
	reply := s.state.Append(internal.RoleAssistant, answer)
	return reply, render.Classify(answer), nil
}

// Reset forgets the dataset and conversation and asks the agent to delete
// the session. Local state is cleared even when the delete fails; the
// returned *query.TeardownError is a warning.
func (s *Service) Reset(ctx context.Context) error {
	h := s.state.Handle()
	s.state.Reset()
	if err := s.queries.Close(ctx, h); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

// History returns every turn, assistant answers already classified.
func (s *Service) History() []internal.RenderedMessage {
	msgs := s.state.All()
	out := make([]internal.RenderedMessage, 0, len(msgs))
	for _, m := range msgs {
		rm := internal.RenderedMessage{Message: m}
		if m.Role == internal.RoleAssistant {
			a := ToAnswer(render.Classify(m.Content))
			rm.Answer = &a
		}
		out = append(out, rm)
	}
	return out
}

func ToAnswer(r render.Result) internal.Answer {
	return internal.Answer{Kind: string(r.Kind), Columns: r.Columns, Rows: r.Rows, Text: r.Text}
}
