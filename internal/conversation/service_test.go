package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nubank/csvchat-backend/internal"
	"github.com/nubank/csvchat-backend/internal/dataset"
	"github.com/nubank/csvchat-backend/internal/provider"
	"github.com/nubank/csvchat-backend/internal/query"
	"github.com/nubank/csvchat-backend/internal/render"
	"github.com/nubank/csvchat-backend/internal/store"
	"github.com/nubank/csvchat-backend/internal/upload"
)

// scriptedTransport wraps the mock provider with canned answers and
// injectable failures.
type scriptedTransport struct {
	*provider.MockProvider
	answer    string
	failSend  int
	failAsk   bool
	deleteErr error
	sends     int
}

func (s *scriptedTransport) SendMessage(ctx context.Context, id, text string) (string, error) {
	s.sends++
	if s.sends == s.failSend {
		return "", errors.New("boom")
	}
	isChunk := strings.HasPrefix(text, "CSV DATA CHUNK")
	if !isChunk && s.failAsk {
		return "", errors.New("agent unavailable")
	}
	reply, err := s.MockProvider.SendMessage(ctx, id, text)
	if err != nil || isChunk || s.answer == "" {
		return reply, err
	}
	return s.answer, nil
}

func (s *scriptedTransport) DeleteSession(ctx context.Context, id string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.MockProvider.DeleteSession(ctx, id)
}

func sample(rows int) *dataset.Dataset {
	ds := &dataset.Dataset{Columns: []string{"city", "sales"}}
	for i := 0; i < rows; i++ {
		ds.Rows = append(ds.Rows, []string{fmt.Sprintf("city-%02d", i), fmt.Sprint(i * 10)})
	}
	return ds
}

func newService(t *testing.T, tr provider.AgentTransport) *Service {
	t.Helper()
	return NewService(tr, store.NewMemoryStore(), Options{MaxChars: 200, Overhead: 20}, zaptest.NewLogger(t))
}

func TestLoadAskReset(t *testing.T) {
	tr := &scriptedTransport{MockProvider: provider.NewMockProvider(), answer: `[{"city":"city-01","sales":10}]`}
	svc := newService(t, tr)
	ctx := context.Background()

	var progress []upload.Progress
	res, err := svc.Load(ctx, "ventas.csv", sample(40), 0, func(p upload.Progress) { progress = append(progress, p) })
	require.NoError(t, err)
	assert.Equal(t, "ventas.csv", res.Dataset.Name)
	assert.Equal(t, 40, res.Dataset.Rows)
	assert.Greater(t, res.Dataset.Chunks, 1)
	assert.Len(t, progress, res.Dataset.Chunks)
	assert.Equal(t, res.Dataset.Chunks, tr.sends)
	assert.Equal(t, 1, tr.Sessions())

	reply, result, err := svc.Ask(ctx, "top city?")
	require.NoError(t, err)
	assert.Equal(t, internal.RoleAssistant, reply.Role)
	assert.Equal(t, render.KindTable, result.Kind)

	hist := svc.History()
	require.Len(t, hist, 2)
	assert.Nil(t, hist[0].Answer)
	require.NotNil(t, hist[1].Answer)
	assert.Equal(t, "table", hist[1].Answer.Kind)

	require.NoError(t, svc.Reset(ctx))
	assert.Equal(t, 0, tr.Sessions())
	assert.Empty(t, svc.History())
	assert.Nil(t, svc.State().Dataset())
}

func TestLoad_ReplacesPreviousSession(t *testing.T) {
	tr := &scriptedTransport{MockProvider: provider.NewMockProvider()}
	svc := newService(t, tr)
	ctx := context.Background()

	first, err := svc.Load(ctx, "a.csv", sample(3), 0, nil)
	require.NoError(t, err)
	_, _, err = svc.Ask(ctx, "q")
	require.NoError(t, err)

	second, err := svc.Load(ctx, "b.csv", sample(3), 0, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, second.SessionID)
	assert.Equal(t, 1, tr.Sessions())
	assert.Empty(t, svc.History())
	assert.Empty(t, second.Warning)
}

func TestLoad_ReportsTeardownWarning(t *testing.T) {
	tr := &scriptedTransport{MockProvider: provider.NewMockProvider()}
	svc := newService(t, tr)
	ctx := context.Background()

	first, err := svc.Load(ctx, "a.csv", sample(3), 0, nil)
	require.NoError(t, err)
	assert.Empty(t, first.Warning)

	tr.deleteErr = errors.New("403")
	second, err := svc.Load(ctx, "b.csv", sample(3), 0, nil)
	require.NoError(t, err)
	assert.Contains(t, second.Warning, "403")
	assert.Contains(t, second.Warning, first.SessionID)
	assert.Equal(t, second.SessionID, svc.State().Handle().SessionID)
}

func TestLoad_UploadFailureLeavesNoSession(t *testing.T) {
	tr := &scriptedTransport{MockProvider: provider.NewMockProvider(), failSend: 2}
	svc := newService(t, tr)

	_, err := svc.Load(context.Background(), "x.csv", sample(40), 0, nil)
	var ue *upload.UploadError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, 2, ue.ChunkIndex)
	assert.False(t, svc.State().Handle().Valid())

	_, _, err = svc.Ask(context.Background(), "q")
	assert.ErrorIs(t, err, query.ErrNoSession)
}

func TestLoad_Rejections(t *testing.T) {
	svc := newService(t, &scriptedTransport{MockProvider: provider.NewMockProvider()})
	ctx := context.Background()

	_, err := svc.Load(ctx, "e.csv", &dataset.Dataset{Columns: []string{"a"}}, 0, nil)
	assert.ErrorIs(t, err, ErrNoRows)

	_, err = svc.Load(ctx, "r.csv", &dataset.Dataset{Columns: []string{"a", "b"}, Rows: [][]string{{"1"}}}, 0, nil)
	assert.ErrorIs(t, err, dataset.ErrMalformed)
}

func TestAsk_FailureKeepsSession(t *testing.T) {
	tr := &scriptedTransport{MockProvider: provider.NewMockProvider(), answer: "42", failAsk: true}
	svc := newService(t, tr)
	ctx := context.Background()

	_, err := svc.Load(ctx, "a.csv", sample(2), 0, nil)
	require.NoError(t, err)

	_, _, err = svc.Ask(ctx, "q")
	var qe *query.QueryError
	require.ErrorAs(t, err, &qe)
	assert.True(t, svc.State().Handle().Valid())
	assert.Empty(t, svc.History())

	tr.failAsk = false
	_, result, err := svc.Ask(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, render.KindText, result.Kind)
	assert.Equal(t, "42", result.Text)
}

func TestReset_TeardownFailureStillClears(t *testing.T) {
	tr := &scriptedTransport{MockProvider: provider.NewMockProvider(), deleteErr: errors.New("403")}
	svc := newService(t, tr)
	ctx := context.Background()

	_, err := svc.Load(ctx, "a.csv", sample(2), 0, nil)
	require.NoError(t, err)

	err = svc.Reset(ctx)
	var te *query.TeardownError
	require.ErrorAs(t, err, &te)
	assert.False(t, svc.State().Handle().Valid())
	assert.Nil(t, svc.State().Dataset())
}
