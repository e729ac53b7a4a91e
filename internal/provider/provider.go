package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxMessageChars is the hard ceiling the agent runtime accepts per message.
const MaxMessageChars = 24000

var (
	ErrUnknownSession  = errors.New("session not found")
	ErrMessageTooLarge = errors.New("message exceeds transport limit")
)

// AgentTransport is a stateful conversational agent reached over the network.
// SendMessage is only valid for a session returned by CreateSession.
type AgentTransport interface {
	Model() string
	CreateSession(ctx context.Context, displayName, description string) (string, error)
	SendMessage(ctx context.Context, sessionID, text string) (string, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

func checkSize(text string) error {
	if n := utf8.RuneCountInString(text); n > MaxMessageChars {
		return fmt.Errorf("%w: %d > %d chars", ErrMessageTooLarge, n, MaxMessageChars)
	}
	return nil
}

// MockProvider responde sin API externa y guarda las sesiones en memoria para desarrollo offline.
type MockProvider struct {
	mu       sync.Mutex
	sessions map[string][]string
}

func NewMockProvider() *MockProvider {
	return &MockProvider{sessions: make(map[string][]string)}
}

func (m *MockProvider) Model() string { return "mock-agent" }

func (m *MockProvider) CreateSession(_ context.Context, _, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.sessions[id] = nil
	return id, nil
}

func (m *MockProvider) SendMessage(_ context.Context, sessionID, text string) (string, error) {
	if err := checkSize(text); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	hist, ok := m.sessions[sessionID]
	if !ok {
		return "", fmt.Errorf("mock: %w: %s", ErrUnknownSession, sessionID)
	}
	m.sessions[sessionID] = append(hist, text)
	if strings.HasPrefix(text, "CSV DATA CHUNK ") {
		return "Acknowledged. (mock)", nil
	}
	return fmt.Sprintf("Entendido. (mock) %d mensajes en la sesión. Me pediste: %q", len(hist)+1, text), nil
}

func (m *MockProvider) DeleteSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return fmt.Errorf("mock: %w: %s", ErrUnknownSession, sessionID)
	}
	delete(m.sessions, sessionID)
	return nil
}

// Sessions returns the number of live sessions.
func (m *MockProvider) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
