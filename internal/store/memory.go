package store

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nubank/csvchat-backend/internal"
	"github.com/nubank/csvchat-backend/internal/upload"
)

// MemoryStore is the ConversationState of one interactive session: the
// turns, the session handle they belong to, and the loaded dataset. It lives
// in memory only.
type MemoryStore struct {
	mu       sync.Mutex
	messages []internal.Message
	handle   upload.Handle
	dataset  *internal.DatasetInfo
	busy     bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{messages: make([]internal.Message, 0, 64)}
}

func (s *MemoryStore) All() []internal.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]internal.Message, len(s.messages))
	copy(cp, s.messages)
	return cp
}

// Append stores a new turn and returns it with its id and timestamp set.
func (s *MemoryStore) Append(role internal.Role, content string) internal.Message {
	msg := internal.Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return msg
}

// Attach binds a freshly uploaded session and starts an empty conversation.
func (s *MemoryStore) Attach(h upload.Handle, info internal.DatasetInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle = h
	s.dataset = &info
	s.messages = s.messages[:0]
}

func (s *MemoryStore) Handle() upload.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

func (s *MemoryStore) Dataset() *internal.DatasetInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dataset == nil {
		return nil
	}
	cp := *s.dataset
	return &cp
}

// Reset drops the handle, the dataset and every turn.
func (s *MemoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle = upload.Handle{}
	s.dataset = nil
	s.messages = s.messages[:0]
}

// TryBegin marks a request as in flight. It returns false when another one
// already is; the caller must then refuse the new request.
func (s *MemoryStore) TryBegin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false
	}
	s.busy = true
	return true
}

func (s *MemoryStore) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
}
