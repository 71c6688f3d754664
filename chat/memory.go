package chat

import (
	"sync"

	"github.com/iwanhae/chatroom/protocol"
)

// MemoryMessageStore is a simple in-memory message store. It never evicts.
type MemoryMessageStore struct {
	mu       sync.RWMutex
	messages []protocol.Chat
}

// NewMemoryMessageStore creates a new MemoryMessageStore.
func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{
		messages: make([]protocol.Chat, 0),
	}
}

func (s *MemoryMessageStore) Init() error {
	return nil
}

// AppendMessage appends a message to the store.
func (s *MemoryMessageStore) AppendMessage(msg protocol.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

// GetMessages returns messages from the store.
func (s *MemoryMessageStore) GetMessages(offset, limit int) ([]protocol.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	end := len(s.messages) - offset
	if end < 0 {
		end = 0
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	out := make([]protocol.Chat, end-start)
	copy(out, s.messages[start:end])
	return out, nil
}

func (s *MemoryMessageStore) GetMessageCount() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages), nil
}

func (s *MemoryMessageStore) Close() error {
	return nil
}
