package chat

import "github.com/iwanhae/chatroom/protocol"

// MessageStore keeps accepted chat messages in arrival order.
type MessageStore interface {
	Init() error
	AppendMessage(msg protocol.Chat) error
	// GetMessages returns up to limit messages ending offset messages before
	// the newest one, oldest first.
	GetMessages(offset, limit int) ([]protocol.Chat, error)
	GetMessageCount() (int, error)
	Close() error
}
