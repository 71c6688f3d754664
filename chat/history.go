package chat

import (
	"fmt"
	"strings"

	"github.com/iwanhae/chatroom/protocol"
)

// History is the append-only log of accepted chat messages replayed to newcomers.
type History struct {
	store MessageStore
}

// NewHistory wraps store. A nil store means an in-memory one.
func NewHistory(store MessageStore) *History {
	if store == nil {
		store = NewMemoryMessageStore()
	}
	return &History{store: store}
}

// Append adds msg at the end of the log.
func (h *History) Append(msg protocol.Chat) error {
	return h.store.AppendMessage(msg)
}

func (h *History) Len() (int, error) {
	return h.store.GetMessageCount()
}

// Render formats the whole log as one string, oldest message first.
func (h *History) Render() (string, error) {
	n, err := h.store.GetMessageCount()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	messages, err := h.store.GetMessages(0, n)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, msg := range messages {
		b.WriteString(FormatEntry(msg))
	}
	return b.String(), nil
}

// FormatEntry renders one history entry, newline-terminated. Attachments are
// decoded and shown after a marker line.
func FormatEntry(msg protocol.Chat) string {
	header := fmt.Sprintf("[%s] %s", protocol.FormatTime(msg.Timestamp), msg.Username)
	if msg.IsAttachment() {
		data, err := msg.Attachment()
		if err != nil {
			return fmt.Sprintf("%s shared %q: <undecodable attachment>\n", header, msg.Filename)
		}
		return fmt.Sprintf("%s shared %q:\n%s\n", header, msg.Filename, strings.TrimRight(string(data), "\n"))
	}
	return fmt.Sprintf("%s: %s\n", header, strings.TrimSpace(msg.Content))
}
