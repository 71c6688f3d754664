package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// ErrMalformed is returned by Decode for lines that are not a JSON object.
var ErrMalformed = errors.New("protocol: malformed message")

// wireMessage is the flat envelope. Fields are declared in key order so the
// encoder emits sorted keys.
type wireMessage struct {
	Content        string  `json:"content"`
	ContentLength  int     `json:"content_length"`
	Filename       *string `json:"filename"`
	JoinAccept     bool    `json:"join_accept"`
	JoinAnnounce   bool    `json:"join_announce"`
	JoinReject     bool    `json:"join_reject"`
	JoinRequest    bool    `json:"join_request"`
	QuitAccept     bool    `json:"quit_accept"`
	QuitRequest    bool    `json:"quit_request"`
	StatusRequest  bool    `json:"status_request"`
	StatusResponse bool    `json:"status_response"`
	Timestamp      string  `json:"timestamp"`
	UserCount      int     `json:"user_count"`
	Username       string  `json:"username"`
}

func defaultWire() wireMessage {
	return wireMessage{
		UserCount: -1,
		Username:  ServerName,
	}
}

// Encode serializes m as one newline-terminated JSON object.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, errors.New("protocol: encode nil message")
	}
	w := defaultWire()
	meta := m.Header()
	if meta.Username != "" {
		w.Username = meta.Username
	}
	ts := meta.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	w.Timestamp = ts.Format(TimeLayout)

	switch v := m.(type) {
	case StatusRequest:
		w.StatusRequest = true
	case StatusResponse:
		w.StatusResponse = true
		w.UserCount = v.UserCount
		w.Content = v.Content
	case JoinRequest:
		w.JoinRequest = true
	case JoinAccept:
		w.JoinAccept = true
		w.Content = v.Content
	case JoinReject:
		w.JoinReject = true
		w.Content = v.Content
	case JoinAnnounce:
		w.JoinAnnounce = true
		w.Content = v.Content
	case QuitRequest:
		w.QuitRequest = true
	case QuitAccept:
		w.QuitAccept = true
		w.Content = v.Content
	case Chat:
		w.Content = v.Content
		if v.Filename != "" {
			name := v.Filename
			w.Filename = &name
		}
	default:
		return nil, fmt.Errorf("protocol: unsupported message type %T", m)
	}
	w.ContentLength = utf8.RuneCountInString(w.Content)

	out, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", m.Kind(), err)
	}
	return append(out, '\n'), nil
}

// Decode parses one line into a message variant. Missing fields take their
// defaults and an absent or unparsable timestamp becomes the current time.
// If several discriminators are set, the first in wire precedence wins.
func Decode(line []byte) (Message, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, fmt.Errorf("%w: empty line", ErrMalformed)
	}
	w := defaultWire()
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	meta := Meta{Username: w.Username, Timestamp: parseTimestamp(w.Timestamp)}
	switch {
	case w.StatusRequest:
		return StatusRequest{Meta: meta}, nil
	case w.StatusResponse:
		return StatusResponse{Meta: meta, UserCount: w.UserCount, Content: w.Content}, nil
	case w.JoinRequest:
		return JoinRequest{Meta: meta}, nil
	case w.JoinAccept:
		return JoinAccept{Meta: meta, Content: w.Content}, nil
	case w.JoinReject:
		return JoinReject{Meta: meta, Content: w.Content}, nil
	case w.JoinAnnounce:
		return JoinAnnounce{Meta: meta, Content: w.Content}, nil
	case w.QuitRequest:
		return QuitRequest{Meta: meta}, nil
	case w.QuitAccept:
		return QuitAccept{Meta: meta, Content: w.Content}, nil
	}
	c := Chat{Meta: meta, Content: w.Content}
	if w.Filename != nil {
		c.Filename = *w.Filename
	}
	return c, nil
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Now()
	}
	ts, err := time.ParseInLocation(TimeLayout, s, time.Local)
	if err != nil {
		return time.Now()
	}
	return ts
}

// FormatTime renders t with the wire layout.
func FormatTime(t time.Time) string {
	return t.Format(TimeLayout)
}
