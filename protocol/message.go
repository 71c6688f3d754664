// Package protocol defines the chatroom wire messages and their JSON line codec.
package protocol

import (
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// ServerName is the username carried by messages that do not name a user.
const ServerName = "Server"

// TimeLayout is the fixed timestamp pattern used on the wire.
const TimeLayout = "01-02-2006, 03:04:05 PM"

// Kind identifies a message variant.
type Kind int

const (
	KindContent Kind = iota
	KindStatusRequest
	KindStatusResponse
	KindJoinRequest
	KindJoinAccept
	KindJoinReject
	KindJoinAnnounce
	KindQuitRequest
	KindQuitAccept
)

var kindNames = map[Kind]string{
	KindContent:        "content",
	KindStatusRequest:  "status_request",
	KindStatusResponse: "status_response",
	KindJoinRequest:    "join_request",
	KindJoinAccept:     "join_accept",
	KindJoinReject:     "join_reject",
	KindJoinAnnounce:   "join_announce",
	KindQuitRequest:    "quit_request",
	KindQuitAccept:     "quit_accept",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Message is one of the variant types below. The set is closed.
type Message interface {
	Kind() Kind
	Header() Meta
	isMessage()
}

// Meta is carried by every variant.
type Meta struct {
	Username  string
	Timestamp time.Time
}

// Header returns the common fields.
func (m Meta) Header() Meta { return m }

func (Meta) isMessage() {}

// NewMeta stamps username with the current time. An empty username becomes ServerName.
func NewMeta(username string) Meta {
	if username == "" {
		username = ServerName
	}
	return Meta{Username: username, Timestamp: time.Now()}
}

type StatusRequest struct{ Meta }

type StatusResponse struct {
	Meta
	UserCount int
	Content   string
}

type JoinRequest struct{ Meta }

type JoinAccept struct {
	Meta
	Content string
}

type JoinReject struct {
	Meta
	Content string
}

type JoinAnnounce struct {
	Meta
	Content string
}

type QuitRequest struct{ Meta }

type QuitAccept struct {
	Meta
	Content string
}

// Chat is user content. When Filename is set, Content holds the base64 of the attachment.
type Chat struct {
	Meta
	Content  string
	Filename string
}

func (StatusRequest) Kind() Kind  { return KindStatusRequest }
func (StatusResponse) Kind() Kind { return KindStatusResponse }
func (JoinRequest) Kind() Kind    { return KindJoinRequest }
func (JoinAccept) Kind() Kind     { return KindJoinAccept }
func (JoinReject) Kind() Kind     { return KindJoinReject }
func (JoinAnnounce) Kind() Kind   { return KindJoinAnnounce }
func (QuitRequest) Kind() Kind    { return KindQuitRequest }
func (QuitAccept) Kind() Kind     { return KindQuitAccept }
func (Chat) Kind() Kind           { return KindContent }

// IsAttachment reports whether the message carries a file.
func (c Chat) IsAttachment() bool {
	return c.Filename != ""
}

// Attachment decodes the base64 payload of an attachment.
func (c Chat) Attachment() ([]byte, error) {
	if !c.IsAttachment() {
		return nil, errors.New("protocol: message has no attachment")
	}
	data, err := base64.StdEncoding.DecodeString(c.Content)
	if err != nil {
		return nil, fmt.Errorf("protocol: decode attachment %q: %w", c.Filename, err)
	}
	return data, nil
}

// NewAttachment builds a Chat carrying data under the base name of filename.
func NewAttachment(username, filename string, data []byte) Chat {
	return Chat{
		Meta:     NewMeta(username),
		Content:  base64.StdEncoding.EncodeToString(data),
		Filename: filepath.Base(filename),
	}
}
