// Package event provides the bot event type and the in-process event bus
// that the bot runtime publishes to and the reporter subscribes to.
package event

import (
	"time"

	"github.com/sureshkrishnan-v/botreport/internal/constants"
)

// Kind identifies the OneBot post type of an event.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindMessage      // private/group message
	KindNotice       // group increase, recall, poke, ...
	KindRequest      // friend/group add request
)

// String returns the OneBot post_type of the kind.
func (k Kind) String() string {
	switch k {
	case KindMessage:
		return constants.PostTypeMessage
	case KindNotice:
		return constants.PostTypeNotice
	case KindRequest:
		return constants.PostTypeRequest
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) Kind {
	switch s {
	case constants.PostTypeMessage:
		return KindMessage
	case constants.PostTypeNotice:
		return KindNotice
	case constants.PostTypeRequest:
		return KindRequest
	default:
		return KindUnknown
	}
}

// Segment is one element of a rich message (text, face, image, at, ...).
type Segment struct {
	Type string            `json:"type"`
	Data map[string]string `json:"data"`
}

// Text builds a plain text segment.
func Text(s string) Segment {
	return Segment{Type: "text", Data: map[string]string{"text": s}}
}

// Event is an immutable bot event as produced by the bot runtime.
//
// Design: structured fields for the attributes every event carries + a map
// for kind-specific data (user_id, group_id, message_id, ...).
type Event struct {
	Kind    Kind
	Detail  string // message_type / notice_type / request_type
	SubType string
	BotID   int64
	Time    time.Time

	// Message is set for KindMessage only.
	Message []Segment

	// Fields holds kind-specific attributes copied verbatim into the report.
	Fields map[string]any
}
