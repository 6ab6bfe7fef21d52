package onebot

import (
	"errors"
	"fmt"

	"github.com/sureshkrishnan-v/botreport/internal/constants"
	"github.com/sureshkrishnan-v/botreport/internal/event"
)

// ErrIgnore marks an event that has no report representation.
var ErrIgnore = errors.New("onebot: event ignored")

// Format selects how the message field is rendered.
type Format string

const (
	FormatString Format = constants.MessageFormatString // CQ-code string
	FormatArray  Format = constants.MessageFormatArray  // segment array
)

// ParseFormat validates a post_message_format setting.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatString, FormatArray:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown message format %q (want %q or %q)", s, FormatString, FormatArray)
	}
}

// Serializer converts bus events into report bodies.
// Returning ErrIgnore means no report is made for the event.
type Serializer interface {
	Serialize(e *event.Event, f Format) ([]byte, error)
}

// Canonical is the default OneBot v11 serializer.
type Canonical struct{}

var _ Serializer = Canonical{}

// Serialize renders e as a canonical OneBot JSON object.
func (Canonical) Serialize(e *event.Event, f Format) ([]byte, error) {
	if e == nil || e.Kind == event.KindUnknown {
		return nil, ErrIgnore
	}
	postType := e.Kind.String()

	m := make(map[string]any, len(e.Fields)+7)
	for k, v := range e.Fields {
		m[k] = v
	}
	m["post_type"] = postType
	if e.Detail != "" {
		m[postType+"_type"] = e.Detail
	}
	if e.SubType != "" {
		m["sub_type"] = e.SubType
	}
	m["self_id"] = e.BotID
	m["time"] = e.Time.Unix()

	if e.Kind == event.KindMessage {
		raw := EncodeCQ(e.Message)
		m["raw_message"] = raw
		if f == FormatArray {
			segs := e.Message
			if segs == nil {
				segs = []event.Segment{}
			}
			m["message"] = segs
		} else {
			m["message"] = raw
		}
	}

	return Marshal(m)
}
