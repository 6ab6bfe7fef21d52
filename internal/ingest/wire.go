package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sureshkrishnan-v/botreport/internal/event"
	"github.com/sureshkrishnan-v/botreport/internal/onebot"
)

// ErrUnsupported is returned for wire events whose post_type is not a
// bus event kind (meta events included).
var ErrUnsupported = errors.New("ingest: unsupported post_type")

// reserved keys are mapped onto Event fields rather than copied into Fields.
var reserved = map[string]bool{
	"post_type":   true,
	"sub_type":    true,
	"self_id":     true,
	"time":        true,
	"message":     true,
	"raw_message": true,
}

// Decode parses a OneBot-shaped JSON event as sent by the bot runtime:
//
//	{"post_type":"message","message_type":"group","self_id":1,"time":1700000000,
//	 "message":"hi[CQ:face,id=14]","group_id":2,"user_id":3}
//
// message may be a CQ-code string or a segment array. self_id falls back
// to botID and time to now. Numbers are kept exact.
func Decode(data []byte, botID int64, now time.Time) (*event.Event, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode wire event: %w", err)
	}

	postType, _ := m["post_type"].(string)
	kind := event.ParseKind(postType)
	if kind == event.KindUnknown {
		return nil, fmt.Errorf("%w %q", ErrUnsupported, postType)
	}
	detailKey := postType + "_type"

	e := &event.Event{
		Kind:   kind,
		BotID:  botID,
		Time:   now,
		Fields: make(map[string]any, len(m)),
	}
	e.Detail, _ = m[detailKey].(string)
	e.SubType, _ = m["sub_type"].(string)

	if n, ok := m["self_id"].(json.Number); ok {
		id, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("self_id: %w", err)
		}
		e.BotID = id
	}
	if n, ok := m["time"].(json.Number); ok {
		sec, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("time: %w", err)
		}
		e.Time = time.Unix(sec, 0)
	}

	if kind == event.KindMessage {
		segs, err := decodeMessage(m["message"], m["raw_message"])
		if err != nil {
			return nil, err
		}
		e.Message = segs
	}

	for k, v := range m {
		if reserved[k] || k == detailKey {
			continue
		}
		e.Fields[k] = v
	}
	return e, nil
}

func decodeMessage(msg, raw any) ([]event.Segment, error) {
	switch v := msg.(type) {
	case string:
		return onebot.DecodeCQ(v), nil
	case []any:
		segs := make([]event.Segment, 0, len(v))
		for i, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("message[%d] is not an object", i)
			}
			typ, _ := obj["type"].(string)
			if typ == "" {
				return nil, fmt.Errorf("message[%d] has no type", i)
			}
			seg := event.Segment{Type: typ, Data: map[string]string{}}
			if data, ok := obj["data"].(map[string]any); ok {
				for k, val := range data {
					seg.Data[k] = fmt.Sprint(val)
				}
			}
			segs = append(segs, seg)
		}
		return segs, nil
	case nil:
		if s, ok := raw.(string); ok {
			return onebot.DecodeCQ(s), nil
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("message has unsupported type %T", msg)
	}
}
