// Package onebot serializes bot events and meta events into the canonical
// OneBot v11 JSON shapes posted to the report endpoint.
package onebot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sureshkrishnan-v/botreport/internal/constants"
)

// LifecycleMeta is posted once when reporting starts (enable) and once
// when it stops (disable).
type LifecycleMeta struct {
	SelfID        int64  `json:"self_id"`
	Time          int64  `json:"time"`
	PostType      string `json:"post_type"`
	MetaEventType string `json:"meta_event_type"`
	SubType       string `json:"sub_type"`
}

// NewLifecycle builds a lifecycle meta event for phase enable|disable.
func NewLifecycle(selfID int64, phase string, now time.Time) LifecycleMeta {
	return LifecycleMeta{
		SelfID:        selfID,
		Time:          now.Unix(),
		PostType:      constants.PostTypeMetaEvent,
		MetaEventType: constants.MetaEventLifecycle,
		SubType:       phase,
	}
}

// Status is the plugin status carried by heartbeats.
type Status struct {
	AppInitialized bool `json:"app_initialized"`
	AppEnabled     bool `json:"app_enabled"`
	AppGood        bool `json:"app_good"`
	Online         bool `json:"online"`
	Good           bool `json:"good"`
}

// NewStatus derives the heartbeat status from the bot connection state.
func NewStatus(online bool) Status {
	return Status{
		AppInitialized: true,
		AppEnabled:     true,
		AppGood:        true,
		Online:         online,
		Good:           online,
	}
}

// HeartbeatMeta is posted periodically while heartbeats are enabled.
type HeartbeatMeta struct {
	SelfID        int64  `json:"self_id"`
	Time          int64  `json:"time"`
	PostType      string `json:"post_type"`
	MetaEventType string `json:"meta_event_type"`
	Status        Status `json:"status"`
	Interval      int64  `json:"interval"` // milliseconds
}

// NewHeartbeat builds a heartbeat meta event.
func NewHeartbeat(selfID int64, online bool, interval time.Duration, now time.Time) HeartbeatMeta {
	return HeartbeatMeta{
		SelfID:        selfID,
		Time:          now.Unix(),
		PostType:      constants.PostTypeMetaEvent,
		MetaEventType: constants.MetaEventHeartbeat,
		Status:        NewStatus(online),
		Interval:      interval.Milliseconds(),
	}
}

// Marshal encodes v as compact JSON. Map keys come out sorted, so equal
// payloads produce identical bytes (and identical signatures). HTML
// characters are left unescaped and json.Number values are written
// verbatim, so 64-bit ids decoded from the wire pass through exactly.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
