package onebot

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sureshkrishnan-v/botreport/internal/event"
)

func groupMessage() *event.Event {
	return &event.Event{
		Kind:    event.KindMessage,
		Detail:  "group",
		SubType: "normal",
		BotID:   10001,
		Time:    time.Unix(1700000000, 0),
		Message: []event.Segment{
			event.Text("hi [all] & "),
			{Type: "face", Data: map[string]string{"id": "14"}},
		},
		Fields: map[string]any{"group_id": 2, "user_id": 3, "message_id": 77},
	}
}

func decode(t *testing.T, b []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	return m
}

func TestCanonical_MessageString(t *testing.T) {
	b, err := Canonical{}.Serialize(groupMessage(), FormatString)
	require.NoError(t, err)

	m := decode(t, b)
	assert.Equal(t, "message", m["post_type"])
	assert.Equal(t, "group", m["message_type"])
	assert.Equal(t, "normal", m["sub_type"])
	assert.EqualValues(t, 10001, m["self_id"])
	assert.EqualValues(t, 1700000000, m["time"])
	assert.EqualValues(t, 2, m["group_id"])
	assert.Equal(t, "hi &#91;all&#93; &amp; [CQ:face,id=14]", m["message"])
	assert.Equal(t, m["message"], m["raw_message"])
}

func TestCanonical_MessageArray(t *testing.T) {
	b, err := Canonical{}.Serialize(groupMessage(), FormatArray)
	require.NoError(t, err)

	m := decode(t, b)
	segs, ok := m["message"].([]any)
	require.True(t, ok, "message should be an array, got %T", m["message"])
	require.Len(t, segs, 2)
	first := segs[0].(map[string]any)
	assert.Equal(t, "text", first["type"])
	assert.Equal(t, "hi [all] & ", first["data"].(map[string]any)["text"])
	assert.Equal(t, "hi &#91;all&#93; &amp; [CQ:face,id=14]", m["raw_message"])
}

func TestCanonical_EmptyMessageArray(t *testing.T) {
	e := groupMessage()
	e.Message = nil
	b, err := Canonical{}.Serialize(e, FormatArray)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"message":[]`)
}

func TestCanonical_Notice(t *testing.T) {
	e := &event.Event{
		Kind:   event.KindNotice,
		Detail: "group_increase",
		BotID:  1,
		Time:   time.Unix(5, 0),
		Fields: map[string]any{"operator_id": 9},
	}
	b, err := Canonical{}.Serialize(e, FormatString)
	require.NoError(t, err)

	m := decode(t, b)
	assert.Equal(t, "notice", m["post_type"])
	assert.Equal(t, "group_increase", m["notice_type"])
	assert.NotContains(t, m, "message")
	assert.NotContains(t, m, "sub_type")
}

func TestCanonical_Deterministic(t *testing.T) {
	a, err := Canonical{}.Serialize(groupMessage(), FormatString)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		b, err := Canonical{}.Serialize(groupMessage(), FormatString)
		require.NoError(t, err)
		require.Equal(t, a, b)
	}
	// Keys come out sorted.
	assert.Regexp(t, `^\{"group_id":2,"message":`, string(a))
}

func TestCanonical_LargeIntegersExact(t *testing.T) {
	e := &event.Event{
		Kind:   event.KindNotice,
		Detail: "friend_add",
		BotID:  9007199254740993,
		Time:   time.Unix(5, 0),
		Fields: map[string]any{
			"user_id":  json.Number("9007199254740995"),
			"group_id": int64(1<<62 + 1),
		},
	}
	b, err := Canonical{}.Serialize(e, FormatString)
	require.NoError(t, err)

	assert.Equal(t,
		`{"group_id":4611686018427387905,"notice_type":"friend_add","post_type":"notice","self_id":9007199254740993,"time":5,"user_id":9007199254740995}`,
		string(b))
}

func TestMarshal_NoHTMLEscaping(t *testing.T) {
	b, err := Marshal(map[string]any{"raw_message": "a<b>&c"})
	require.NoError(t, err)
	assert.Equal(t, `{"raw_message":"a<b>&c"}`, string(b))
}

func TestCanonical_Ignore(t *testing.T) {
	_, err := Canonical{}.Serialize(&event.Event{Kind: event.KindUnknown}, FormatString)
	assert.True(t, errors.Is(err, ErrIgnore))

	_, err = Canonical{}.Serialize(nil, FormatString)
	assert.True(t, errors.Is(err, ErrIgnore))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("array")
	require.NoError(t, err)
	assert.Equal(t, FormatArray, f)

	f, err = ParseFormat("string")
	require.NoError(t, err)
	assert.Equal(t, FormatString, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestMeta_Shapes(t *testing.T) {
	now := time.Unix(1234, 0)

	b, err := Marshal(NewLifecycle(7, "enable", now))
	require.NoError(t, err)
	assert.JSONEq(t, `{"self_id":7,"time":1234,"post_type":"meta_event","meta_event_type":"lifecycle","sub_type":"enable"}`, string(b))

	b, err = Marshal(NewHeartbeat(7, false, 15*time.Second, now))
	require.NoError(t, err)
	m := decode(t, b)
	assert.Equal(t, "heartbeat", m["meta_event_type"])
	assert.EqualValues(t, 15000, m["interval"])
	status := m["status"].(map[string]any)
	assert.Equal(t, false, status["online"])
	assert.Equal(t, false, status["good"])
	assert.Equal(t, true, status["app_enabled"])
}

func TestCQ_RoundTrip(t *testing.T) {
	segs := []event.Segment{
		event.Text("a&b[c]"),
		{Type: "image", Data: map[string]string{"file": "x,y.png", "url": "http://h/p?a=1&b=2"}},
		event.Text("tail"),
	}
	s := EncodeCQ(segs)
	assert.Equal(t, "a&amp;b&#91;c&#93;[CQ:image,file=x&#44;y.png,url=http://h/p?a=1&amp;b=2]tail", s)
	assert.Equal(t, segs, DecodeCQ(s))
}

func TestDecodeCQ_Malformed(t *testing.T) {
	got := DecodeCQ("hello [CQ:face,id=1")
	require.Len(t, got, 1)
	assert.Equal(t, "hello [CQ:face,id=1", got[0].Data["text"])

	assert.Empty(t, DecodeCQ(""))
}
