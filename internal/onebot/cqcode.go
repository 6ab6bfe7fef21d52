package onebot

import (
	"sort"
	"strings"

	"github.com/sureshkrishnan-v/botreport/internal/event"
)

var (
	textEscaper   = strings.NewReplacer("&", "&amp;", "[", "&#91;", "]", "&#93;")
	paramEscaper  = strings.NewReplacer("&", "&amp;", "[", "&#91;", "]", "&#93;", ",", "&#44;")
	textUnescaper = strings.NewReplacer("&#91;", "[", "&#93;", "]", "&#44;", ",", "&amp;", "&")
)

// EncodeCQ renders segments as a CQ-code string, e.g. "hi[CQ:face,id=14]".
// Parameters are written in key order so output is deterministic.
func EncodeCQ(segs []event.Segment) string {
	var b strings.Builder
	for _, s := range segs {
		if s.Type == "text" {
			b.WriteString(textEscaper.Replace(s.Data["text"]))
			continue
		}
		b.WriteString("[CQ:")
		b.WriteString(s.Type)

		keys := make([]string, 0, len(s.Data))
		for k := range s.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteByte(',')
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(paramEscaper.Replace(s.Data[k]))
		}
		b.WriteByte(']')
	}
	return b.String()
}

// DecodeCQ parses a CQ-code string back into segments. Malformed codes
// are kept as literal text.
func DecodeCQ(s string) []event.Segment {
	var segs []event.Segment
	for len(s) > 0 {
		start := strings.Index(s, "[CQ:")
		if start < 0 {
			segs = appendText(segs, s)
			break
		}
		end := strings.IndexByte(s[start:], ']')
		if end < 0 {
			segs = appendText(segs, s)
			break
		}
		end += start

		segs = appendText(segs, s[:start])
		segs = append(segs, parseCode(s[start+len("[CQ:"):end]))
		s = s[end+1:]
	}
	return segs
}

func appendText(segs []event.Segment, raw string) []event.Segment {
	if raw == "" {
		return segs
	}
	return append(segs, event.Text(textUnescaper.Replace(raw)))
}

func parseCode(body string) event.Segment {
	parts := strings.Split(body, ",")
	seg := event.Segment{Type: parts[0], Data: make(map[string]string, len(parts)-1)}
	for _, p := range parts[1:] {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		seg.Data[k] = textUnescaper.Replace(v)
	}
	return seg
}
