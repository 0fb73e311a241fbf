package protocol

import (
	"strings"

	"github.com/tidwall/gjson"
)

// segmentFields are the keys a rich text segment may carry its text under,
// in lookup order.
var segmentFields = [...]string{"text", "player_name", "item_name", "location_name"}

// DetectMessageType maps a PrintJSON type tag to a message category.
// An empty or unrecognized tag is treated as chat.
func DetectMessageType(tag string) MessageType {
	switch tag {
	case "ItemSend":
		return MessageItemSend
	case "ItemCheat":
		return MessageItemReceived
	case "Hint":
		return MessageHint
	case "Join", "Part":
		return MessageServerInfo
	case "Chat":
		return MessageChat
	case "Goal":
		return MessageGoalComplete
	default:
		return MessageChat
	}
}

// ParseTextSegments flattens a JSON array of rich text segments into one
// line. Each segment is either a bare string or an object holding its text
// under one of text, player_name, item_name or location_name. Formatting
// attributes such as color are dropped.
func ParseTextSegments(segments []byte) string {
	return parseSegments(gjson.ParseBytes(segments))
}

func parseSegments(r gjson.Result) string {
	var b strings.Builder
	r.ForEach(func(_, seg gjson.Result) bool {
		switch {
		case seg.Type == gjson.String:
			b.WriteString(seg.String())
		case seg.IsObject():
			for _, f := range segmentFields {
				if v := seg.Get(f); v.Exists() {
					b.WriteString(v.String())
					break
				}
			}
		}
		return true
	})
	return b.String()
}
