package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StringList decodes a JSON array whose items are strings, nested string
// arrays (joined with "/"), or other scalars. Models describe phoneme
// confusions both as ["b/d"] and as [["b","d"]].
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = nil
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("string list: %w", err)
	}
	out := make(StringList, 0, len(items))
	for _, raw := range items {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			out = append(out, s)
			continue
		}
		var parts []string
		if err := json.Unmarshal(raw, &parts); err == nil {
			out = append(out, strings.Join(parts, "/"))
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("string list item: %w", err)
		}
		out = append(out, fmt.Sprint(v))
	}
	*l = out
	return nil
}
