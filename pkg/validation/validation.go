// Package validation turns upstream 400 bodies into field-addressed errors
// for inline messages and the error summary banner.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrUnrecognisedBody = errors.New("validation: unrecognised error body")

// Error addresses one form field. Message is a translation lookup key; Value
// carries interpolation parameters such as a numeric limit.
type Error struct {
	Key     string `json:"key"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

type Errors []Error

type SummaryItem struct {
	Href    string `json:"href"`
	Key     string `json:"key"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

func New(key, message string) Error {
	return Error{Key: key, Message: messageKey(key, message)}
}

func (e Error) WithValue(v any) Error {
	e.Value = v
	return e
}

func (es Errors) Error() string {
	parts := make([]string, 0, len(es))
	for _, e := range es {
		parts = append(parts, e.Key+": "+e.Message)
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (es Errors) Summary() []SummaryItem {
	out := make([]SummaryItem, 0, len(es))
	for _, e := range es {
		out = append(out, SummaryItem{Href: "#" + e.Key, Key: e.Key, Message: e.Message, Value: e.Value})
	}
	return out
}

func (es Errors) ByKey() map[string]Error {
	out := make(map[string]Error, len(es))
	for _, e := range es {
		if _, ok := out[e.Key]; !ok {
			out[e.Key] = e
		}
	}
	return out
}

// Has reports whether any error key equals prefix or sits under it
// ("exporter" matches "exporter.postcode").
func (es Errors) Has(prefix string) bool {
	for _, e := range es {
		if e.Key == prefix || strings.HasPrefix(e.Key, prefix+".") {
			return true
		}
	}
	return false
}

type wireError struct {
	Key     string          `json:"key"`
	Message string          `json:"message"`
	Value   json.RawMessage `json:"value"`
}

// FromUpstream accepts either {"field":"message"} (sorted by field) or
// [{"key","message","value"}] (order kept). Both may be wrapped in {"errors":...}.
func FromUpstream(body []byte) (Errors, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, ErrUnrecognisedBody
	}
	switch body[0] {
	case '[':
		return fromArray(body)
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(body, &obj); err != nil {
			return nil, fmt.Errorf("decode error body: %w", err)
		}
		if inner, ok := obj["errors"]; ok && len(obj) == 1 {
			return FromUpstream(inner)
		}
		return fromObject(obj)
	default:
		return nil, ErrUnrecognisedBody
	}
}

func fromArray(body []byte) (Errors, error) {
	var items []wireError
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("decode error list: %w", err)
	}
	out := make(Errors, 0, len(items))
	for _, it := range items {
		key := strings.TrimSpace(it.Key)
		if key == "" {
			continue
		}
		out = append(out, New(key, it.Message).WithValue(decodeValue(it.Value)))
	}
	return out, nil
}

func fromObject(obj map[string]json.RawMessage) (Errors, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(Errors, 0, len(keys))
	for _, k := range keys {
		raw := obj[k]
		var msg string
		if err := json.Unmarshal(raw, &msg); err == nil {
			out = append(out, New(k, msg))
			continue
		}
		var it wireError
		if err := json.Unmarshal(raw, &it); err != nil {
			return nil, fmt.Errorf("decode error %q: %w", k, err)
		}
		out = append(out, New(k, it.Message).WithValue(decodeValue(it.Value)))
	}
	return out, nil
}

func decodeValue(raw json.RawMessage) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

func messageKey(key, message string) string {
	message = strings.TrimSpace(message)
	if strings.HasPrefix(message, "error.") {
		return message
	}
	if message == "" {
		message = "invalid"
	}
	return "error." + key + "." + message
}
