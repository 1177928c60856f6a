// Package jsonutil holds tolerant JSON helpers for model output.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when no JSON value can be recovered from the input.
var ErrNoJSON = errors.New("jsonutil: no JSON value found")

// Extract recovers a JSON value from model output. It accepts plain JSON,
// JSON wrapped in a Markdown code fence, and JSON encoded as a JSON string
// (one level deep).
func Extract(raw []byte) (json.RawMessage, error) {
	text := bytes.TrimSpace(raw)
	text = stripFence(text)
	if len(text) == 0 {
		return nil, ErrNoJSON
	}
	if !json.Valid(text) {
		if obj := outermostObject(text); obj != nil {
			return obj, nil
		}
		return nil, ErrNoJSON
	}
	if text[0] != '"' {
		return json.RawMessage(text), nil
	}

	var inner string
	if err := json.Unmarshal(text, &inner); err != nil {
		return nil, err
	}
	unwrapped := stripFence(bytes.TrimSpace([]byte(inner)))
	if len(unwrapped) > 0 && (unwrapped[0] == '{' || unwrapped[0] == '[') && json.Valid(unwrapped) {
		return json.RawMessage(unwrapped), nil
	}
	return json.RawMessage(text), nil
}

func stripFence(text []byte) []byte {
	if !bytes.HasPrefix(text, []byte("```")) {
		return text
	}
	body := text[3:]
	if nl := bytes.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = bytes.TrimPrefix(body, []byte("json"))
	}
	if end := bytes.LastIndex(body, []byte("```")); end >= 0 {
		body = body[:end]
	}
	return bytes.TrimSpace(body)
}

// outermostObject returns the span from the first '{' to the last '}' when
// that span is valid JSON. Models sometimes wrap the object in prose.
func outermostObject(text []byte) json.RawMessage {
	start := bytes.IndexByte(text, '{')
	end := bytes.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return nil
	}
	obj := text[start : end+1]
	if !json.Valid(obj) {
		return nil
	}
	return json.RawMessage(obj)
}

// MarshalNoEscape encodes v as indented JSON without escaping <, > and &.
func MarshalNoEscape(v any, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Compact trims whitespace from a JSON document for logging.
func Compact(raw []byte, limit int) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		buf.Reset()
		buf.Write(raw)
	}
	s := buf.String()
	if limit > 0 && len(s) > limit {
		return strings.ToValidUTF8(s[:limit], "") + "..."
	}
	return s
}
