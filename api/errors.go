package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultFallback is used by FormatError when nothing better is available.
const DefaultFallback = "Something went wrong"

// maxErrorBody caps how much of an error response is retained.
const maxErrorBody = 64 << 10

// FieldError is one entry of a field-level validation error body, kept
// in the order the backend sent it.
type FieldError struct {
	Field    string
	Messages []string
}

// Error is a non-2xx backend response.
type Error struct {
	Status int
	// Detail is the "detail" string, if present.
	Detail string
	// Message is the "error" string, if present.
	Message string
	Fields  []FieldError
	Body    []byte
}

func (e *Error) Error() string {
	if msg := e.userMessage(); msg != "" {
		return fmt.Sprintf("api: status %d: %s", e.Status, msg)
	}
	return fmt.Sprintf("api: status %d", e.Status)
}

// FieldMessages returns the messages recorded for field, if any.
func (e *Error) FieldMessages(field string) []string {
	for _, f := range e.Fields {
		if f.Field == field {
			return f.Messages
		}
	}
	return nil
}

func (e *Error) userMessage() string {
	if e.Detail != "" {
		return e.Detail
	}
	if e.Message != "" {
		return e.Message
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+strings.Join(f.Messages, ", "))
	}
	return strings.Join(parts, ". ")
}

// FormatError renders err for display. Only backend error bodies are
// rendered; transport errors and anything else yield fallback so internal
// details never reach the user. An empty fallback selects DefaultFallback.
func FormatError(err error, fallback string) string {
	if fallback == "" {
		fallback = DefaultFallback
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return fallback
	}
	if msg := apiErr.userMessage(); msg != "" {
		return msg
	}
	return fallback
}

// ReadError consumes resp.Body and builds an *Error from it.
func ReadError(resp *http.Response) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return ParseError(resp.StatusCode, body)
}

// ParseError interprets a backend error body. Unrecognised bodies still
// produce an *Error carrying the status.
func ParseError(status int, body []byte) *Error {
	e := &Error{Status: status, Body: body}

	dec := json.NewDecoder(bytes.NewReader(body))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return e
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return e
		}
		key, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return e
		}

		var s string
		isString := json.Unmarshal(raw, &s) == nil
		switch {
		case key == "detail" && isString:
			e.Detail = s
		case key == "error" && isString:
			e.Message = s
		default:
			if msgs := fieldMessages(raw); len(msgs) > 0 {
				e.Fields = append(e.Fields, FieldError{Field: key, Messages: msgs})
			}
		}
	}
	return e
}

func fieldMessages(raw json.RawMessage) []string {
	var list []any
	if err := json.Unmarshal(raw, &list); err == nil {
		out := make([]string, 0, len(list))
		for _, v := range list {
			out = append(out, fmt.Sprint(v))
		}
		return out
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil || v == nil {
		return nil
	}
	return []string{fmt.Sprint(v)}
}
