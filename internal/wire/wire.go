// Package wire holds the HTTP conventions shared by every call to the
// inventory backend: path normalization and the response envelope.
package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"
)

// maxMessage bounds the length in bytes of a raw error body used as a message.
const maxMessage = 200

// ErrRejected is returned when a 2xx response carries "success": false.
var ErrRejected = errors.New("request rejected by server")

// envelope is the wrapper the backend puts around most responses:
// {"success": true, "data": ..., "message": "..."} or
// {"success": false, "data": null, "error": "..."}.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

// NormalizePath strips the leading slash and makes sure the path ends in
// exactly one slash. Paths carrying a query string are returned untouched
// apart from the leading slash.
func NormalizePath(p string) string {
	p = strings.TrimLeft(p, "/")
	if p == "" || strings.Contains(p, "?") {
		return p
	}
	return strings.TrimRight(p, "/") + "/"
}

// Unwrap returns the payload of a response body. Enveloped bodies yield their
// "data" member and message; bare JSON bodies are returned as-is. A nil
// payload means the response carried no data.
func Unwrap(body []byte) (json.RawMessage, string, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, "", nil
	}
	if body[0] != '{' {
		return json.RawMessage(body), "", nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Success == nil {
		return json.RawMessage(body), "", nil
	}
	if !*env.Success {
		msg := env.Error
		if msg == "" {
			msg = env.Message
		}
		return nil, msg, errors.Join(ErrRejected, errors.New(msg))
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, env.Message, nil
	}
	return env.Data, env.Message, nil
}

// Decode unwraps body and decodes its payload into out. It is a no-op when
// the response carried no payload.
func Decode(body []byte, out any) error {
	data, _, err := Unwrap(body)
	if err != nil {
		return err
	}
	if data == nil || out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

// ErrorMessage extracts a human-readable message from an error response body.
func ErrorMessage(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ""
	}

	var fields struct {
		Error   string `json:"error"`
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &fields); err == nil {
		switch {
		case fields.Error != "":
			return fields.Error
		case fields.Detail != "":
			return fields.Detail
		case fields.Message != "":
			return fields.Message
		}
	}

	return truncate(string(body), maxMessage)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
