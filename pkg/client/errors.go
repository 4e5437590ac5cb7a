package client

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ErrorKind classifies a failed transaction cache call
type ErrorKind string

const (
	KindRejected        ErrorKind = "rejected"
	KindUnreachable     ErrorKind = "unreachable"
	KindServiceDegraded ErrorKind = "service_degraded"
	KindBadResponse     ErrorKind = "bad_response"
)

// CacheSubmissionError is returned for every failed transaction cache call
type CacheSubmissionError struct {
	Op         string
	Endpoint   string
	StatusCode int
	Kind       ErrorKind
	Message    string
	Details    json.RawMessage
	Err        error
}

func (e *CacheSubmissionError) Error() string {
	switch e.Kind {
	case KindUnreachable:
		return fmt.Sprintf("%s: transaction cache unreachable at %s: %v", e.Op, e.Endpoint, e.Err)
	case KindBadResponse:
		return fmt.Sprintf("%s: unexpected response from %s: %v", e.Op, e.Endpoint, e.Err)
	}
	msg := e.Message
	if msg == "" {
		msg = "no error message"
	}
	return fmt.Sprintf("%s: transaction cache error (status %d): %s", e.Op, e.StatusCode, msg)
}

func (e *CacheSubmissionError) Unwrap() error { return e.Err }

// ServiceDegraded reports a generic server-side failure, as opposed to the
// cache rejecting this particular request.
func (e *CacheSubmissionError) ServiceDegraded() bool {
	return e.Kind == KindServiceDegraded
}

// classify picks the kind for an HTTP failure
func classify(status int, message string) ErrorKind {
	if status >= 500 && isGenericMessage(message) {
		return KindServiceDegraded
	}
	return KindRejected
}

func isGenericMessage(message string) bool {
	m := strings.ToLower(strings.TrimSpace(message))
	return m == "" || m == "internal server error" || m == "transaction cache error"
}

// extractMessage pulls a human message and structured details out of an
// error body. Non-JSON bodies become {"message": text}.
func extractMessage(body []byte) (string, json.RawMessage) {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "", nil
	}

	var errorResp map[string]interface{}
	if err := json.Unmarshal(body, &errorResp); err != nil {
		details, _ := json.Marshal(map[string]string{"message": text})
		return text, details
	}

	// Proxy envelopes nest the upstream body under "details"
	if nested, ok := errorResp["details"].(map[string]interface{}); ok {
		raw, _ := json.Marshal(nested)
		if msg := messageField(nested); msg != "" {
			return msg, raw
		}
		return stringField(errorResp, "error"), raw
	}

	return messageField(errorResp), json.RawMessage(body)
}

func messageField(m map[string]interface{}) string {
	if msg := stringField(m, "message"); msg != "" {
		return msg
	}
	if msg := stringField(m, "error"); msg != "" {
		return msg
	}
	if errs, ok := m["errors"]; ok {
		return fmt.Sprintf("%v", errs)
	}
	return ""
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}
