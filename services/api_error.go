package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-2xx answer from the support API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("source api error (%d, %s): %s", e.Status, e.Code, e.Message)
	case e.Message != "":
		return fmt.Sprintf("source api error (%d): %s", e.Status, e.Message)
	case e.Code != "":
		return fmt.Sprintf("source api error (%d, %s)", e.Status, e.Code)
	default:
		return fmt.Sprintf("source api error (%d)", e.Status)
	}
}

// errorEnvelope covers the shapes the API uses for failures:
// {"error": "..."}, {"error": {"code", "message"}}, {"message": "..."} and
// {"errors": ["..."]}.
type errorEnvelope struct {
	Error   json.RawMessage `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
	Errors  []string        `json:"errors,omitempty"`
}

type errorDetail struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func buildAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{Status: statusCode}

	var envelope errorEnvelope
	if len(body) > 0 && json.Unmarshal(body, &envelope) == nil {
		if len(envelope.Error) > 0 {
			var detail errorDetail
			var text string
			if json.Unmarshal(envelope.Error, &detail) == nil {
				apiErr.Code = strings.TrimSpace(detail.Code)
				apiErr.Message = strings.TrimSpace(detail.Message)
			} else if json.Unmarshal(envelope.Error, &text) == nil {
				apiErr.Message = strings.TrimSpace(text)
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(envelope.Message)
		}
		if apiErr.Message == "" && len(envelope.Errors) > 0 {
			apiErr.Message = strings.Join(envelope.Errors, "; ")
		}
		if apiErr.Message != "" || apiErr.Code != "" {
			return apiErr
		}
	}

	snippet := strings.TrimSpace(string(body))
	if snippet == "" {
		snippet = http.StatusText(statusCode)
	}
	if len(snippet) > 256 {
		snippet = snippet[:256]
	}
	apiErr.Message = snippet

	return apiErr
}
