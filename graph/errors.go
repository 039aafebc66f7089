package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoAccessToken means the token endpoint answered 200 but the body
	// carried no access_token field.
	ErrNoAccessToken = errors.New("token response carries no access_token")

	// ErrBadResponse means a Graph response was not JSON, or lacked a field
	// the record model requires.
	ErrBadResponse = errors.New("malformed graph response")

	// ErrNotFound means a filter query matched no directory object.
	ErrNotFound = errors.New("no matching directory object")

	// ErrTooManyResults means a filter query that must match exactly one
	// object matched several.
	ErrTooManyResults = errors.New("more than one matching directory object")
)

// expiredPageTokenMarker is the error code the Graph emits when a skiptoken
// from an earlier page has lapsed. Requests failing with it may be replayed.
const expiredPageTokenMarker = "Directory_ExpiredPageToken"

// HTTPStatusError is a non-2xx answer from the token endpoint or the Graph.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if g := decodeGraphError([]byte(e.Body)); g != nil {
		return fmt.Sprintf("graph returned status %d: %v", e.StatusCode, g)
	}
	return fmt.Sprintf("graph returned status %d", e.StatusCode)
}

func (e *HTTPStatusError) expiredPageToken() bool {
	return strings.Contains(e.Body, expiredPageTokenMarker)
}

// UnusableIdentifierError means a principal's security identifier cannot
// yield a POSIX id: the RID is missing, unparseable, or reserved (< 1000).
// This is a permanent defect of the identity, not a retrieval failure.
type UnusableIdentifierError struct {
	SID string
}

func (e *UnusableIdentifierError) Error() string {
	return fmt.Sprintf("security identifier %q has no usable RID", e.SID)
}

type graphErrorResponse struct {
	Error *GraphError `json:"odata.error,omitempty"`
}

// GraphError is the structured error body the Graph attaches to failures.
// Used for diagnostics only; status translation keys off HTTPStatusError.
type GraphError struct {
	Code    string `json:"code,omitempty"`
	Message struct {
		Value string `json:"value,omitempty"`
	} `json:"message,omitempty"`
}

func (g *GraphError) Error() string {
	var parts []string
	if g.Code != "" {
		parts = append(parts, g.Code)
	}
	if g.Message.Value != "" {
		parts = append(parts, g.Message.Value)
	}
	return strings.Join(parts, ": ")
}

func decodeGraphError(body []byte) *GraphError {
	var resp graphErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil
	}
	return resp.Error
}
