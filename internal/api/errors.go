package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	// ErrSessionExpired is returned when the backend rejects both the
	// access token and its refresh. The caller logs the user out.
	ErrSessionExpired = errors.New("api: session expired")

	// ErrNetwork wraps transport failures where no response arrived at all.
	ErrNetwork = errors.New("api: network error")
)

// Error is a backend-reported HTTP failure, carrying whatever message the
// conventional error envelope held.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: %d %s", e.StatusCode, e.Message)
}

// decodeError extracts the error-envelope message from a non-2xx response.
// A missing envelope falls back to a generic string; 5xx responses get the
// generic "try again later" regardless of the operation.
func decodeError(resp *http.Response) error {
	if resp.StatusCode == http.StatusUnauthorized {
		return &Error{StatusCode: resp.StatusCode, Message: "unauthorized"}
	}
	if resp.StatusCode >= 500 {
		return &Error{StatusCode: resp.StatusCode, Message: "something went wrong, try again later"}
	}

	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Message != "" {
			return &Error{StatusCode: resp.StatusCode, Message: envelope.Message}
		}
		if envelope.Error != "" {
			return &Error{StatusCode: resp.StatusCode, Message: envelope.Error}
		}
	}
	return &Error{StatusCode: resp.StatusCode, Message: "request failed"}
}

func isUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}
