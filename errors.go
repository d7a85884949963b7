package pricewatch

import (
	"errors"
	"fmt"
)

var (
	// ErrNoHandle is returned when a start-job response carries no job handle.
	ErrNoHandle = errors.New("job could not be started: response has no taskArn")

	// ErrSessionActive is returned when a job kind already has a polling
	// session in progress.
	ErrSessionActive = errors.New("a polling session for this job is already in progress")

	// ErrToggleLimit is returned when enabling a notification toggle would
	// exceed the configured maximum. No request is sent.
	ErrToggleLimit = errors.New("notification toggle limit reached")

	// ErrSettingsUnavailable is returned when the backend reports that it
	// could not read notification settings.
	ErrSettingsUnavailable = errors.New("notification settings unavailable")

	// ErrNoPriceData is returned when a price trend has no data points.
	ErrNoPriceData = errors.New("no price trend data")

	// ErrUnknownJobKind is returned for job kinds other than those in [JobKinds].
	ErrUnknownJobKind = errors.New("unknown job kind")
)

// HTTPError is returned when the backend answers with a non-2xx status.
type HTTPError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Status is the status line text (e.g., "502 Bad Gateway").
	Status string

	// Body is the start of the response body, for diagnostics.
	Body string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP error: %s: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("HTTP error: %s", e.Status)
}
