package pricewatch

import "strings"

// Transition is what a polling session does after receiving a [Snapshot].
type Transition string

const (
	// Continue keeps polling unless the retry ceiling is reached.
	Continue Transition = "continue"

	// Complete ends the session in [StateCompleted].
	Complete Transition = "complete"

	// Fail ends the session in [StateFailed].
	Fail Transition = "fail"

	// NotFound ends the session in [StateNotFound].
	NotFound Transition = "not_found"
)

// Classifier is a function type that decides the [Transition] of a polling
// session from one status [Snapshot].
//
// Classifier is a pure function: the same snapshot always produces the same
// transition. The retry ceiling is not the classifier's concern; the session
// applies it after a [Continue].
//
// # Panic Safety
//
// Classifier functions are called within a panic recovery boundary. If a
// classifier panics, the session ends in [StateFailed] with an error
// containing a correlation ID, and the stack trace is logged.
type Classifier func(s Snapshot) Transition

// NewClassifier returns a [Classifier] using the given clean stop reason.
//
// Rules, evaluated in order:
//  1. [JobStopped] with stop reason equal to cleanStopReason: [Complete]
//  2. any other [JobStopped]: [Fail]
//  3. [JobUnknown]: [NotFound]
//  4. anything else: [Continue]
//
// Status values are compared case-insensitively; the stop reason is
// compared exactly after trimming surrounding whitespace.
func NewClassifier(cleanStopReason string) Classifier {
	clean := strings.TrimSpace(cleanStopReason)

	return func(s Snapshot) Transition {
		status := JobStatus(strings.ToUpper(strings.TrimSpace(string(s.Status))))

		switch {
		case status == JobStopped && strings.TrimSpace(s.StopReason) == clean:
			return Complete
		case status == JobStopped:
			return Fail
		case status == JobUnknown:
			return NotFound
		default:
			return Continue
		}
	}
}

// DefaultClassifier is the [Classifier] used when none is configured.
// It treats [CleanStopReason] as success.
var DefaultClassifier = NewClassifier(CleanStopReason)
