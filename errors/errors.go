// Package errors defines the structured error type surfaced to Task
// completion callbacks.
package errors

import (
	"errors"
	"fmt"
)

// Category classifies a terminal Session failure.
type Category string

const (
	CategoryFetch      Category = "fetch"
	CategoryDecode     Category = "decode"
	CategoryProcessing Category = "processing"
	CategoryConfig     Category = "config"
)

// LoadError is the structured error type returned via Result.Err. All
// errors are terminal for the Session that produced them; the core never
// retries internally.
type LoadError struct {
	Category Category
	Op       string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Op, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// New creates a LoadError.
func New(category Category, op string, err error) *LoadError {
	return &LoadError{Category: category, Op: op, Err: err}
}

// Wrap wraps err with category/op context, or returns nil if err is nil.
func Wrap(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	return New(category, op, err)
}

// IsCategory reports whether err belongs to the given category.
func IsCategory(err error, cat Category) bool {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Category == cat
	}
	return false
}

// Sentinel errors for the three terminal failure kinds.
var (
	// ErrDecodingFailed: final decode returned empty, fetch succeeded with
	// zero bytes, or no decoder could be instantiated.
	ErrDecodingFailed = errors.New("decoding failed")

	// ErrProcessingFailed: the final processor returned an error or an
	// empty image.
	ErrProcessingFailed = errors.New("processing failed")

	// ErrEmptyRequest: a Request had no URL.
	ErrEmptyRequest = errors.New("empty request")
)
