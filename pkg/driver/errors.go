package driver

import (
	"errors"
	"fmt"
)

// Kind classifies driver failures so callers can pick an exit path.
type Kind int

const (
	KindUnknown Kind = iota
	// KindMissingInput: the dataset or artifact file does not exist locally.
	KindMissingInput
	// KindInvalidInput: the dataset or artifact exists but cannot be used.
	KindInvalidInput
	// KindTransfer: remote retrieval or upload failed.
	KindTransfer
	// KindEncoding: a record holds a category the pipeline was not fitted on.
	KindEncoding
	// KindPrediction: any other failure while predicting.
	KindPrediction
	// KindTraining: splitting, fitting or serializing failed.
	KindTraining
)

func (k Kind) String() string {
	switch k {
	case KindMissingInput:
		return "missing input"
	case KindInvalidInput:
		return "invalid input"
	case KindTransfer:
		return "transfer failure"
	case KindEncoding:
		return "encoding failure"
	case KindPrediction:
		return "prediction failure"
	case KindTraining:
		return "training failure"
	}
	return "unknown"
}

// Error is the error type returned by the drivers.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
