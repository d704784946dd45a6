package codec

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDocument = errors.New("invalid document")
	ErrTooLarge        = errors.New("file too large")
	ErrEmpty           = errors.New("empty file")
	ErrUnsupported     = errors.New("operation not supported")
	ErrUnknownFormat   = errors.New("unknown format")
)

// Op names the codec operation that failed.
type Op string

const (
	OpExport Op = "export"
	OpParse  Op = "parsing"
)

// EncodingError wraps any failure inside a codec export or parse. The message reads
// "<Name> export failed: <cause>" or "<Name> parsing failed: <cause>".
type EncodingError struct {
	Format string
	Op     Op
	Err    error
}

func (e *EncodingError) Error() string {
	if e == nil {
		return "encoding error"
	}
	return fmt.Sprintf("%s %s failed: %v", e.Format, e.Op, e.Err)
}

func (e *EncodingError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func wrapErr(d Descriptor, op Op, err error) error {
	if err == nil {
		return nil
	}
	var ee *EncodingError
	if errors.As(err, &ee) {
		return err
	}
	return &EncodingError{Format: d.Name, Op: op, Err: err}
}
