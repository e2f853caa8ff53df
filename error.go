package rasteriser

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrBoundaryResolution = errors.New("boundary resolution failed")
	ErrOverlay            = errors.New("overlay failed")
	ErrIO                 = errors.New("io failed")
	ErrRasterization      = errors.New("rasterization failed")

	ErrNoFeatures      = errors.New("no features")
	ErrEmptyGeometry   = errors.New("empty geometry")
	ErrWrongGeoType    = errors.New("wrong geo type")
	ErrInvalidGeometry = errors.New("invalid geometry")
	ErrMissingFID      = errors.New("fishnet cell without FID")
	ErrDuplicateFID    = errors.New("duplicate FID in fishnet")
	ErrEmptyRaster     = errors.New("raster has zero width or height")
	ErrUnexpectedReply = errors.New("unexpected boundary service reply")
)

type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindBoundaryResolution
	KindOverlay
	KindIO
	KindRasterization
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindBoundaryResolution:
		return ErrBoundaryResolution
	case KindOverlay:
		return ErrOverlay
	case KindIO:
		return ErrIO
	case KindRasterization:
		return ErrRasterization
	}
	return nil
}

func (k ErrorKind) String() string {
	if s := k.sentinel(); s != nil {
		return s.Error()
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is a pipeline failure tagged with its kind and the stage that
// raised it. errors.Is matches it against the kind's sentinel.
type Error struct {
	Kind  ErrorKind
	Stage string
	Err   error
}

func (e *Error) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s at %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func newError(kind ErrorKind, stage string, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		if pe.Stage == "" {
			pe.Stage = stage
		}
		return pe
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		kind = KindValidation
	}
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// KindOf reports the kind of err, zero when err is not a pipeline error.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}
	return 0
}

// FieldError names one violated constraint.
type FieldError struct {
	Field string
	Msg   string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Msg
}

// ValidationError lists every violated constraint, not only the first.
type ValidationError struct {
	Fields []*FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Error()
	}
	return "invalid arguments: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Has reports whether field is among the violations.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

type violations struct {
	err error
}

func (v *violations) add(field, format string, args ...interface{}) {
	v.err = multierr.Append(v.err, &FieldError{Field: field, Msg: fmt.Sprintf(format, args...)})
}

func (v *violations) merge(err error) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		for _, f := range ve.Fields {
			v.err = multierr.Append(v.err, f)
		}
		return
	}
	v.err = multierr.Append(v.err, err)
}

func (v *violations) result() error {
	if v.err == nil {
		return nil
	}
	errs := multierr.Errors(v.err)
	ve := &ValidationError{Fields: make([]*FieldError, 0, len(errs))}
	for _, e := range errs {
		var fe *FieldError
		if errors.As(e, &fe) {
			ve.Fields = append(ve.Fields, fe)
		} else {
			ve.Fields = append(ve.Fields, &FieldError{Field: "?", Msg: e.Error()})
		}
	}
	return ve
}
