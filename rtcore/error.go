package rtcore

import (
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"

	"github.com/achilleasa/rtcore/accel"
	"github.com/achilleasa/rtcore/accel/bvh"
	"github.com/achilleasa/rtcore/geometry"
	"github.com/achilleasa/rtcore/memory"
	"github.com/achilleasa/rtcore/prim"
	"github.com/achilleasa/rtcore/scene"
)

// Code classifies failures reported by the device.
type Code uint8

const (
	NoError Code = iota
	UnknownError
	InvalidArgument
	InvalidOperation
	OutOfMemory
	UnsupportedHardware
	Cancelled
)

var codeNames = [...]string{
	NoError:             "NO_ERROR",
	UnknownError:        "UNKNOWN_ERROR",
	InvalidArgument:     "INVALID_ARGUMENT",
	InvalidOperation:    "INVALID_OPERATION",
	OutOfMemory:         "OUT_OF_MEMORY",
	UnsupportedHardware: "UNSUPPORTED_HARDWARE",
	Cancelled:           "CANCELLED",
}

func (c Code) String() string {
	if int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("Code(%d)", c)
}

// Error is the failure reported by device entry points.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return e.Code.String() + ": " + e.Message
}

// Create an error whose message is prefixed with the file and line of the
// caller.
func newError(code Code, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	if _, file, line, ok := runtime.Caller(1); ok {
		msg = fmt.Sprintf("%s (%d): %s", filepath.Base(file), line, msg)
	}
	return &Error{Code: code, Message: msg}
}

// Domain failures with a fixed classification.
var sentinelCodes = []struct {
	err  error
	code Code
}{
	{scene.ErrNotCommitted, InvalidOperation},
	{scene.ErrGeometryMapped, InvalidOperation},
	{scene.ErrStaticScene, InvalidOperation},
	{scene.ErrReadOnly, InvalidOperation},
	{scene.ErrTooManyGeometry, InvalidOperation},
	{scene.ErrUnknownGeometry, InvalidArgument},
	{scene.ErrInvalidFlags, InvalidArgument},
	{scene.ErrInvalidArchive, InvalidArgument},

	{geometry.ErrAlreadyMapped, InvalidOperation},
	{geometry.ErrNotMapped, InvalidOperation},
	{geometry.ErrStaticModified, InvalidOperation},
	{geometry.ErrIndexOutOfRange, InvalidOperation},
	{geometry.ErrInvalidBuffer, InvalidArgument},
	{geometry.ErrInvalidFlags, InvalidArgument},

	{bvh.ErrCancelled, Cancelled},
	{bvh.ErrInvalidOptions, InvalidArgument},
	{bvh.ErrCorruptArchive, InvalidArgument},

	{accel.ErrAccelNotFound, InvalidOperation},
	{accel.ErrNotComposite, InvalidOperation},
	{accel.ErrUnknownVariant, InvalidOperation},

	{prim.ErrUnknownKind, InvalidArgument},
	{memory.ErrInvalidLength, InvalidArgument},
}

// Map a failure onto an Error:
//
//  1. out of memory conditions become OutOfMemory;
//  2. *Error values are forwarded unchanged;
//  3. known domain failures get their fixed code;
//  4. anything else becomes UnknownError carrying the failure message.
func classify(err error) *Error {
	if errors.Cause(err) == memory.ErrOutOfMemory || errors.Is(err, memory.ErrOutOfMemory) {
		return &Error{Code: OutOfMemory, Message: "out of memory"}
	}

	var kerr *Error
	if errors.As(err, &kerr) {
		return kerr
	}

	cause := errors.Cause(err)
	for _, sentinel := range sentinelCodes {
		if cause == sentinel.err {
			return &Error{Code: sentinel.code, Message: err.Error()}
		}
	}
	return &Error{Code: UnknownError, Message: err.Error()}
}

// Map a recovered panic value onto an Error. Error values are classified
// like returned errors; anything else is an unknown failure.
func classifyPanic(r interface{}) *Error {
	if err, ok := r.(error); ok {
		return classify(err)
	}
	return &Error{Code: UnknownError, Message: "unknown exception caught"}
}
