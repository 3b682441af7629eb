package omnilocation

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// ErrorCode is the machine-readable failure class surfaced to API callers.
type ErrorCode string

const (
	CodeValidation       ErrorCode = "VALIDATION_ERROR"
	CodeNotFound         ErrorCode = "RESOURCE_NOT_FOUND"
	CodeDeviceNotFound   ErrorCode = "DEVICE_NOT_FOUND"
	CodeDeviceConnection ErrorCode = "DEVICE_CONNECTION_ERROR"
	CodeDeviceControl    ErrorCode = "DEVICE_CONTROL_ERROR"
	CodeNoDevices        ErrorCode = "NO_DEVICES_AVAILABLE"
	CodeAlreadyRunning   ErrorCode = "SIMULATION_ALREADY_RUNNING"
	CodeNotRunning       ErrorCode = "SIMULATION_NOT_RUNNING"
	CodeTrackParse       ErrorCode = "TRACK_PARSE_ERROR"
	CodeTrackEmpty       ErrorCode = "TRACK_EMPTY"
	CodeStorage          ErrorCode = "STORAGE_ERROR"
)

// Error carries enough structure for the HTTP surface to render a status and
// a JSON body without inspecting raw transport errors.
type Error struct {
	Code    ErrorCode
	Status  int
	Message string
	// Field is set for validation failures caused by one request field.
	Field string
	// UDID is set for device-scoped failures.
	UDID string
	// Resource is set for not-found failures (e.g. a track filename).
	Resource string

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// AsError unwraps err down to a taxonomy *Error, if there is one.
func AsError(err error) (*Error, bool) {
	var oe *Error
	if errors.As(err, &oe) {
		return oe, true
	}
	return nil, false
}

// CodeOf returns the taxonomy code of err, or "" for untyped errors.
func CodeOf(err error) ErrorCode {
	if oe, ok := AsError(err); ok {
		return oe.Code
	}
	return ""
}

func NewValidationError(field, message string) *Error {
	return &Error{Code: CodeValidation, Status: http.StatusBadRequest, Message: message, Field: field}
}

func NewNotFoundError(kind, id string) *Error {
	return &Error{
		Code:     CodeNotFound,
		Status:   http.StatusNotFound,
		Message:  fmt.Sprintf("%s %q not found", kind, id),
		Resource: id,
	}
}

func NewDeviceNotFoundError(udid string) *Error {
	return &Error{
		Code:    CodeDeviceNotFound,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("device %s not found or disconnected", udid),
		UDID:    udid,
	}
}

func NewDeviceConnectionError(udid string, cause error) *Error {
	return &Error{
		Code:    CodeDeviceConnection,
		Status:  http.StatusInternalServerError,
		Message: fmt.Sprintf("failed to connect to device %s", udid),
		UDID:    udid,
		cause:   cause,
	}
}

func NewDeviceControlError(udid, action string, cause error) *Error {
	return &Error{
		Code:    CodeDeviceControl,
		Status:  http.StatusInternalServerError,
		Message: fmt.Sprintf("failed to %s on device %s", action, udid),
		UDID:    udid,
		cause:   cause,
	}
}

func NewNoDevicesError() *Error {
	return &Error{
		Code:    CodeNoDevices,
		Status:  http.StatusInternalServerError,
		Message: "no devices available for simulation, connect devices and try again",
	}
}

func NewAlreadyRunningError() *Error {
	return &Error{
		Code:    CodeAlreadyRunning,
		Status:  http.StatusConflict,
		Message: "simulation is already running, stop it before starting a new one",
	}
}

func NewNotRunningError() *Error {
	return &Error{
		Code:    CodeNotRunning,
		Status:  http.StatusBadRequest,
		Message: "no simulation is currently running",
	}
}

func NewTrackParseError(name string, cause error) *Error {
	return &Error{
		Code:     CodeTrackParse,
		Status:   http.StatusBadRequest,
		Message:  fmt.Sprintf("failed to parse track %q", name),
		Resource: name,
		cause:    cause,
	}
}

// NewTrackEmptyError reports a structurally valid source that yields zero
// points, distinguished from a malformed one.
func NewTrackEmptyError(name string) *Error {
	return &Error{
		Code:     CodeTrackEmpty,
		Status:   http.StatusBadRequest,
		Message:  fmt.Sprintf("track %q contains no points", name),
		Resource: name,
	}
}

func NewStorageError(operation string, cause error) *Error {
	return &Error{
		Code:    CodeStorage,
		Status:  http.StatusInternalServerError,
		Message: fmt.Sprintf("storage %s failed", operation),
		cause:   cause,
	}
}
