package omnilocation

import (
	"net/http"
	"testing"

	pkgerrors "github.com/pkg/errors"
)

func TestErrorTaxonomyCodesAndStatuses(t *testing.T) {
	cases := []struct {
		err    *Error
		code   ErrorCode
		status int
	}{
		{NewValidationError("udids", "no devices selected"), CodeValidation, http.StatusBadRequest},
		{NewNotFoundError("track", "route.gpx"), CodeNotFound, http.StatusNotFound},
		{NewDeviceNotFoundError("abc123"), CodeDeviceNotFound, http.StatusNotFound},
		{NewDeviceConnectionError("abc123", nil), CodeDeviceConnection, http.StatusInternalServerError},
		{NewDeviceControlError("abc123", "set location", nil), CodeDeviceControl, http.StatusInternalServerError},
		{NewNoDevicesError(), CodeNoDevices, http.StatusInternalServerError},
		{NewAlreadyRunningError(), CodeAlreadyRunning, http.StatusConflict},
		{NewNotRunningError(), CodeNotRunning, http.StatusBadRequest},
		{NewTrackParseError("route.gpx", nil), CodeTrackParse, http.StatusBadRequest},
		{NewTrackEmptyError("route.gpx"), CodeTrackEmpty, http.StatusBadRequest},
		{NewStorageError("rename", nil), CodeStorage, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if tc.err.Code != tc.code {
			t.Fatalf("code = %s, want %s", tc.err.Code, tc.code)
		}
		if tc.err.Status != tc.status {
			t.Fatalf("%s: status = %d, want %d", tc.code, tc.err.Status, tc.status)
		}
		if tc.err.Message == "" {
			t.Fatalf("%s: empty message", tc.code)
		}
	}
}

func TestErrorUnwrapsThroughWrapping(t *testing.T) {
	cause := pkgerrors.New("socket closed")
	err := NewDeviceConnectionError("abc123", cause)
	wrapped := pkgerrors.Wrap(err, "start failed")

	oe, ok := AsError(wrapped)
	if !ok {
		t.Fatalf("AsError failed on wrapped taxonomy error")
	}
	if oe.Code != CodeDeviceConnection || oe.UDID != "abc123" {
		t.Fatalf("unexpected recovered error: %+v", oe)
	}
	if CodeOf(wrapped) != CodeDeviceConnection {
		t.Fatalf("CodeOf(wrapped) = %s", CodeOf(wrapped))
	}
	if CodeOf(cause) != "" {
		t.Fatalf("CodeOf(untyped) should be empty")
	}
}
