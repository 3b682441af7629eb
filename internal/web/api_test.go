package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	omnilocation "github.com/omnilocation/omnilocation"
	"github.com/omnilocation/omnilocation/internal/gpx"
	"github.com/omnilocation/omnilocation/internal/trackdir"
)

const flatTrack = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test">
  <trk><name>flat</name><trkseg>
    <trkpt lat="37.7749" lon="-122.4194"></trkpt>
    <trkpt lat="37.7750" lon="-122.4195"></trkpt>
  </trkseg></trk>
</gpx>`

type memNameStore struct {
	mu      sync.Mutex
	records map[string]omnilocation.NameRecord
}

func newMemNameStore() *memNameStore {
	return &memNameStore{records: make(map[string]omnilocation.NameRecord)}
}

func (m *memNameStore) Lookup(udid string) (omnilocation.NameRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[udid], nil
}

func (m *memNameStore) SaveFactoryName(udid, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.records[udid]
	rec.FactoryName = name
	m.records[udid] = rec
	return nil
}

func (m *memNameStore) SaveUserName(udid, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.records[udid]
	rec.UserName = name
	m.records[udid] = rec
	return nil
}

type stubTransport struct {
	mu        sync.Mutex
	locations int
}

func (t *stubTransport) Connect(ctx context.Context) error { return nil }

func (t *stubTransport) SetLocation(lat, lon float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.locations++
	return nil
}

func (t *stubTransport) Disconnect() {}

func (t *stubTransport) FetchFactoryName() (string, error) { return "Stub Phone", nil }

type stubScanner struct {
	records []omnilocation.DiscoveredDevice
}

func (s *stubScanner) Scan(ctx context.Context) ([]omnilocation.DiscoveredDevice, error) {
	return s.records, nil
}

type fixture struct {
	server *Server
	sim    *omnilocation.Simulator
	dir    *trackdir.Dir
}

func newFixture(t *testing.T, devices ...omnilocation.DiscoveredDevice) *fixture {
	t.Helper()
	pool := omnilocation.NewDevicePool(newMemNameStore(), &stubScanner{records: devices})
	sim := omnilocation.NewSimulator(pool)
	dir, err := trackdir.New(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatalf("trackdir: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sim.Reset(ctx)
	})
	return &fixture{
		server: NewServer(pool, sim, dir, gpx.Parser{}),
		sim:    sim,
		dir:    dir,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestStatusIdle(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var status struct {
		Running bool `json:"running"`
	}
	decode(t, rec, &status)
	if status.Running {
		t.Fatal("idle simulator reported running")
	}
}

func TestListDevicesScansAndRenders(t *testing.T) {
	f := newFixture(t,
		omnilocation.DiscoveredDevice{UDID: "ios-1", Kind: omnilocation.KindUSB, Transport: &stubTransport{}},
		omnilocation.DiscoveredDevice{UDID: "droid-1", Kind: omnilocation.KindBridged, Transport: &stubTransport{}},
	)
	rec := f.do(t, http.MethodGet, "/api/devices", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var devices []struct {
		UDID       string `json:"udid"`
		DeviceType string `json:"device_type"`
		Connected  bool   `json:"connected"`
	}
	decode(t, rec, &devices)
	if len(devices) != 2 {
		t.Fatalf("got %d devices", len(devices))
	}
	types := map[string]string{}
	for _, d := range devices {
		types[d.UDID] = d.DeviceType
		if d.Connected {
			t.Fatalf("device %s connected before any start", d.UDID)
		}
	}
	if types["ios-1"] != "iOS" || types["droid-1"] != "Android" {
		t.Fatalf("device types = %v", types)
	}
}

func TestRenameValidation(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/devices/rename", map[string]string{"name": "Bench rig"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing udid status = %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/devices/rename", map[string]string{"udid": "ios-1", "name": "   "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank name status = %d", rec.Code)
	}
	var body struct {
		Error string `json:"error"`
		Field string `json:"field"`
	}
	decode(t, rec, &body)
	if body.Error != string(omnilocation.CodeValidation) || body.Field != "name" {
		t.Fatalf("error body = %+v", body)
	}
}

func TestUploadListDetailsDelete(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "loop.gpx")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := part.Write([]byte(flatTrack)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/api/tracks", nil)
	var names []string
	decode(t, rec, &names)
	if len(names) != 1 || names[0] != "loop.gpx" {
		t.Fatalf("tracks = %v", names)
	}

	rec = f.do(t, http.MethodGet, "/api/tracks/loop.gpx", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("details status = %d body = %s", rec.Code, rec.Body.String())
	}
	var details struct {
		PointCount int `json:"point_count"`
		Points     []struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"points"`
	}
	decode(t, rec, &details)
	if details.PointCount != 2 || len(details.Points) != 2 {
		t.Fatalf("details = %+v", details)
	}
	if details.Points[0].Lat != 37.7749 {
		t.Fatalf("first point lat = %v", details.Points[0].Lat)
	}

	rec = f.do(t, http.MethodDelete, "/api/tracks/loop.gpx", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/api/tracks/loop.gpx", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("details after delete status = %d", rec.Code)
	}
}

func TestStartValidation(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/start", map[string]any{"filename": "x.gpx"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("no udids status = %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/start", map[string]any{
		"filename": "missing.gpx",
		"udids":    []string{"ios-1"},
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing track status = %d body = %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Error string `json:"error"`
	}
	decode(t, rec, &body)
	if body.Error != string(omnilocation.CodeNotFound) {
		t.Fatalf("error code = %q", body.Error)
	}
}

func TestStartStopRoundTrip(t *testing.T) {
	transport := &stubTransport{}
	f := newFixture(t, omnilocation.DiscoveredDevice{
		UDID: "ios-1", Kind: omnilocation.KindUSB, Transport: transport,
	})
	if rec := f.do(t, http.MethodGet, "/api/devices", nil); rec.Code != http.StatusOK {
		t.Fatalf("scan status = %d", rec.Code)
	}
	if _, err := f.dir.Save("loop.gpx", strings.NewReader(flatTrack)); err != nil {
		t.Fatalf("seed track: %v", err)
	}

	rec := f.do(t, http.MethodPost, "/api/start", map[string]any{
		"filename": "loop.gpx",
		"udids":    []string{"ios-1"},
		"loop":     true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodPost, "/api/start", map[string]any{
		"filename": "loop.gpx",
		"udids":    []string{"ios-1"},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("second start status = %d", rec.Code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		transport.mu.Lock()
		n := transport.locations
		transport.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no location pushed before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec = f.do(t, http.MethodPost, "/api/stop", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop status = %d body = %s", rec.Code, rec.Body.String())
	}
	rec = f.do(t, http.MethodGet, "/api/status", nil)
	var status struct {
		Running bool `json:"running"`
	}
	decode(t, rec, &status)
	if status.Running {
		t.Fatal("simulator still running after stop")
	}
}

func TestResetWhenIdle(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/reset", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d body = %s", rec.Code, rec.Body.String())
	}
}
