// Package web exposes the device pool and simulator over a JSON HTTP API.
package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	omnilocation "github.com/omnilocation/omnilocation"
	"github.com/omnilocation/omnilocation/internal/trackdir"
)

// Server wires the process-scoped pool/simulator state into HTTP handlers.
type Server struct {
	pool   *omnilocation.DevicePool
	sim    *omnilocation.Simulator
	tracks *trackdir.Dir
	parser omnilocation.TrackParser
	router chi.Router
}

func NewServer(pool *omnilocation.DevicePool, sim *omnilocation.Simulator, tracks *trackdir.Dir, parser omnilocation.TrackParser) *Server {
	s := &Server{pool: pool, sim: sim, tracks: tracks, parser: parser}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*", "http://*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/devices", s.handleListDevices)
		r.Post("/devices/rename", s.handleRenameDevice)
		r.Post("/upload", s.handleUpload)
		r.Get("/tracks", s.handleListTracks)
		r.Get("/tracks/{filename}", s.handleTrackDetails)
		r.Delete("/tracks/{filename}", s.handleDeleteTrack)
		r.Post("/start", s.handleStart)
		r.Post("/stop", s.handleStop)
		r.Post("/reset", s.handleReset)
		r.Get("/status", s.handleStatus)
	})
	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

type deviceJSON struct {
	UDID           string `json:"udid"`
	Name           string `json:"name"`
	RealName       string `json:"real_name,omitempty"`
	DeviceType     string `json:"device_type"`
	ConnectionType string `json:"connection_type"`
	Connected      bool   `json:"connected"`
}

func deviceToJSON(d *omnilocation.DeviceHandle) deviceJSON {
	deviceType := "iOS"
	if d.Kind() == omnilocation.KindBridged {
		deviceType = "Android"
	}
	return deviceJSON{
		UDID:           d.UDID(),
		Name:           d.DisplayName(),
		RealName:       d.FactoryName(),
		DeviceType:     deviceType,
		ConnectionType: string(d.Kind()),
		Connected:      d.Connected(),
	}
}

// handleListDevices triggers a scan and returns the devices it observed.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.pool.Scan(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]deviceJSON, 0, len(devices))
	for _, d := range devices {
		out = append(out, deviceToJSON(d))
	}
	writeJSON(w, http.StatusOK, out)
}

type renameRequest struct {
	UDID string `json:"udid"`
	Name string `json:"name"`
}

func (s *Server) handleRenameDevice(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, omnilocation.NewValidationError("body", "invalid JSON body"))
		return
	}
	if req.UDID == "" {
		writeError(w, omnilocation.NewValidationError("udid", "udid is required"))
		return
	}
	if err := s.pool.Rename(req.UDID, req.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "device renamed successfully"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, omnilocation.NewValidationError("file", "no file selected"))
		return
	}
	defer file.Close()

	name, err := s.tracks.Save(header.Filename, file)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":  "file uploaded successfully",
		"filename": name,
	})
}

func (s *Server) handleListTracks(w http.ResponseWriter, r *http.Request) {
	names, err := s.tracks.List()
	if err != nil {
		writeError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleDeleteTrack(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if err := s.tracks.Delete(filename); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "deleted " + filename})
}

type trackPointJSON struct {
	Lat  float64  `json:"lat"`
	Lon  float64  `json:"lon"`
	Ele  *float64 `json:"ele,omitempty"`
	Time *string  `json:"time,omitempty"`
}

func (s *Server) handleTrackDetails(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	path, err := s.tracks.Path(filename)
	if err != nil {
		writeError(w, err)
		return
	}
	track, err := s.parser.ParseFile(path)
	if err != nil {
		writeError(w, err)
		return
	}

	points := make([]trackPointJSON, 0, len(track.Points))
	for _, p := range track.Points {
		pj := trackPointJSON{Lat: p.Lat, Lon: p.Lon}
		if p.HasElevation {
			ele := p.Elevation
			pj.Ele = &ele
		}
		if p.HasTime() {
			ts := p.Time.UTC().Format(time.RFC3339)
			pj.Time = &ts
		}
		points = append(points, pj)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"filename":       track.Name,
		"total_distance": track.TotalDistance,
		"total_duration": track.TotalDuration,
		"point_count":    len(track.Points),
		"points":         points,
	})
}

type startRequest struct {
	Filename       string   `json:"filename"`
	UDIDs          []string `json:"udids"`
	Loop           bool     `json:"loop"`
	Speed          float64  `json:"speed"`
	TargetDuration float64  `json:"target_duration"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, omnilocation.NewValidationError("body", "invalid JSON body"))
		return
	}
	if len(req.UDIDs) == 0 {
		writeError(w, omnilocation.NewValidationError("udids", "no devices selected for simulation"))
		return
	}
	path, err := s.tracks.Path(req.Filename)
	if err != nil {
		writeError(w, err)
		return
	}
	track, err := s.parser.ParseFile(path)
	if err != nil {
		writeError(w, err)
		return
	}

	speed := req.Speed
	if speed <= 0 {
		speed = 1.0
	}
	// A requested wall-clock duration wins over the speed field when the
	// track carries a recorded duration to scale against.
	if req.TargetDuration > 0 && track.TotalDuration > 0 {
		speed = track.TotalDuration / req.TargetDuration
		log.Info().
			Float64("speed", speed).
			Float64("target_duration", req.TargetDuration).
			Msg("speed recomputed from target duration")
	}

	opts := omnilocation.PlayOptions{
		Loop:            req.Loop,
		SpeedMultiplier: speed,
		TargetDuration:  time.Duration(req.TargetDuration * float64(time.Second)),
	}
	if err := s.sim.Start(r.Context(), track.Points, req.UDIDs, opts); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":          "simulation started",
		"device_count":     len(req.UDIDs),
		"speed_multiplier": speed,
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.sim.Stop(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "simulation stopped"})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.sim.Reset(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "simulation reset and location cleared"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sim.Status())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write response failed")
	}
}

type errorJSON struct {
	Error    string `json:"error"`
	Message  string `json:"message"`
	Status   int    `json:"status"`
	Field    string `json:"field,omitempty"`
	UDID     string `json:"device_udid,omitempty"`
	Resource string `json:"resource,omitempty"`
}

// writeError renders taxonomy errors with their own status; anything else is
// an opaque 500.
func writeError(w http.ResponseWriter, err error) {
	if oe, ok := omnilocation.AsError(err); ok {
		log.Warn().Str("code", string(oe.Code)).Msg(oe.Message)
		writeJSON(w, oe.Status, errorJSON{
			Error:    string(oe.Code),
			Message:  oe.Message,
			Status:   oe.Status,
			Field:    oe.Field,
			UDID:     oe.UDID,
			Resource: oe.Resource,
		})
		return
	}
	log.Error().Err(err).Msg("unexpected error")
	writeJSON(w, http.StatusInternalServerError, errorJSON{
		Error:   "INTERNAL_SERVER_ERROR",
		Message: "an unexpected error occurred, please try again later",
		Status:  http.StatusInternalServerError,
	})
}
