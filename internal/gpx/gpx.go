// Package gpx parses GPX track files into the playback point model.
package gpx

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	gpxgo "github.com/tkrajina/gpxgo/gpx"

	omnilocation "github.com/omnilocation/omnilocation"
)

// Parser implements omnilocation.TrackParser for .gpx sources.
type Parser struct{}

var _ omnilocation.TrackParser = Parser{}

// ParseFile reads and parses the GPX file at path.
func (Parser) ParseFile(path string) (*omnilocation.Track, error) {
	name := filepath.Base(path)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, omnilocation.NewNotFoundError("track", name)
		}
		return nil, omnilocation.NewTrackParseError(name, err)
	}
	return Parse(name, data)
}

// Parse parses raw GPX bytes. A structurally valid document with zero track
// points fails with a track-empty error, distinguished from a malformed one.
func Parse(name string, data []byte) (*omnilocation.Track, error) {
	doc, err := gpxgo.ParseBytes(data)
	if err != nil {
		log.Error().Err(err).Str("track", name).Msg("invalid gpx document")
		return nil, omnilocation.NewTrackParseError(name, err)
	}

	var points []omnilocation.TrackPoint
	for _, trk := range doc.Tracks {
		for _, seg := range trk.Segments {
			for _, p := range seg.Points {
				tp := omnilocation.TrackPoint{
					Lat:  p.Latitude,
					Lon:  p.Longitude,
					Time: p.Timestamp,
				}
				if p.Elevation.NotNull() {
					tp.Elevation = p.Elevation.Value()
					tp.HasElevation = true
				}
				points = append(points, tp)
			}
		}
	}
	if len(points) == 0 {
		log.Warn().Str("track", name).Msg("gpx document has no track points")
		return nil, omnilocation.NewTrackEmptyError(name)
	}

	track := &omnilocation.Track{
		Name:          name,
		Points:        points,
		TotalDistance: doc.Length2D(),
		TotalDuration: recordedDuration(points),
	}
	log.Info().
		Str("track", name).
		Int("points", len(points)).
		Float64("distance_m", track.TotalDistance).
		Float64("duration_s", track.TotalDuration).
		Msg("parsed gpx track")
	return track, nil
}

// recordedDuration is the span between the first and last timestamped point,
// in seconds, or 0 when the track carries no usable timestamps.
func recordedDuration(points []omnilocation.TrackPoint) float64 {
	first := points[0]
	last := points[len(points)-1]
	if !first.HasTime() || !last.HasTime() {
		return 0
	}
	d := last.Time.Sub(first.Time).Seconds()
	if d < 0 {
		return 0
	}
	return d
}
