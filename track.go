package omnilocation

import "time"

// TrackPoint is one recorded coordinate sample.
type TrackPoint struct {
	Lat          float64
	Lon          float64
	Elevation    float64
	HasElevation bool
	// Time is the recorded timestamp; zero when the source carried none.
	Time time.Time
}

// HasTime reports whether the point carries a recorded timestamp.
func (p TrackPoint) HasTime() bool { return !p.Time.IsZero() }

// Track is an ordered point sequence plus aggregates derived by the parser.
// A Track handed to the simulator always has at least one point; parsers must
// fail on empty sources rather than return a zero-point Track.
type Track struct {
	Name   string
	Points []TrackPoint
	// TotalDistance is the 2D track length in meters.
	TotalDistance float64
	// TotalDuration is the recorded duration in seconds, 0 when the source
	// carried no timestamps.
	TotalDuration float64
}

// TrackParser turns a stored track source into a Track.
type TrackParser interface {
	ParseFile(path string) (*Track, error)
}
