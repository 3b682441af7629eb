package gpx

import (
	"testing"

	omnilocation "github.com/omnilocation/omnilocation"
)

const timestampedTrack = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <trk>
    <name>morning run</name>
    <trkseg>
      <trkpt lat="52.5200" lon="13.4050">
        <ele>34.5</ele>
        <time>2025-06-01T12:00:00Z</time>
      </trkpt>
      <trkpt lat="52.5210" lon="13.4060">
        <ele>35.1</ele>
        <time>2025-06-01T12:00:30Z</time>
      </trkpt>
      <trkpt lat="52.5220" lon="13.4070">
        <ele>35.8</ele>
        <time>2025-06-01T12:01:00Z</time>
      </trkpt>
    </trkseg>
  </trk>
</gpx>`

const bareTrack = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <trk>
    <trkseg>
      <trkpt lat="48.8566" lon="2.3522"></trkpt>
      <trkpt lat="48.8570" lon="2.3530"></trkpt>
    </trkseg>
  </trk>
</gpx>`

const emptyTrack = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <trk><trkseg></trkseg></trk>
</gpx>`

func TestParseTimestampedTrack(t *testing.T) {
	track, err := Parse("run.gpx", []byte(timestampedTrack))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(track.Points) != 3 {
		t.Fatalf("point count = %d, want 3", len(track.Points))
	}
	first := track.Points[0]
	if first.Lat != 52.52 || first.Lon != 13.405 {
		t.Fatalf("first point = (%v, %v)", first.Lat, first.Lon)
	}
	if !first.HasTime() || !first.HasElevation {
		t.Fatalf("first point lost timestamp or elevation: %+v", first)
	}
	if track.TotalDuration != 60 {
		t.Fatalf("duration = %v, want 60s", track.TotalDuration)
	}
	if track.TotalDistance <= 0 {
		t.Fatalf("distance = %v, want > 0", track.TotalDistance)
	}
}

func TestParseTrackWithoutTimestamps(t *testing.T) {
	track, err := Parse("bare.gpx", []byte(bareTrack))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(track.Points) != 2 {
		t.Fatalf("point count = %d, want 2", len(track.Points))
	}
	if track.Points[0].HasTime() {
		t.Fatalf("point without <time> reported a timestamp")
	}
	if track.TotalDuration != 0 {
		t.Fatalf("duration without timestamps = %v, want 0", track.TotalDuration)
	}
}

func TestParseEmptyTrackIsDistinctError(t *testing.T) {
	_, err := Parse("empty.gpx", []byte(emptyTrack))
	if omnilocation.CodeOf(err) != omnilocation.CodeTrackEmpty {
		t.Fatalf("empty track error = %v, want track-empty", err)
	}
}

func TestParseMalformedSource(t *testing.T) {
	_, err := Parse("broken.gpx", []byte("<gpx><trk>"))
	if omnilocation.CodeOf(err) != omnilocation.CodeTrackParse {
		t.Fatalf("malformed track error = %v, want track-parse", err)
	}
}

func TestParseFileMissing(t *testing.T) {
	_, err := Parser{}.ParseFile("/nonexistent/route.gpx")
	if omnilocation.CodeOf(err) != omnilocation.CodeNotFound {
		t.Fatalf("missing file error = %v, want not-found", err)
	}
}
