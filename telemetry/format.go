package telemetry

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// Separator joins the fields of a line.
	Separator = "; "
	// Terminator ends every persisted line.
	Terminator = "\n"

	_floatPrec = 6
	_wlanTag   = "WLAN"
)

type lineBuilder struct {
	sb    strings.Builder
	first bool
}

func newLineBuilder() *lineBuilder {
	b := &lineBuilder{first: true}
	b.sb.Grow(96)
	return b
}

func (b *lineBuilder) sep() {
	if !b.first {
		b.sb.WriteString(Separator)
	}
	b.first = false
}

func (b *lineBuilder) int(v int64) *lineBuilder {
	b.sep()
	b.sb.WriteString(strconv.FormatInt(v, 10))
	return b
}

func (b *lineBuilder) float(v float64) *lineBuilder {
	b.sep()
	b.sb.WriteString(strconv.FormatFloat(v, 'f', _floatPrec, 64))
	return b
}

func (b *lineBuilder) str(s string) *lineBuilder {
	b.sep()
	b.sb.WriteString(s)
	return b
}

func (b *lineBuilder) pose(p Pose) *lineBuilder {
	return b.float(p.TX).float(p.TY).float(p.TZ).
		float(p.QX).float(p.QY).float(p.QZ).float(p.QW)
}

func (b *lineBuilder) String() string {
	return b.sb.String()
}

// Format renders `timestamp; TAG; v1..v6`, padding missing payload columns
// with zeros.
func (s SensorSample) Format() (string, error) {
	if s.Kind < 0 || int(s.Kind) >= len(_sensorTags) {
		return "", fmt.Errorf("%w: unknown sensor kind %d", ErrFormat, int(s.Kind))
	}
	if want := s.Kind.Values(); len(s.Values) < want {
		return "", fmt.Errorf("%w: %s needs %d values, got %d", ErrFormat, s.Kind, want, len(s.Values))
	}
	b := newLineBuilder().int(s.Timestamp).str(s.Kind.Tag())
	n := s.Kind.Values()
	for i := 0; i < 6; i++ {
		if i < n {
			b.float(s.Values[i])
		} else {
			b.float(0)
		}
	}
	return b.String(), nil
}

// Format renders `timestamp; tx; ty; tz; qx; qy; qz; qw`.
func (r PoseRecord) Format() (string, error) {
	return newLineBuilder().int(r.Timestamp).pose(r.Pose).String(), nil
}

// Format renders `markerIndex; timestamp; tx; ty; tz; qx; qy; qz; qw`.
func (r MarkerPoseRecord) Format() (string, error) {
	return newLineBuilder().int(int64(r.Index)).int(r.Timestamp).pose(r.Pose).String(), nil
}

// _fieldReplacer keeps free-text fields on one line and out of the field
// separator: line breaks become spaces and ';' becomes ','.
var _fieldReplacer = strings.NewReplacer("\r", " ", "\n", " ", ";", ",")

// Format renders `scanTimestamp; WLAN; SSID; BSSID; level`. SSID and BSSID
// are free text, so they are passed through _fieldReplacer.
func (r ScanRecord) Format() (string, error) {
	return newLineBuilder().int(r.Result.Timestamp).str(_wlanTag).
		str(_fieldReplacer.Replace(r.Result.SSID)).str(_fieldReplacer.Replace(r.Result.BSSID)).
		int(int64(r.Result.Level)).String(), nil
}

// Format renders `markerCounter; timestamp`.
func (r RefMarkerRecord) Format() (string, error) {
	return newLineBuilder().int(r.Counter).int(r.Timestamp).String(), nil
}

// PrefixCounter prepends a batch counter column to a formatted line.
func PrefixCounter(counter int64, line string) string {
	return strconv.FormatInt(counter, 10) + Separator + line
}
