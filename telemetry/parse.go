package telemetry

import (
	"fmt"
	"strconv"
	"strings"
)

// splitLine strips the terminator and splits on Separator, expecting n fields.
func splitLine(line string, n int) ([]string, error) {
	line = strings.TrimSuffix(line, Terminator)
	fields := strings.Split(line, Separator)
	if len(fields) != n {
		return nil, fmt.Errorf("%w: want %d fields, got %d in %q", ErrFormat, n, len(fields), line)
	}
	return fields, nil
}

func parseInt(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return v, nil
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		out[i] = v
	}
	return out, nil
}

func poseOf(v []float64) Pose {
	return Pose{TX: v[0], TY: v[1], TZ: v[2], QX: v[3], QY: v[4], QZ: v[5], QW: v[6]}
}

// ParseSensorLine parses a sensors.csv line. Only the payload values of the
// kind are returned; padding columns are dropped.
func ParseSensorLine(line string) (SensorSample, error) {
	fields, err := splitLine(line, 8)
	if err != nil {
		return SensorSample{}, err
	}
	ts, err := parseInt(fields[0])
	if err != nil {
		return SensorSample{}, err
	}
	kind, err := ParseSensorKind(fields[1])
	if err != nil {
		return SensorSample{}, err
	}
	vals, err := parseFloats(fields[2:])
	if err != nil {
		return SensorSample{}, err
	}
	return SensorSample{Kind: kind, Timestamp: ts, Values: vals[:kind.Values()]}, nil
}

// ParsePoseLine parses a poses.csv line.
func ParsePoseLine(line string) (PoseRecord, error) {
	fields, err := splitLine(line, 8)
	if err != nil {
		return PoseRecord{}, err
	}
	ts, err := parseInt(fields[0])
	if err != nil {
		return PoseRecord{}, err
	}
	vals, err := parseFloats(fields[1:])
	if err != nil {
		return PoseRecord{}, err
	}
	return PoseRecord{Timestamp: ts, Pose: poseOf(vals)}, nil
}

// ParseMarkerPoseLine parses an initPoses.csv line.
func ParseMarkerPoseLine(line string) (MarkerPoseRecord, error) {
	fields, err := splitLine(line, 9)
	if err != nil {
		return MarkerPoseRecord{}, err
	}
	idx, err := parseInt(fields[0])
	if err != nil {
		return MarkerPoseRecord{}, err
	}
	ts, err := parseInt(fields[1])
	if err != nil {
		return MarkerPoseRecord{}, err
	}
	vals, err := parseFloats(fields[2:])
	if err != nil {
		return MarkerPoseRecord{}, err
	}
	return MarkerPoseRecord{Index: int(idx), Timestamp: ts, Pose: poseOf(vals)}, nil
}

// ParseScanLine parses a wifi.csv line into its batch counter and result.
func ParseScanLine(line string) (int64, ScanResult, error) {
	fields, err := splitLine(line, 6)
	if err != nil {
		return 0, ScanResult{}, err
	}
	if fields[2] != _wlanTag {
		return 0, ScanResult{}, fmt.Errorf("%w: unexpected tag %q", ErrFormat, fields[2])
	}
	counter, err := parseInt(fields[0])
	if err != nil {
		return 0, ScanResult{}, err
	}
	ts, err := parseInt(fields[1])
	if err != nil {
		return 0, ScanResult{}, err
	}
	level, err := parseInt(fields[5])
	if err != nil {
		return 0, ScanResult{}, err
	}
	return counter, ScanResult{SSID: fields[3], BSSID: fields[4], Level: int(level), Timestamp: ts}, nil
}

// ParseRefMarkerLine parses a refMarker.csv line.
func ParseRefMarkerLine(line string) (RefMarkerRecord, error) {
	fields, err := splitLine(line, 2)
	if err != nil {
		return RefMarkerRecord{}, err
	}
	counter, err := parseInt(fields[0])
	if err != nil {
		return RefMarkerRecord{}, err
	}
	ts, err := parseInt(fields[1])
	if err != nil {
		return RefMarkerRecord{}, err
	}
	return RefMarkerRecord{Counter: counter, Timestamp: ts}, nil
}
