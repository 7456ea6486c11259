package dicomio

import (
	"math"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom/pkg/tag"
)

// ParseFloats parses a '\'-separated decimal string list.
func ParseFloats(s string) ([]float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	parts := strings.Split(s, `\`)
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}

// ParseInt parses an integer string, accepting decimal forms such as "12.0".
func ParseInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\\'); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return 0, false
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int(math.Round(f)), true
}

// ParseTime converts a DICOM TM value into milliseconds since midnight.
// Both "hhmmss.ffffff" and the legacy "hh:mm:ss.frac" forms are accepted;
// trailing components may be omitted.
func ParseTime(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\\'); i >= 0 {
		s = s[:i]
	}
	s = strings.ReplaceAll(s, ":", "")
	if s == "" {
		return 0, false
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if len(whole) < 2 || len(whole)%2 != 0 || len(whole) > 6 {
		return 0, false
	}

	var parts [3]int
	for i := 0; i*2 < len(whole); i++ {
		v, err := strconv.Atoi(whole[i*2 : i*2+2])
		if err != nil {
			return 0, false
		}
		parts[i] = v
	}
	if parts[0] > 23 || parts[1] > 59 || parts[2] > 60 {
		return 0, false
	}

	ms := float64(parts[0])*3600000 + float64(parts[1])*60000 + float64(parts[2])*1000
	if frac != "" {
		f, err := strconv.ParseFloat("0."+frac, 64)
		if err != nil {
			return 0, false
		}
		ms += f * 1000
	}
	return ms, true
}

// Str returns the trimmed string value of a tag.
func Str(dec Decoder, t tag.Tag) string {
	if !dec.HasTag(t) {
		return ""
	}
	return strings.TrimSpace(dec.StringValue(t))
}

// Int returns the integer value of a tag.
func Int(dec Decoder, t tag.Tag) (int, bool) {
	if !dec.HasTag(t) {
		return 0, false
	}
	return ParseInt(dec.StringValue(t))
}

// Float returns the first decimal value of a tag.
func Float(dec Decoder, t tag.Tag) (float64, bool) {
	vals, ok := Floats(dec, t)
	if !ok {
		return 0, false
	}
	return vals[0], true
}

// Floats returns all decimal values of a tag.
func Floats(dec Decoder, t tag.Tag) ([]float64, bool) {
	if !dec.HasTag(t) {
		return nil, false
	}
	return ParseFloats(dec.StringValue(t))
}

// Vec3 returns a 3-vector stored in a tag.
func Vec3(dec Decoder, t tag.Tag) ([3]float64, bool) {
	var out [3]float64
	vals, ok := Floats(dec, t)
	if !ok || len(vals) < 3 {
		return out, false
	}
	copy(out[:], vals[:3])
	return out, true
}

// Orientation returns the row and column direction cosines.
func Orientation(dec Decoder) (row, col [3]float64, ok bool) {
	vals, ok := Floats(dec, TagImageOrientationPatient)
	if !ok || len(vals) < 6 {
		return row, col, false
	}
	copy(row[:], vals[0:3])
	copy(col[:], vals[3:6])
	return row, col, true
}
