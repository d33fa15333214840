package frame

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Decode parses the first complete line in b. If b holds no terminator it
// returns ErrNeedMoreData; bytes after the first terminator are ignored.
func Decode(b []byte) (SensorFrame, error) {
	i := bytes.IndexByte(b, Terminator)
	if i < 0 {
		return SensorFrame{}, ErrNeedMoreData
	}
	return ParseLine(string(b[:i]))
}

// ParseLine parses an unterminated input line:
//
//	<counter>;<temp1>-<aux1>;<temp2>-<aux2>;<temp3>-<aux3>;<temp4>-<aux4>
func ParseLine(line string) (SensorFrame, error) {
	parts := strings.Split(line, string(Delimiter))
	if len(parts) != Channels+1 {
		return SensorFrame{}, fmt.Errorf("%w: want %d fields, got %d", ErrMalformedFrame, Channels+1, len(parts))
	}

	f := SensorFrame{Counter: parts[0]}
	for i, field := range parts[1:] {
		r, err := parseReading(field)
		if err != nil {
			return SensorFrame{}, fmt.Errorf("channel %d: %w", i+1, err)
		}
		f.Readings[i] = r
	}
	return f, nil
}

func parseReading(field string) (Reading, error) {
	temp, aux, err := SplitPair(field)
	if err != nil {
		return Reading{}, err
	}
	t, err := parseNumber(temp)
	if err != nil {
		return Reading{}, fmt.Errorf("%w: temperature %q", ErrMalformedFrame, temp)
	}
	a, err := parseNumber(aux)
	if err != nil {
		return Reading{}, fmt.Errorf("%w: aux %q", ErrMalformedFrame, aux)
	}
	return Reading{Temperature: t, Aux: a}, nil
}

// parseNumber accepts finite decimals only; NaN would silently heat under
// bang-bang since every comparison with it is false.
func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}

// SplitPair splits "<temp>-<aux>" at the first '-' past index 0. A leading
// '-' is the temperature's own sign. The separator doubles as the aux sign,
// so "-10.0-25" yields ("-10.0", "-25").
func SplitPair(field string) (temp, aux string, err error) {
	if len(field) < 2 {
		return "", "", fmt.Errorf("%w: pair %q", ErrMalformedFrame, field)
	}
	sep := strings.IndexByte(field[1:], '-')
	if sep < 0 {
		return "", "", fmt.Errorf("%w: pair %q has no separator", ErrMalformedFrame, field)
	}
	sep++
	return field[:sep], field[sep:], nil
}

// Encode renders c as "h1;h2;h3;h4" followed by a single terminator.
func Encode(c ActuationCommand) []byte {
	buf := make([]byte, 0, 16)
	for i, v := range c {
		if i > 0 {
			buf = append(buf, Delimiter)
		}
		buf = strconv.AppendInt(buf, int64(v), 10)
	}
	return append(buf, Terminator)
}
