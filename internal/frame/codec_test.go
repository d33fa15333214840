package frame

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodeNegativePairs(t *testing.T) {
	f, err := Decode([]byte("7;-10.00000-25;-10.00000-25;-10.00000-25;-10.00000-25\x00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Counter != "7" {
		t.Errorf("counter: got %q, want %q", f.Counter, "7")
	}
	for i, r := range f.Readings {
		if r.Temperature != -10.0 {
			t.Errorf("channel %d temperature: got %v, want -10", i+1, r.Temperature)
		}
		if r.Aux != -25 {
			t.Errorf("channel %d aux: got %v, want -25", i+1, r.Aux)
		}
	}
}

func TestDecodeMixedSigns(t *testing.T) {
	f, err := Decode([]byte("abc;21.5-0;-3.25-1.5;0.0-0.0;19-7\x00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := [Channels]Reading{
		{Temperature: 21.5, Aux: 0},
		{Temperature: -3.25, Aux: -1.5},
		{Temperature: 0, Aux: 0},
		{Temperature: 19, Aux: -7},
	}
	if f.Counter != "abc" {
		t.Errorf("counter: got %q, want abc", f.Counter)
	}
	if f.Readings != want {
		t.Errorf("readings: got %+v, want %+v", f.Readings, want)
	}
	if got := f.Temperatures(); got != [Channels]float64{21.5, -3.25, 0, 19} {
		t.Errorf("temperatures: got %v", got)
	}
}

func TestDecodeIgnoresBytesAfterTerminator(t *testing.T) {
	f, err := Decode([]byte("1;1-1;2-2;3-3;4-4\x00garbage"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Readings[3].Temperature != 4 {
		t.Errorf("channel 4: got %v, want 4", f.Readings[3].Temperature)
	}
}

func TestDecodeNeedMoreData(t *testing.T) {
	_, err := Decode([]byte("7;-10.0-25;-10.0-25"))
	if !errors.Is(err, ErrNeedMoreData) {
		t.Errorf("expected ErrNeedMoreData, got %v", err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"empty", ""},
		{"counter only", "7"},
		{"three pairs", "7;1-1;2-2;3-3"},
		{"six fields", "7;1-1;2-2;3-3;4-4;5-5"},
		{"trailing delimiter", "7;1-1;2-2;3-3;4-4;"},
		{"no separator", "7;10.0;2-2;3-3;4-4"},
		{"lone minus", "7;-;2-2;3-3;4-4"},
		{"missing aux", "7;10.0-;2-2;3-3;4-4"},
		{"bad temperature", "7;x-1;2-2;3-3;4-4"},
		{"bad aux", "7;1-y;2-2;3-3;4-4"},
		{"double minus", "7;--5;2-2;3-3;4-4"},
		{"nan", "7;NaN-1;2-2;3-3;4-4"},
		{"inf", "7;1-Inf;2-2;3-3;4-4"},
		{"newline", "7;1-1;2-2;3-3;4-4\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.line + "\x00"))
			if !errors.Is(err, ErrMalformedFrame) {
				t.Errorf("expected ErrMalformedFrame, got %v", err)
			}
		})
	}
}

func TestDecodeArbitraryInputNeverPanics(t *testing.T) {
	inputs := []string{
		"\x00", ";;;;\x00", "----\x00", ";-;-;-;-\x00", "\x00\x00\x00",
		strings.Repeat(";", 100) + "\x00", "7;1e400-1;2-2;3-3;4-4\x00",
		"7;-1-1-1;2-2;3-3;4-4\x00", "\xff\xfe;1-1;2-2;3-3;4-4\x00",
	}
	for _, in := range inputs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Decode(%q) panicked: %v", in, r)
				}
			}()
			Decode([]byte(in))
		}()
	}
}

func TestSplitPair(t *testing.T) {
	tests := []struct {
		field    string
		wantTemp string
		wantAux  string
	}{
		{"-10.0-25", "-10.0", "-25"},
		{"10.0-25", "10.0", "-25"},
		{"0-0", "0", "-0"},
		{"-0.5-0.25", "-0.5", "-0.25"},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			temp, aux, err := SplitPair(tt.field)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if temp != tt.wantTemp || aux != tt.wantAux {
				t.Errorf("got (%q, %q), want (%q, %q)", temp, aux, tt.wantTemp, tt.wantAux)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		cmd  ActuationCommand
		want string
	}{
		{"safe", SafeCommand, "0;0;0;0\x00"},
		{"bang-bang", ActuationCommand{1, 0, 1, 1}, "1;0;1;1\x00"},
		{"pid", ActuationCommand{-12, 0, 250, 7}, "-12;0;250;7\x00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(Encode(tt.cmd)); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsSafe(t *testing.T) {
	if !SafeCommand.IsSafe() {
		t.Error("SafeCommand should be safe")
	}
	if (ActuationCommand{0, 0, 1, 0}).IsSafe() {
		t.Error("command with an active channel should not be safe")
	}
}
