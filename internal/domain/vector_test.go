package domain

import (
	"errors"
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   []float32
		want []float32
	}{
		{"scales to unit length", []float32{3, 4}, []float32{0.6, 0.8}},
		{"already normalized", []float32{0, 1, 0}, []float32{0, 1, 0}},
		{"negative components", []float32{-3, 0, 4}, []float32{-0.6, 0, 0.8}},
		{"zero vector stays zero", []float32{0, 0, 0}, []float32{0, 0, 0}},
		// norm 1e-12 is floored to 1e-10
		{"tiny norm is floored", []float32{1e-12, 0}, []float32{0.01, 0}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Normalize(tc.in)
			if len(got) != len(tc.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tc.want))
			}
			for i := range got {
				if math.IsNaN(float64(got[i])) {
					t.Fatalf("component %d is NaN", i)
				}
				if math.Abs(float64(got[i]-tc.want[i])) > 1e-6 {
					t.Errorf("got %v, want %v", got, tc.want)
					break
				}
			}
		})
	}
}

func TestNormalize_DoesNotModifyInput(t *testing.T) {
	in := []float32{3, 4}
	_ = Normalize(in)
	if in[0] != 3 || in[1] != 4 {
		t.Errorf("input modified: %v", in)
	}
}

func TestCheckVector(t *testing.T) {
	tests := []struct {
		name    string
		in      []float32
		dim     int
		wantErr error
	}{
		{"ok", []float32{1, 2, 3}, 3, nil},
		{"zero vector ok", []float32{0, 0}, 2, nil},
		{"too short", []float32{1, 2}, 3, ErrVectorDimMismatch},
		{"too long", []float32{1, 2, 3, 4}, 3, ErrVectorDimMismatch},
		{"nan", []float32{1, float32(math.NaN())}, 2, ErrMalformedVector},
		{"inf", []float32{float32(math.Inf(-1)), 1}, 2, ErrMalformedVector},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckVector(tc.in, tc.dim)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestEncodeVector_LittleEndianNoPrefix(t *testing.T) {
	b := EncodeVector([]float32{1.0, -2.5})
	want := []byte{0x00, 0x00, 0x80, 0x3f, 0x00, 0x00, 0x20, 0xc0}
	if len(b) != len(want) {
		t.Fatalf("len = %d, want %d", len(b), len(want))
	}
	for i := range want {
		if b[i] != want[i] {
			t.Fatalf("bytes = % x, want % x", b, want)
		}
	}
}

func TestDecodeVector(t *testing.T) {
	vec := []float32{0.25, -1, 3.5, 0}
	tests := []struct {
		name    string
		blob    []byte
		dim     int
		want    []float32
		wantErr bool
	}{
		{"round trip", EncodeVector(vec), 4, vec, false},
		{"empty", EncodeVector(nil), 0, []float32{}, false},
		{"blob too short", EncodeVector(vec)[:15], 4, nil, true},
		{"blob for another dimension", EncodeVector(vec), 8, nil, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeVector(tc.blob, tc.dim)
			if tc.wantErr {
				if !errors.Is(err, ErrVectorDimMismatch) {
					t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tc.want))
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("got %v, want %v", got, tc.want)
				}
			}
		})
	}
}
