package lut

import (
	"fmt"
	"strings"
	"testing"
)

// identityCube builds an identity table of the given size.
func identityCube(size int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TITLE \"identity\"\nLUT_3D_SIZE %d\n", size)
	scale := float64(size - 1)
	for blue := 0; blue < size; blue++ {
		for green := 0; green < size; green++ {
			for red := 0; red < size; red++ {
				fmt.Fprintf(&b, "%.6f %.6f %.6f\n",
					float64(red)/scale, float64(green)/scale, float64(blue)/scale)
			}
		}
	}
	return b.String()
}

// invertCube maps every channel to its complement.
func invertCube(size int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "LUT_3D_SIZE %d\n", size)
	scale := float64(size - 1)
	for blue := 0; blue < size; blue++ {
		for green := 0; green < size; green++ {
			for red := 0; red < size; red++ {
				fmt.Fprintf(&b, "%.6f %.6f %.6f\n",
					1-float64(red)/scale, 1-float64(green)/scale, 1-float64(blue)/scale)
			}
		}
	}
	return b.String()
}

func TestParseIdentity(t *testing.T) {
	l, err := Parse(strings.NewReader(identityCube(17)))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if l.Size != 17 {
		t.Errorf("Size = %d, want 17", l.Size)
	}
	if l.Title != "identity" {
		t.Errorf("Title = %q, want identity", l.Title)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"no size", "0.0 0.0 0.0\n"},
		{"1d table", "LUT_1D_SIZE 1024\n"},
		{"size too small", "LUT_3D_SIZE 1\n0 0 0\n"},
		{"short table", "LUT_3D_SIZE 2\n0 0 0\n1 1 1\n"},
		{"bad value", "LUT_3D_SIZE 2\n" + strings.Repeat("0 0 x\n", 8)},
		{"wrong column count", "LUT_3D_SIZE 2\n" + strings.Repeat("0 0\n", 8)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(tt.input)); err == nil {
				t.Error("Parse accepted malformed input")
			}
		})
	}
}

func TestApplyIdentityPreservesPixels(t *testing.T) {
	l, err := Parse(strings.NewReader(identityCube(9)))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	src := []byte{0, 64, 128, 255, 255, 200, 17, 3}
	dst := make([]byte, len(src))
	if err := l.Apply(src, dst); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	for i := range src {
		diff := int(src[i]) - int(dst[i])
		if diff < -1 || diff > 1 {
			t.Errorf("pixel byte %d: %d -> %d, identity should round-trip", i, src[i], dst[i])
		}
	}
}

func TestApplyInvert(t *testing.T) {
	l, err := Parse(strings.NewReader(invertCube(5)))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	src := []byte{0, 255, 128, 42}
	dst := make([]byte, 4)
	if err := l.Apply(src, dst); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if dst[0] != 255 || dst[1] != 0 {
		t.Errorf("invert: got R=%d G=%d, want 255 0", dst[0], dst[1])
	}
	if dst[3] != 42 {
		t.Errorf("alpha = %d, must pass through untouched", dst[3])
	}
}

func TestApplyRejectsMismatchedBuffers(t *testing.T) {
	l, err := Parse(strings.NewReader(identityCube(2)))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := l.Apply(make([]byte, 8), make([]byte, 4)); err == nil {
		t.Error("length mismatch accepted")
	}
	if err := l.Apply(make([]byte, 6), make([]byte, 6)); err == nil {
		t.Error("non-RGBA length accepted")
	}
}

func TestNilLUTIsIdentity(t *testing.T) {
	var l *LUT
	if !l.Identity() {
		t.Fatal("nil LUT should be identity")
	}
	src := []byte{9, 8, 7, 6}
	dst := make([]byte, 4)
	if err := l.Apply(src, dst); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if dst[0] != 9 || dst[3] != 6 {
		t.Error("identity apply should copy src to dst")
	}
}
