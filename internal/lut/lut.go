// Package lut parses .cube 3D lookup tables and applies them to RGBA frames
// with trilinear interpolation.
package lut

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// LUT is a parsed 3D lookup table. The table is stored red-fastest, the
// layout the .cube format mandates.
type LUT struct {
	Title     string
	Size      int
	DomainMin [3]float64
	DomainMax [3]float64
	table     []float32 // Size^3 * 3 entries
}

// Identity reports whether applying the LUT would be a no-op.
func (l *LUT) Identity() bool {
	return l == nil || l.Size == 0
}

// Load parses a .cube file from disk.
func Load(path string) (*LUT, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open LUT: %w", err)
	}
	defer f.Close()
	l, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse LUT %s: %w", path, err)
	}
	return l, nil
}

// Parse reads a .cube table. Comment lines and blank lines are skipped;
// LUT_1D_SIZE tables are rejected.
func Parse(r io.Reader) (*LUT, error) {
	l := &LUT{
		DomainMin: [3]float64{0, 0, 0},
		DomainMax: [3]float64{1, 1, 1},
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		switch fields[0] {
		case "TITLE":
			l.Title = strings.Trim(strings.TrimPrefix(text, "TITLE"), ` "`)
		case "LUT_1D_SIZE":
			return nil, fmt.Errorf("line %d: 1D tables are not supported", line)
		case "LUT_3D_SIZE":
			if len(fields) != 2 {
				return nil, fmt.Errorf("line %d: malformed LUT_3D_SIZE", line)
			}
			size, err := strconv.Atoi(fields[1])
			if err != nil || size < 2 || size > 256 {
				return nil, fmt.Errorf("line %d: invalid LUT_3D_SIZE %q", line, fields[1])
			}
			l.Size = size
			l.table = make([]float32, 0, size*size*size*3)
		case "DOMAIN_MIN", "DOMAIN_MAX":
			if len(fields) != 4 {
				return nil, fmt.Errorf("line %d: malformed %s", line, fields[0])
			}
			var v [3]float64
			for i := 0; i < 3; i++ {
				f, err := strconv.ParseFloat(fields[i+1], 64)
				if err != nil {
					return nil, fmt.Errorf("line %d: %s: %w", line, fields[0], err)
				}
				v[i] = f
			}
			if fields[0] == "DOMAIN_MIN" {
				l.DomainMin = v
			} else {
				l.DomainMax = v
			}
		default:
			if len(fields) != 3 {
				return nil, fmt.Errorf("line %d: expected 3 values, got %d", line, len(fields))
			}
			if l.Size == 0 {
				return nil, fmt.Errorf("line %d: table data before LUT_3D_SIZE", line)
			}
			for _, field := range fields {
				f, err := strconv.ParseFloat(field, 32)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", line, err)
				}
				l.table = append(l.table, float32(f))
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if l.Size == 0 {
		return nil, fmt.Errorf("missing LUT_3D_SIZE")
	}
	want := l.Size * l.Size * l.Size * 3
	if len(l.table) != want {
		return nil, fmt.Errorf("table has %d values, want %d for size %d", len(l.table), want, l.Size)
	}
	for i := 0; i < 3; i++ {
		if l.DomainMax[i] <= l.DomainMin[i] {
			return nil, fmt.Errorf("degenerate domain on axis %d", i)
		}
	}
	return l, nil
}

// Apply maps src through the table into dst with trilinear interpolation.
// Both buffers are RGBA; alpha passes through untouched. src and dst may
// alias. Returns an error when the buffer lengths differ or are not a
// multiple of four.
func (l *LUT) Apply(src, dst []byte) error {
	if len(src) != len(dst) {
		return fmt.Errorf("buffer length mismatch: src %d, dst %d", len(src), len(dst))
	}
	if len(src)%4 != 0 {
		return fmt.Errorf("buffer length %d is not RGBA", len(src))
	}
	if l.Identity() {
		copy(dst, src)
		return nil
	}

	n := l.Size
	scale := float64(n - 1)
	for i := 0; i < len(src); i += 4 {
		r := l.normalize(float64(src[i])/255, 0)
		g := l.normalize(float64(src[i+1])/255, 1)
		b := l.normalize(float64(src[i+2])/255, 2)

		rf, gf, bf := r*scale, g*scale, b*scale
		r0, g0, b0 := int(rf), int(gf), int(bf)
		r1, g1, b1 := min(r0+1, n-1), min(g0+1, n-1), min(b0+1, n-1)
		dr, dg, db := float32(rf-float64(r0)), float32(gf-float64(g0)), float32(bf-float64(b0))

		var out [3]float32
		for ch := 0; ch < 3; ch++ {
			c000 := l.at(r0, g0, b0, ch)
			c100 := l.at(r1, g0, b0, ch)
			c010 := l.at(r0, g1, b0, ch)
			c110 := l.at(r1, g1, b0, ch)
			c001 := l.at(r0, g0, b1, ch)
			c101 := l.at(r1, g0, b1, ch)
			c011 := l.at(r0, g1, b1, ch)
			c111 := l.at(r1, g1, b1, ch)

			c00 := c000 + (c100-c000)*dr
			c10 := c010 + (c110-c010)*dr
			c01 := c001 + (c101-c001)*dr
			c11 := c011 + (c111-c011)*dr
			c0 := c00 + (c10-c00)*dg
			c1 := c01 + (c11-c01)*dg
			out[ch] = c0 + (c1-c0)*db
		}

		dst[i] = clampByte(out[0])
		dst[i+1] = clampByte(out[1])
		dst[i+2] = clampByte(out[2])
		dst[i+3] = src[i+3]
	}
	return nil
}

// normalize maps a [0,1] channel value into table coordinates for one axis,
// clamped to the domain.
func (l *LUT) normalize(v float64, axis int) float64 {
	v = (v - l.DomainMin[axis]) / (l.DomainMax[axis] - l.DomainMin[axis])
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// at indexes the red-fastest table.
func (l *LUT) at(r, g, b, ch int) float32 {
	return l.table[((b*l.Size+g)*l.Size+r)*3+ch]
}

func clampByte(v float32) byte {
	scaled := v * 255
	if scaled <= 0 {
		return 0
	}
	if scaled >= 255 {
		return 255
	}
	return byte(scaled + 0.5)
}
