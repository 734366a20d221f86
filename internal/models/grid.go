package models

import (
	"fmt"
	"image"
	"strconv"
	"strings"
)

// Point is a pixel coordinate in full-screenshot space.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// Rect is a pixel rectangle; Min inclusive, Max exclusive.
type Rect struct {
	Min Point `json:"min"`
	Max Point `json:"max"`
}

// RectFrom converts an image.Rectangle.
func RectFrom(r image.Rectangle) Rect {
	return Rect{Min: Point{X: r.Min.X, Y: r.Min.Y}, Max: Point{X: r.Max.X, Y: r.Max.Y}}
}

// Image converts back to an image.Rectangle.
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Max.Y)
}

func (r Rect) Dx() int { return r.Max.X - r.Min.X }
func (r Rect) Dy() int { return r.Max.Y - r.Min.Y }

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool { return r.Dx() <= 0 || r.Dy() <= 0 }

// Center returns the center pixel of the rectangle.
func (r Rect) Center() Point {
	return Point{X: r.Min.X + r.Dx()/2, Y: r.Min.Y + r.Dy()/2}
}

// CellAddress addresses a grid cell in A1 notation: column letters
// (A..Z, AA..) then a 1-based row number. Col and Row are zero-based.
type CellAddress struct {
	Col int
	Row int
}

func (c CellAddress) String() string {
	return columnName(c.Col) + strconv.Itoa(c.Row+1)
}

func columnName(col int) string {
	var b []byte
	for n := col + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}

// ParseCell parses an A1-style cell id such as "M23" or "BH60".
func ParseCell(id string) (CellAddress, error) {
	s := strings.ToUpper(strings.TrimSpace(id))
	i := 0
	col := 0
	for i < len(s) && s[i] >= 'A' && s[i] <= 'Z' {
		col = col*26 + int(s[i]-'A'+1)
		i++
	}
	if i == 0 || i == len(s) {
		return CellAddress{}, fmt.Errorf("invalid cell id %q", id)
	}
	row, err := strconv.Atoi(s[i:])
	if err != nil || row < 1 {
		return CellAddress{}, fmt.Errorf("invalid cell id %q", id)
	}
	return CellAddress{Col: col - 1, Row: row - 1}, nil
}

// GridResolution is the outcome of one resolution attempt.
type GridResolution struct {
	Cell       string  `json:"cell"`
	Rect       Rect    `json:"rect"`
	Point      Point   `json:"point"`
	Confidence float64 `json:"confidence"`
	Depth      int     `json:"depth"`
}
