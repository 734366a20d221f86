// Package grid locates a described target on a screenshot by overlaying an
// N×N grid, asking a chooser for a cell and refining inside that cell until
// the chooser is confident enough.
package grid

import (
	"fmt"
	"math"

	"github.com/harrison/gridpilot/internal/models"
)

// Region is an area of a screenshot in pixel units. Refinement can narrow
// it below one pixel, so its edges are fractional.
type Region struct {
	MinX, MinY, MaxX, MaxY float64
}

// RegionOf converts a pixel rectangle.
func RegionOf(r models.Rect) Region {
	return Region{
		MinX: float64(r.Min.X), MinY: float64(r.Min.Y),
		MaxX: float64(r.Max.X), MaxY: float64(r.Max.Y),
	}
}

func (r Region) Dx() float64 { return r.MaxX - r.MinX }
func (r Region) Dy() float64 { return r.MaxY - r.MinY }

// Empty reports whether the region has no area.
func (r Region) Empty() bool { return !(r.Dx() > 0 && r.Dy() > 0) }

// Cell returns the area of addr in an n×n grid laid over r. Cells tile the
// region exactly.
func (r Region) Cell(n int, addr models.CellAddress) Region {
	w, h := r.Dx(), r.Dy()
	cell := Region{
		MinX: r.MinX + float64(addr.Col)*w/float64(n),
		MinY: r.MinY + float64(addr.Row)*h/float64(n),
		MaxX: r.MinX + float64(addr.Col+1)*w/float64(n),
		MaxY: r.MinY + float64(addr.Row+1)*h/float64(n),
	}
	if addr.Col == n-1 {
		cell.MaxX = r.MaxX
	}
	if addr.Row == n-1 {
		cell.MaxY = r.MaxY
	}
	return cell
}

// Bounds returns the pixels the region touches, at least one in each
// direction.
func (r Region) Bounds() models.Rect {
	b := models.Rect{
		Min: models.Point{X: int(math.Floor(r.MinX)), Y: int(math.Floor(r.MinY))},
		Max: models.Point{X: int(math.Ceil(r.MaxX)), Y: int(math.Ceil(r.MaxY))},
	}
	if b.Max.X <= b.Min.X {
		b.Max.X = b.Min.X + 1
	}
	if b.Max.Y <= b.Min.Y {
		b.Max.Y = b.Min.Y + 1
	}
	return b
}

// Center returns the pixel holding the region's center.
func (r Region) Center() models.Point {
	p := models.Point{
		X: int(math.Floor(r.MinX + r.Dx()/2)),
		Y: int(math.Floor(r.MinY + r.Dy()/2)),
	}
	b := r.Bounds()
	if p.X >= b.Max.X {
		p.X = b.Max.X - 1
	}
	if p.Y >= b.Max.Y {
		p.Y = b.Max.Y - 1
	}
	return p
}

// Contains reports whether o lies within r.
func (r Region) Contains(o Region) bool {
	return o.MinX >= r.MinX && o.MinY >= r.MinY && o.MaxX <= r.MaxX && o.MaxY <= r.MaxY
}

// Lookup parses id and checks it addresses a cell of an n×n grid.
func Lookup(id string, n int) (models.CellAddress, error) {
	addr, err := models.ParseCell(id)
	if err != nil {
		return models.CellAddress{}, err
	}
	if addr.Col >= n || addr.Row >= n {
		return models.CellAddress{}, fmt.Errorf("cell %s is outside the %dx%d grid", addr, n, n)
	}
	return addr, nil
}
