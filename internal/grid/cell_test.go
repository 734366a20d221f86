package grid

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/harrison/gridpilot/internal/models"
)

func TestRegionCell(t *testing.T) {
	region := RegionOf(models.Rect{Min: models.Point{X: 10, Y: 20}, Max: models.Point{X: 110, Y: 70}})

	tests := []struct {
		cell   string
		want   Region
		bounds models.Rect
	}{
		{"A1", Region{MinX: 10, MinY: 20, MaxX: 35, MaxY: 32.5}, models.Rect{Min: models.Point{X: 10, Y: 20}, Max: models.Point{X: 35, Y: 33}}},
		{"D4", Region{MinX: 85, MinY: 57.5, MaxX: 110, MaxY: 70}, models.Rect{Min: models.Point{X: 85, Y: 57}, Max: models.Point{X: 110, Y: 70}}},
		{"B3", Region{MinX: 35, MinY: 45, MaxX: 60, MaxY: 57.5}, models.Rect{Min: models.Point{X: 35, Y: 45}, Max: models.Point{X: 60, Y: 58}}},
	}

	for _, tt := range tests {
		t.Run(tt.cell, func(t *testing.T) {
			addr, err := Lookup(tt.cell, 4)
			require.NoError(t, err)
			cell := region.Cell(4, addr)
			assert.Equal(t, tt.want, cell)
			assert.Equal(t, tt.bounds, cell.Bounds())
		})
	}
}

func TestRegionSubPixel(t *testing.T) {
	// One 60×60 cell of a 1280×800 screenshot, refined once more.
	screen := RegionOf(models.Rect{Max: models.Point{X: 1280, Y: 800}})
	addr, err := Lookup("M23", 60)
	require.NoError(t, err)
	cell := screen.Cell(60, addr).Cell(60, addr)

	assert.False(t, cell.Empty())
	assert.Less(t, cell.Dx(), 1.0)
	b := cell.Bounds()
	assert.Equal(t, 1, b.Dx())
	assert.Equal(t, 1, b.Dy())
	p := cell.Center()
	assert.Equal(t, b.Min, p)
}

func TestLookup(t *testing.T) {
	_, err := Lookup("E1", 4)
	assert.Error(t, err)
	_, err = Lookup("A5", 4)
	assert.Error(t, err)
	addr, err := Lookup("bh60", 60)
	require.NoError(t, err)
	assert.Equal(t, models.CellAddress{Col: 59, Row: 59}, addr)
}

func TestRegionCell_TilesRegion(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(2, 60).Draw(rt, "n")
		region := RegionOf(models.Rect{
			Min: models.Point{X: rapid.IntRange(0, 500).Draw(rt, "x"), Y: rapid.IntRange(0, 500).Draw(rt, "y")},
		})
		region.MaxX = region.MinX + float64(rapid.IntRange(1, 2000).Draw(rt, "w"))
		region.MaxY = region.MinY + float64(rapid.IntRange(1, 2000).Draw(rt, "h"))

		area := 0.0
		for col := 0; col < n; col++ {
			for row := 0; row < n; row++ {
				c := region.Cell(n, models.CellAddress{Col: col, Row: row})
				if c.Empty() || !region.Contains(c) {
					rt.Fatalf("cell %d,%d = %+v not a part of %+v", col, row, c, region)
				}
				area += c.Dx() * c.Dy()
				p := c.Center()
				b := c.Bounds()
				if p.X < b.Min.X || p.X >= b.Max.X || p.Y < b.Min.Y || p.Y >= b.Max.Y {
					rt.Fatalf("center %v outside bounds %v", p, b)
				}
			}
		}
		whole := region.Dx() * region.Dy()
		if math.Abs(area-whole) > whole*1e-9 {
			rt.Fatalf("cells cover %v, region has %v", area, whole)
		}
	})
}

func TestRenderOverlay(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	region := RegionOf(models.Rect{Min: models.Point{X: 50, Y: 50}, Max: models.Point{X: 150, Y: 150}})

	data, err := RenderOverlay(img, region, 4)
	require.NoError(t, err)

	out, err := Decode(data)
	require.NoError(t, err)

	// 100px region scaled 5x, plus label margins.
	left, top := 12, 14
	assert.Equal(t, left+500, out.Bounds().Dx())
	assert.Equal(t, top+500, out.Bounds().Dy())

	r, g, b, _ := out.At(left, top+50).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0), g)
	assert.Equal(t, uint32(0), b)

	// Second vertical line at the first cell boundary.
	r, _, _, _ = out.At(left+125, top+10).RGBA()
	assert.Equal(t, uint32(0xffff), r)
}

func TestRenderOverlay_EmptyRegion(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	_, err := RenderOverlay(img, Region{}, 4)
	assert.Error(t, err)
}

func TestRenderOverlay_SubPixelRegion(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	region := Region{MinX: 10.25, MinY: 10.25, MaxX: 10.75, MaxY: 10.75}

	data, err := RenderOverlay(img, region, 4)
	require.NoError(t, err)
	out, err := Decode(data)
	require.NoError(t, err)

	// The single pixel is enlarged to the minimum overlay side.
	assert.Equal(t, 12+minOverlaySide, out.Bounds().Dx())
	assert.Equal(t, 14+minOverlaySide, out.Bounds().Dy())

	// The grid starts a quarter of the way into the pixel.
	r, _, _, _ := out.At(12+minOverlaySide/4, 14+minOverlaySide/2).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	r, _, _, _ = out.At(12+2, 14+minOverlaySide/2).RGBA()
	assert.Equal(t, uint32(0), r)
}

func TestOverlayScale(t *testing.T) {
	assert.Equal(t, 1, overlayScale(1280, 800))
	assert.Equal(t, 5, overlayScale(100, 100))
	assert.Equal(t, minOverlaySide, overlayScale(1, 1))
	assert.Equal(t, maxOverlaySide/2000, overlayScale(2000, 2))
}

func TestDrawText(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 20, 20))
	drawText(dst, 0, 0, "A")
	// Top row of 'A' is the middle bit only.
	assert.Equal(t, color.RGBA{}, dst.RGBAAt(0, 0))
	assert.Equal(t, labelColor, dst.RGBAAt(glyphScale, 0))
}
