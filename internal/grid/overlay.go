package grid

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"math"
	"strconv"

	"github.com/harrison/gridpilot/internal/models"
)

const (
	// minOverlaySide is the short side the cropped region is scaled up to.
	minOverlaySide = 480
	maxOverlaySide = 4096
	glyphScale     = 2
)

var (
	lineColor   = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	marginColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	labelColor  = color.RGBA{R: 0, G: 0, B: 0, A: 255}
)

// Decode decodes a PNG or JPEG screenshot.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}
	return img, nil
}

// RenderOverlay crops img to the pixels under region, scales the crop up,
// draws an n×n grid over the region with column letters along the top and
// row numbers along the left, and encodes the result as PNG. Regions
// narrower than a pixel are drawn inside their enlarged pixels.
func RenderOverlay(img image.Image, region Region, n int) ([]byte, error) {
	if region.Empty() {
		return nil, fmt.Errorf("empty region %+v", region)
	}
	crop := region.Bounds()
	w, h := crop.Dx(), crop.Dy()
	scale := overlayScale(w, h)

	glyphW := (glyphWidth + 1) * glyphScale
	glyphH := glyphHeight * glyphScale
	left := len(strconv.Itoa(n))*glyphW + 4
	top := glyphH + 4

	canvas := image.NewRGBA(image.Rect(0, 0, left+w*scale, top+h*scale))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: marginColor}, image.Point{}, draw.Src)

	for y := 0; y < h*scale; y++ {
		sy := crop.Min.Y + y/scale
		for x := 0; x < w*scale; x++ {
			canvas.Set(left+x, top+y, img.At(crop.Min.X+x/scale, sy))
		}
	}

	// toCanvas maps a screenshot coordinate to a canvas column or row.
	toCanvas := func(v float64, origin, offset, limit int) int {
		c := offset + int(math.Round((v-float64(origin))*float64(scale)))
		if c > offset+limit-1 {
			c = offset + limit - 1
		}
		return c
	}

	x0, x1 := toCanvas(region.MinX, crop.Min.X, left, w*scale), toCanvas(region.MaxX, crop.Min.X, left, w*scale)
	y0, y1 := toCanvas(region.MinY, crop.Min.Y, top, h*scale), toCanvas(region.MaxY, crop.Min.Y, top, h*scale)
	for i := 0; i <= n; i++ {
		x := toCanvas(region.MinX+float64(i)*region.Dx()/float64(n), crop.Min.X, left, w*scale)
		y := toCanvas(region.MinY+float64(i)*region.Dy()/float64(n), crop.Min.Y, top, h*scale)
		for yy := y0; yy <= y1; yy++ {
			canvas.Set(x, yy, lineColor)
		}
		for xx := x0; xx <= x1; xx++ {
			canvas.Set(xx, y, lineColor)
		}
	}

	colLabelW := 2 * glyphW
	rowLabelH := glyphH
	colStep := labelStep(colLabelW, (x1-x0)/n)
	rowStep := labelStep(rowLabelH, (y1-y0)/n)
	for i := 0; i < n; i++ {
		cell := region.Cell(n, models.CellAddress{Col: i, Row: i})
		if i%colStep == 0 {
			name := models.CellAddress{Col: i}.String()
			name = name[:len(name)-1]
			drawText(canvas, toCanvas(cell.MinX, crop.Min.X, left, w*scale)+1, 2, name)
		}
		if i%rowStep == 0 {
			drawText(canvas, 2, toCanvas(cell.MinY, crop.Min.Y, top, h*scale)+1, strconv.Itoa(i+1))
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("failed to encode overlay: %w", err)
	}
	return buf.Bytes(), nil
}

// overlayScale enlarges the short side to minOverlaySide without letting the
// long side pass maxOverlaySide.
func overlayScale(w, h int) int {
	short, long := w, h
	if h < w {
		short, long = h, w
	}
	scale := (minOverlaySide + short - 1) / short
	if scale*long > maxOverlaySide {
		scale = maxOverlaySide / long
	}
	if scale < 1 {
		scale = 1
	}
	return scale
}

func labelStep(labelSize, cellSize int) int {
	if cellSize <= 0 {
		return 1 << 30
	}
	step := (labelSize + cellSize - 1) / cellSize
	if step < 1 {
		step = 1
	}
	return step
}

func drawText(dst *image.RGBA, x, y int, text string) {
	for _, r := range text {
		glyph, ok := glyphs[r]
		if ok {
			for row := 0; row < glyphHeight; row++ {
				for col := 0; col < glyphWidth; col++ {
					if glyph[row]&(1<<(glyphWidth-1-col)) == 0 {
						continue
					}
					for dy := 0; dy < glyphScale; dy++ {
						for dx := 0; dx < glyphScale; dx++ {
							dst.Set(x+col*glyphScale+dx, y+row*glyphScale+dy, labelColor)
						}
					}
				}
			}
		}
		x += (glyphWidth + 1) * glyphScale
	}
}

const (
	glyphWidth  = 3
	glyphHeight = 5
)

// glyphs is a 3x5 bitmap font; each row is a 3-bit mask, high bit left.
var glyphs = map[rune][glyphHeight]uint8{
	'A': {2, 5, 7, 5, 5}, 'B': {6, 5, 6, 5, 6}, 'C': {3, 4, 4, 4, 3}, 'D': {6, 5, 5, 5, 6},
	'E': {7, 4, 6, 4, 7}, 'F': {7, 4, 6, 4, 4}, 'G': {3, 4, 5, 5, 3}, 'H': {5, 5, 7, 5, 5},
	'I': {7, 2, 2, 2, 7}, 'J': {1, 1, 1, 5, 2}, 'K': {5, 5, 6, 5, 5}, 'L': {4, 4, 4, 4, 7},
	'M': {5, 7, 7, 5, 5}, 'N': {6, 5, 5, 5, 5}, 'O': {2, 5, 5, 5, 2}, 'P': {6, 5, 6, 4, 4},
	'Q': {2, 5, 5, 6, 3}, 'R': {6, 5, 6, 5, 5}, 'S': {3, 4, 2, 1, 6}, 'T': {7, 2, 2, 2, 2},
	'U': {5, 5, 5, 5, 7}, 'V': {5, 5, 5, 5, 2}, 'W': {5, 5, 7, 7, 5}, 'X': {5, 5, 2, 5, 5},
	'Y': {5, 5, 2, 2, 2}, 'Z': {7, 1, 2, 4, 7},
	'0': {7, 5, 5, 5, 7}, '1': {2, 6, 2, 2, 7}, '2': {6, 1, 2, 4, 7}, '3': {6, 1, 2, 1, 6},
	'4': {5, 5, 7, 1, 1}, '5': {7, 4, 6, 1, 6}, '6': {3, 4, 7, 5, 7}, '7': {7, 1, 2, 2, 2},
	'8': {7, 5, 7, 5, 7}, '9': {7, 5, 7, 1, 6},
}
