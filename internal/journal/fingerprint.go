package journal

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"sort"
	"strings"
)

// FingerprintLandmarks fingerprints a page by its visible landmark texts
// (headings, buttons, links). Order and duplicates do not matter.
func FingerprintLandmarks(texts []string) string {
	seen := make(map[string]bool, len(texts))
	var norm []string
	for _, t := range texts {
		t = strings.Join(strings.Fields(strings.ToLower(t)), " ")
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		norm = append(norm, t)
	}
	sort.Strings(norm)
	sum := sha256.Sum256([]byte(strings.Join(norm, "\n")))
	return "l:" + hex.EncodeToString(sum[:8])
}

// FingerprintImage returns a 64-bit difference hash of a screenshot. The image
// is reduced to a 9x8 grayscale thumbnail and each bit records whether a pixel
// is brighter than its right neighbour, so small rendering noise does not
// change the result.
func FingerprintImage(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to decode screenshot: %w", err)
	}
	return fmt.Sprintf("d:%016x", dHash(img)), nil
}

func dHash(img image.Image) uint64 {
	const w, h = 9, 8
	b := img.Bounds()
	var thumb [h][w]float64
	for ty := 0; ty < h; ty++ {
		y0 := b.Min.Y + ty*b.Dy()/h
		y1 := b.Min.Y + (ty+1)*b.Dy()/h
		if y1 <= y0 {
			y1 = y0 + 1
		}
		for tx := 0; tx < w; tx++ {
			x0 := b.Min.X + tx*b.Dx()/w
			x1 := b.Min.X + (tx+1)*b.Dx()/w
			if x1 <= x0 {
				x1 = x0 + 1
			}
			thumb[ty][tx] = meanLuma(img, x0, y0, x1, y1)
		}
	}

	var hash uint64
	for y := 0; y < h; y++ {
		for x := 0; x < w-1; x++ {
			hash <<= 1
			if thumb[y][x] > thumb[y][x+1] {
				hash |= 1
			}
		}
	}
	return hash
}

// meanLuma averages luma over a block, sampling at most 16x16 pixels.
func meanLuma(img image.Image, x0, y0, x1, y1 int) float64 {
	stepX := (x1 - x0 + 15) / 16
	stepY := (y1 - y0 + 15) / 16
	var sum float64
	var n int
	for y := y0; y < y1; y += stepY {
		for x := x0; x < x1; x += stepX {
			r, g, bl, _ := img.At(x, y).RGBA()
			sum += 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
