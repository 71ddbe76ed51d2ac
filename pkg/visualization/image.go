package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/mat"

	"cellseg/pkg/segmentation"
)

// Gray16 converts a plane of normalized intensities to a 16-bit grayscale
// image. Values are clamped to [0, 1].
func Gray16(m mat.Matrix) *image.Gray16 {
	rows, cols := m.Dims()
	img := image.NewGray16(image.Rect(0, 0, cols, rows))
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			value := uint16(math.Max(0, math.Min(65535, m.At(y, x)*65535)))
			img.SetGray16(x, y, color.Gray16{Y: value})
		}
	}
	return img
}

// Stretch returns a copy of m mapped linearly onto [0, 1]. A constant plane
// maps to zero.
func Stretch(m mat.Matrix) *mat.Dense {
	out := mat.DenseCopyOf(m)
	lo, hi := mat.Min(out), mat.Max(out)
	out.Apply(func(_, _ int, v float64) float64 {
		if hi <= lo {
			return 0
		}
		return (v - lo) / (hi - lo)
	}, out)
	return out
}

// Labels renders a label map with one color per cell on a black background.
func Labels(m *segmentation.Mask) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, m.Cols, m.Rows))
	colors := generateColors(m.Count)
	for y := 0; y < m.Rows; y++ {
		for x := 0; x < m.Cols; x++ {
			c := color.Color(color.Black)
			if l := m.At(y, x); l > 0 {
				c = colors[l-1]
			}
			img.Set(x, y, c)
		}
	}
	return img
}

// Save writes img to filename, choosing PNG or JPEG from the extension.
func Save(img image.Image, filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".png" && ext != ".jpg" && ext != ".jpeg" {
		return fmt.Errorf("unsupported image extension %q", ext)
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	if ext == ".png" {
		return png.Encode(file, img)
	}
	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// generateColors spreads n colors evenly around the hue circle.
func generateColors(n int) []color.Color {
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

func hslToRGB(h, s, l float64) (r, g, b uint8) {
	q := l * (1 + s)
	if l >= 0.5 {
		q = l + s - l*s
	}
	p := 2*l - q
	channel := func(t float64) uint8 {
		t -= math.Floor(t)
		var v float64
		switch {
		case t < 1.0/6:
			v = p + (q-p)*6*t
		case t < 0.5:
			v = q
		case t < 2.0/3:
			v = p + (q-p)*(2.0/3-t)*6
		default:
			v = p
		}
		return uint8(math.Round(v * 255))
	}
	return channel(h + 1.0/3), channel(h), channel(h - 1.0/3)
}
