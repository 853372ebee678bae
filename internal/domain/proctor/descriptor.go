package proctor

import (
	"image"
	"math"
)

// GridSize is the side of the luminance grid a face is reduced to.
const GridSize = 16

// Descriptor crops img to face, averages it down to a GridSize×GridSize grid
// and returns the luminance of each cell in [0,1], row-major. It returns nil
// when face does not overlap the image.
func Descriptor(img image.Image, face image.Rectangle) []float64 {
	r := face.Intersect(img.Bounds())
	if r.Empty() {
		return nil
	}
	w, h := r.Dx(), r.Dy()
	out := make([]float64, 0, GridSize*GridSize)
	for gy := 0; gy < GridSize; gy++ {
		y0 := r.Min.Y + gy*h/GridSize
		y1 := r.Min.Y + (gy+1)*h/GridSize
		if y1 <= y0 {
			y1 = y0 + 1
		}
		for gx := 0; gx < GridSize; gx++ {
			x0 := r.Min.X + gx*w/GridSize
			x1 := r.Min.X + (gx+1)*w/GridSize
			if x1 <= x0 {
				x1 = x0 + 1
			}
			out = append(out, meanLuminance(img, x0, y0, x1, y1))
		}
	}
	return out
}

func meanLuminance(img image.Image, x0, y0, x1, y1 int) float64 {
	var sum float64
	var n int
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			sum += luminance(img, x, y)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func luminance(img image.Image, x, y int) float64 {
	r, g, b, _ := img.At(x, y).RGBA()
	return (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 0xffff
}

// MeanAbsDiff is the mean absolute difference of two descriptors. Vectors of
// different length are maximally different.
func MeanAbsDiff(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var sum float64
	for i := range a {
		sum += math.Abs(a[i] - b[i])
	}
	return sum / float64(len(a))
}
