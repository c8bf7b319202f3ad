package testutils

import (
	"image"
	"image/color"
)

// SolidImage returns a w×h image filled with c.
func SolidImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

// PatternImage returns a w×h opaque image whose pixels depend on seed and position, so
// that every camera in a frame and every pixel in an image is distinguishable.
func PatternImage(w, h int, seed byte) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(x, y)
			img.Pix[i] = byte(x) + seed
			img.Pix[i+1] = byte(y) ^ seed
			img.Pix[i+2] = byte(x+y) * (seed | 1)
			img.Pix[i+3] = 0xff
		}
	}
	return img
}

// Frame returns n pattern images of w×h, one per camera.
func Frame(n, w, h int, seed byte) []image.Image {
	out := make([]image.Image, n)
	for i := range out {
		out[i] = PatternImage(w, h, seed+byte(i)*17)
	}
	return out
}
