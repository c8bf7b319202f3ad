package staging

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// ChannelOrder names the order of the three color channels.
type ChannelOrder int

const (
	// BGR is blue, green, red.
	BGR ChannelOrder = iota
	// RGB is red, green, blue.
	RGB
)

// ParseChannelOrder parses "bgr" or "rgb". An empty string is BGR.
func ParseChannelOrder(s string) (ChannelOrder, error) {
	switch strings.ToLower(s) {
	case "", "bgr":
		return BGR, nil
	case "rgb":
		return RGB, nil
	default:
		return 0, errors.Errorf("unknown channel order %q, expected bgr or rgb", s)
	}
}

func (o ChannelOrder) String() string {
	if o == RGB {
		return "rgb"
	}
	return "bgr"
}

// PackedImage holds interleaved 3-byte pixels as delivered by camera drivers and image
// decoders that produce BGR or RGB rows.
type PackedImage struct {
	Pix    []byte
	Stride int
	Rect   image.Rectangle
	Order  ChannelOrder
}

// NewPackedImage allocates a zeroed w×h packed image.
func NewPackedImage(w, h int, order ChannelOrder) *PackedImage {
	return &PackedImage{Pix: make([]byte, 3*w*h), Stride: 3 * w, Rect: image.Rect(0, 0, w, h), Order: order}
}

// ColorModel implements image.Image.
func (p *PackedImage) ColorModel() color.Model {
	return color.RGBAModel
}

// Bounds implements image.Image.
func (p *PackedImage) Bounds() image.Rectangle {
	return p.Rect
}

// At implements image.Image.
func (p *PackedImage) At(x, y int) color.Color {
	if !image.Pt(x, y).In(p.Rect) {
		return color.RGBA{}
	}
	i := p.PixOffset(x, y)
	if p.Order == RGB {
		return color.RGBA{p.Pix[i], p.Pix[i+1], p.Pix[i+2], 0xff}
	}
	return color.RGBA{p.Pix[i+2], p.Pix[i+1], p.Pix[i], 0xff}
}

// PixOffset returns the index of the first byte of pixel (x, y).
func (p *PackedImage) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*3
}

// checkPixels reports why the pixel storage of img cannot hold its bounds, or "" when it
// can. Only the layouts repack reads directly are checked.
func checkPixels(img image.Image) string {
	switch src := img.(type) {
	case *PackedImage:
		return checkStorage(len(src.Pix), src.Stride, 3, src.Rect)
	case *image.NRGBA:
		return checkStorage(len(src.Pix), src.Stride, 4, src.Rect)
	case *image.RGBA:
		return checkStorage(len(src.Pix), src.Stride, 4, src.Rect)
	}
	return ""
}

func checkStorage(n, stride, bpp int, r image.Rectangle) string {
	w, h := r.Dx(), r.Dy()
	if stride < bpp*w {
		return fmt.Sprintf("stride %d is shorter than a row of %d bytes", stride, bpp*w)
	}
	if need := (h-1)*stride + bpp*w; n < need {
		return fmt.Sprintf("pixel buffer holds %d bytes, need %d", n, need)
	}
	return ""
}

// repack writes img into dst as three planes of w×h bytes in the given channel order.
// dst must hold exactly 3*w*h bytes and img must be w×h.
func repack(dst []byte, img image.Image, order ChannelOrder) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := w * h
	// plane index of red, green, blue
	ri, gi, bi := 2, 1, 0
	if order == RGB {
		ri, gi, bi = 0, 1, 2
	}
	rp, gp, bp := dst[ri*plane:(ri+1)*plane], dst[gi*plane:(gi+1)*plane], dst[bi*plane:(bi+1)*plane]

	switch src := img.(type) {
	case *PackedImage:
		// offsets of red, green, blue inside a source pixel
		sr, sg, sb := 2, 1, 0
		if src.Order == RGB {
			sr, sg, sb = 0, 1, 2
		}
		for y := 0; y < h; y++ {
			row := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
			out := y * w
			for x := 0; x < w; x++ {
				px := row[3*x : 3*x+3]
				rp[out+x], gp[out+x], bp[out+x] = px[sr], px[sg], px[sb]
			}
		}
	case *image.NRGBA:
		repackRGBA(rp, gp, bp, src.Pix, src.Stride, src.PixOffset(b.Min.X, b.Min.Y), w, h)
	case *image.RGBA:
		// premultiplied; identical to NRGBA for the opaque frames cameras produce
		repackRGBA(rp, gp, bp, src.Pix, src.Stride, src.PixOffset(b.Min.X, b.Min.Y), w, h)
	default:
		nrgba := imaging.Clone(img)
		repackRGBA(rp, gp, bp, nrgba.Pix, nrgba.Stride, 0, w, h)
	}
}

func repackRGBA(rp, gp, bp, pix []byte, stride, start, w, h int) {
	for y := 0; y < h; y++ {
		row := pix[start+y*stride:]
		out := y * w
		for x := 0; x < w; x++ {
			px := row[4*x : 4*x+3]
			rp[out+x], gp[out+x], bp[out+x] = px[0], px[1], px[2]
		}
	}
}
