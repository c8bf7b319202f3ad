package publish

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/fogleman/gg"
	"github.com/golang/geo/r3"

	"go.viam.com/bevdet/vision/boxes"
)

const (
	defaultRenderSize  = 800
	defaultRenderRange = 60.0
)

// RenderOptions sizes the top-down render. Range is the distance in meters from the
// sensor to each edge of the image.
type RenderOptions struct {
	Size  int
	Range float64
}

// RenderPublisher draws each result from above into a PNG file.
type RenderPublisher struct {
	path string
	opts RenderOptions
}

// NewRenderPublisher returns a publisher writing path.
func NewRenderPublisher(path string, opts RenderOptions) *RenderPublisher {
	if opts.Size <= 0 {
		opts.Size = defaultRenderSize
	}
	if opts.Range <= 0 {
		opts.Range = defaultRenderRange
	}
	return &RenderPublisher{path: path, opts: opts}
}

// Publish renders res and writes it.
func (rp *RenderPublisher) Publish(ctx context.Context, res *Result) error {
	img := Render(res, rp.opts)
	return writeFileAtomic(rp.path, func(f *os.File) error {
		return png.Encode(f, img)
	})
}

// Close does nothing.
func (rp *RenderPublisher) Close(ctx context.Context) error {
	return nil
}

// Render draws the cloud and box footprints of res seen from above, with +x pointing up
// the image and +y pointing left.
func Render(res *Result, opts RenderOptions) image.Image {
	if opts.Size <= 0 {
		opts.Size = defaultRenderSize
	}
	if opts.Range <= 0 {
		opts.Range = defaultRenderRange
	}
	dc := gg.NewContext(opts.Size, opts.Size)
	dc.SetColor(color.Black)
	dc.Clear()

	half := float64(opts.Size) / 2
	scale := half / opts.Range
	toPixel := func(p r3.Vector) (float64, float64) {
		return half - p.Y*scale, half - p.X*scale
	}

	if res.Cloud != nil {
		dc.SetColor(color.Gray{Y: 110})
		res.Cloud.Iterate(func(_ int, p r3.Vector, _ float32) bool {
			u, v := toPixel(p)
			if u >= 0 && v >= 0 && u < float64(opts.Size) && v < float64(opts.Size) {
				dc.SetPixel(int(u), int(v))
			}
			return true
		})
	}

	dc.SetLineWidth(2)
	for _, b := range res.Boxes {
		dc.SetColor(boxColor(b.Label))
		corners := b.Footprint()
		for _, c := range corners {
			dc.LineTo(toPixel(c))
		}
		dc.ClosePath()
		dc.Stroke()

		// heading tick from the center to the middle of the front edge
		front := corners[0].Add(corners[3]).Mul(0.5)
		cu, cv := toPixel(b.Center)
		fu, fv := toPixel(front)
		dc.DrawLine(cu, cv, fu, fv)
		dc.Stroke()
	}

	dc.SetColor(color.White)
	dc.DrawCircle(half, half, 3)
	dc.Fill()
	return dc.Image()
}

// boxColor keeps the dark entries of the label table visible on the black background.
func boxColor(label int) color.Color {
	c := boxes.LabelColor(label)
	if c.R == 0 && c.G == 0 && c.B == 0 {
		return color.White
	}
	return c
}
