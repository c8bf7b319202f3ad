package boxes

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// LabelNames are the nuScenes detection classes in label order.
var LabelNames = []string{
	"car", "truck", "construction_vehicle", "bus", "trailer",
	"barrier", "motorcycle", "bicycle", "pedestrian", "traffic_cone",
}

// LabelName returns the class name of label, or "unknown".
func LabelName(label int) string {
	if label < 0 || label >= len(LabelNames) {
		return "unknown"
	}
	return LabelNames[label]
}

var labelColors = []color.NRGBA{
	{0, 0, 255, 255},
	{0, 201, 87, 255},
	{0, 201, 87, 255},
	{160, 32, 240, 255},
	{3, 168, 158, 255},
	{255, 0, 0, 255},
	{255, 97, 0, 255},
	{30, 0, 255, 255},
	{255, 0, 0, 255},
	{0, 0, 255, 255},
	{0, 0, 0, 255},
}

// goldenAngle spreads generated hues so neighboring labels are easy to tell apart.
var goldenAngle = 180 * (3 - math.Sqrt(5))

// LabelColor returns the display color for label. Labels outside the fixed table get a
// stable generated color.
func LabelColor(label int) color.NRGBA {
	if label >= 0 && label < len(labelColors) {
		return labelColors[label]
	}
	hue := math.Mod(float64(label)*goldenAngle, 360)
	if hue < 0 {
		hue += 360
	}
	r, g, b := colorful.Hsv(hue, 0.85, 0.9).RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}
