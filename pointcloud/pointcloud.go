// Package pointcloud holds lidar sweeps. It reads and writes them as PCD and LAS files and reads
// ascii PLY files.
package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// PointCloud is an ordered list of points in meters with optional per-point intensity.
// Order is preserved so a sweep can be republished as it was received.
type PointCloud struct {
	points    []r3.Vector
	intensity []float32
}

// New returns an empty point cloud.
func New() *PointCloud {
	return &PointCloud{}
}

// NewWithPrealloc returns an empty point cloud with room for size points.
func NewWithPrealloc(size int, withIntensity bool) *PointCloud {
	pc := &PointCloud{points: make([]r3.Vector, 0, size)}
	if withIntensity {
		pc.intensity = make([]float32, 0, size)
	}
	return pc
}

// Size returns the number of points.
func (pc *PointCloud) Size() int {
	return len(pc.points)
}

// HasIntensity reports whether points carry intensity.
func (pc *PointCloud) HasIntensity() bool {
	return pc.intensity != nil
}

// Append adds a point. Intensity is ignored for clouds without intensity.
func (pc *PointCloud) Append(p r3.Vector, intensity float32) error {
	if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsNaN(p.Z) ||
		math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) || math.IsInf(p.Z, 0) {
		return errors.Errorf("point %v is not finite", p)
	}
	pc.points = append(pc.points, p)
	if pc.intensity != nil {
		pc.intensity = append(pc.intensity, intensity)
	}
	return nil
}

// At returns point i and its intensity, which is zero without intensity.
func (pc *PointCloud) At(i int) (r3.Vector, float32) {
	if pc.intensity == nil {
		return pc.points[i], 0
	}
	return pc.points[i], pc.intensity[i]
}

// Iterate calls fn for each point in order until fn returns false.
func (pc *PointCloud) Iterate(fn func(i int, p r3.Vector, intensity float32) bool) {
	for i := range pc.points {
		p, in := pc.At(i)
		if !fn(i, p, in) {
			return
		}
	}
}

// MetaData summarizes a cloud.
type MetaData struct {
	Size         int
	HasIntensity bool
	Min          r3.Vector
	Max          r3.Vector
}

// MetaData computes the bounds of the cloud.
func (pc *PointCloud) MetaData() MetaData {
	md := MetaData{Size: pc.Size(), HasIntensity: pc.HasIntensity()}
	for i, p := range pc.points {
		if i == 0 {
			md.Min, md.Max = p, p
			continue
		}
		md.Min = r3.Vector{X: math.Min(md.Min.X, p.X), Y: math.Min(md.Min.Y, p.Y), Z: math.Min(md.Min.Z, p.Z)}
		md.Max = r3.Vector{X: math.Max(md.Max.X, p.X), Y: math.Max(md.Max.Y, p.Y), Z: math.Max(md.Max.Z, p.Z)}
	}
	return md
}
