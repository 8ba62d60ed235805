package scene

import (
	"fmt"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/spatial/r3"
)

// PointMap is a dense per-pixel 3D point estimate for one view, expressed in
// the common reference frame produced by global alignment. Points are stored
// row-major: index = y*Width + x.
type PointMap struct {
	Width  int
	Height int
	Points []r3.Vec
}

// NewPointMap allocates a zeroed point map.
func NewPointMap(width, height int) *PointMap {
	return &PointMap{
		Width:  width,
		Height: height,
		Points: make([]r3.Vec, width*height),
	}
}

// At returns the 3D point for pixel (x, y).
func (pm *PointMap) At(x, y int) r3.Vec {
	return pm.Points[y*pm.Width+x]
}

// Set stores the 3D point for pixel (x, y).
func (pm *PointMap) Set(x, y int, p r3.Vec) {
	pm.Points[y*pm.Width+x] = p
}

// ConfidenceMask flags the pixels whose 3D estimate is trusted. Same
// row-major layout as PointMap.
type ConfidenceMask struct {
	Width  int
	Height int
	Bits   []bool
}

// NewConfidenceMask allocates an all-false mask.
func NewConfidenceMask(width, height int) *ConfidenceMask {
	return &ConfidenceMask{
		Width:  width,
		Height: height,
		Bits:   make([]bool, width*height),
	}
}

// At reports whether pixel (x, y) is trusted.
func (m *ConfidenceMask) At(x, y int) bool {
	return m.Bits[y*m.Width+x]
}

// Set marks pixel (x, y).
func (m *ConfidenceMask) Set(x, y int, trusted bool) {
	m.Bits[y*m.Width+x] = trusted
}

// Count returns the number of trusted pixels.
func (m *ConfidenceMask) Count() int {
	n := 0
	for _, b := range m.Bits {
		if b {
			n++
		}
	}
	return n
}

// PointSet is a mask-filtered selection from a PointMap: the retained 3D
// points co-indexed with their originating pixel coordinates, in row-major
// scan order.
type PointSet struct {
	Points []r3.Vec
	Pixels []orb.Point
}

// Len returns the number of retained points.
func (s PointSet) Len() int {
	return len(s.Points)
}

// FilterByMask applies the confidence mask to the point map and returns the
// retained points in row-major order, paired with their pixel coordinates.
// Both grids must share dimensions; an empty selection is a valid result.
func FilterByMask(pm *PointMap, mask *ConfidenceMask) (PointSet, error) {
	if pm.Width != mask.Width || pm.Height != mask.Height {
		return PointSet{}, fmt.Errorf("point map %dx%d and mask %dx%d differ in size",
			pm.Width, pm.Height, mask.Width, mask.Height)
	}

	n := mask.Count()
	set := PointSet{
		Points: make([]r3.Vec, 0, n),
		Pixels: make([]orb.Point, 0, n),
	}
	for y := 0; y < pm.Height; y++ {
		for x := 0; x < pm.Width; x++ {
			if mask.At(x, y) {
				set.Points = append(set.Points, pm.At(x, y))
				set.Pixels = append(set.Pixels, orb.Point{float64(x), float64(y)})
			}
		}
	}
	return set, nil
}
