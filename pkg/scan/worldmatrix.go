package scan

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"mrivolumes/internal/models"
)

// buildWorldMatrix derives the voxel-to-patient transform of an image.
//
// Columns 1 and 2 are the in-plane direction cosines scaled by the column and
// row spacing. For multi-slice images with known positions column 3 is
// (first - last) / (N - 1) and the last slice is the anchor; otherwise it is
// the plane normal scaled by the slice spacing and the first slice anchors.
// The translation places voxel centers, not corners, on the anchor.
//
// It reports the anchor and slice normal when the slice locations should be
// re-derived from the positions.
func buildWorldMatrix(im *models.ImageRecord, run []models.FileRecord, haveOrientation bool) (anchor, normal r3.Vec, reslice bool) {
	im.WorldMatrix = models.IdentityMatrix
	if !haveOrientation {
		return anchor, normal, false
	}

	row, col := toVec(im.RowOrientation), toVec(im.ColumnOrientation)
	cross := r3.Cross(row, col)
	if r3.Norm(row) == 0 || r3.Norm(col) == 0 || r3.Norm(cross) == 0 {
		return anchor, normal, false
	}

	c1 := r3.Scale(positiveOr(im.ColumnSpacing, 1), r3.Unit(row))
	c2 := r3.Scale(positiveOr(im.RowSpacing, 1), r3.Unit(col))

	slices, temporal := im.SliceCount(), im.TimeCount()
	first, haveFirst := slicePosition(run, 0, temporal)
	last, haveLast := slicePosition(run, slices-1, temporal)

	var c3 r3.Vec
	if slices > 1 && haveFirst && haveLast && r3.Norm(r3.Sub(first, last)) > 0 {
		c3 = r3.Scale(1/float64(slices-1), r3.Sub(first, last))
		anchor = last
		reslice = true
	} else {
		c3 = r3.Scale(positiveOr(im.SliceSpacing, 1), r3.Unit(cross))
		if haveFirst {
			anchor = first
		}
	}
	if im.SliceSpacing <= 0 {
		im.SliceSpacing = r3.Norm(c3)
	}

	half := r3.Scale(0.5, r3.Add(r3.Add(c1, c2), c3))
	origin := r3.Sub(anchor, half)

	m := mat.NewDense(4, 4, nil)
	m.SetCol(0, []float64{c1.X, c1.Y, c1.Z, 0})
	m.SetCol(1, []float64{c2.X, c2.Y, c2.Z, 0})
	m.SetCol(2, []float64{c3.X, c3.Y, c3.Z, 0})
	m.SetCol(3, []float64{origin.X, origin.Y, origin.Z, 1})
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			im.WorldMatrix[r*4+c] = m.At(r, c)
		}
	}

	return anchor, r3.Unit(c3), reslice
}

// resliceLocations replaces each file's slice location by the signed distance
// of its position from the anchor along normal and re-sorts the run.
func resliceLocations(run []models.FileRecord, anchor, normal r3.Vec) {
	for i := range run {
		if !run[i].HasImagePosition {
			continue
		}
		run[i].SliceLocation = r3.Dot(r3.Sub(toVec(run[i].ImagePosition), anchor), normal)
		run[i].HasSliceLocation = true
	}
	sortBySlice(run)
}

// slicePosition returns the patient position of slice s.
func slicePosition(run []models.FileRecord, s, temporal int) (r3.Vec, bool) {
	i := s * temporal
	if i < 0 || i >= len(run) || !run[i].HasImagePosition {
		return r3.Vec{}, false
	}
	return toVec(run[i].ImagePosition), true
}

func toVec(v [3]float64) r3.Vec {
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}
}

func positiveOr(v, fallback float64) float64 {
	if v > 0 {
		return v
	}
	return fallback
}
