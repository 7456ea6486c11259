// Package grid buckets image records by dimensionality class and grid size.
package grid

import (
	"sort"

	"github.com/rs/zerolog"

	"mrivolumes/internal/models"
)

// ClassOf returns the dimensionality class of an image and its size vector.
// Images without two in-plane axes have no class.
func ClassOf(im *models.ImageRecord) (models.DimClass, []int, bool) {
	if im.Columns <= 1 || im.Rows <= 1 {
		return 0, nil, false
	}
	hasSlices := im.Slices > 1
	hasTime := im.TemporalPositions > 1
	switch {
	case hasSlices && hasTime:
		return models.Class3DT, []int{im.Columns, im.Rows, im.Slices, im.TemporalPositions}, true
	case hasSlices:
		return models.Class3D, []int{im.Columns, im.Rows, im.Slices}, true
	case hasTime:
		return models.Class2DT, []int{im.Columns, im.Rows, im.TemporalPositions}, true
	}
	return models.Class2D, []int{im.Columns, im.Rows}, true
}

// Classify builds the grid table of a set of images. Image ids are indices
// into images. The result depends only on the records, so classifying the
// same set twice yields identical tables. Images rejected by ClassOf are
// left out of every bucket.
func Classify(images []models.ImageRecord, log zerolog.Logger) models.GridTable {
	var table models.GridTable

	for id := range images {
		class, size, ok := ClassOf(&images[id])
		if !ok {
			log.Debug().Int("image", id).
				Int("columns", images[id].Columns).Int("rows", images[id].Rows).
				Msg("image has no in-plane grid, not classified")
			continue
		}

		buckets := table.Buckets[class]
		found := false
		for b := range buckets {
			if models.CompareSize(buckets[b].Size, size) == 0 {
				buckets[b].Images = append(buckets[b].Images, id)
				found = true
				break
			}
		}
		if !found {
			buckets = append(buckets, models.GridBucket{Size: size, Images: []int{id}})
		}
		table.Buckets[class] = buckets
	}

	for _, class := range models.DimClasses {
		buckets := table.Buckets[class]
		sort.SliceStable(buckets, func(i, j int) bool {
			return models.CompareSize(buckets[i].Size, buckets[j].Size) < 0
		})
	}
	return table
}

// Equal reports whether two tables hold the same buckets in the same order.
func Equal(a, b models.GridTable) bool {
	for _, class := range models.DimClasses {
		x, y := a.Buckets[class], b.Buckets[class]
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if models.CompareSize(x[i].Size, y[i].Size) != 0 || len(x[i].Images) != len(y[i].Images) {
				return false
			}
			for k := range x[i].Images {
				if x[i].Images[k] != y[i].Images[k] {
					return false
				}
			}
		}
	}
	return true
}
