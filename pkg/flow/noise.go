package flow

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"mrivolumes/internal/models"
	"mrivolumes/pkg/block"
	"mrivolumes/pkg/workerpool"
)

// Corners returns the eight corner blocks of an image covering all temporal
// positions. Each corner spans 1/portion of an axis, at least two voxels.
func Corners(im *models.ImageRecord, portion int) []block.Block {
	xs := cornerRanges(im.Columns, portion)
	ys := cornerRanges(im.Rows, portion)
	zs := cornerRanges(im.SliceCount(), portion)
	t := block.Range{From: 0, To: im.TimeCount() - 1}

	corners := make([]block.Block, 0, 8)
	for _, z := range zs {
		for _, y := range ys {
			for _, x := range xs {
				corners = append(corners, block.Block{X: x, Y: y, Z: z, T: t})
			}
		}
	}
	return corners
}

// cornerRanges returns the low and the high corner range of an axis.
func cornerRanges(n, portion int) [2]block.Range {
	if portion < 1 {
		portion = 1
	}
	ext := n / portion
	if ext < 2 {
		ext = 2
	}
	if ext > n {
		ext = n
	}
	return [2]block.Range{
		{From: 0, To: ext - 1},
		{From: n - ext, To: n - 1},
	}
}

// temporalNoise averages the per-voxel temporal standard deviation of a
// corner volume. The volume keeps x, y, z, t order, t slowest.
func temporalNoise(vol *models.Volume, b block.Block) (float64, error) {
	frames := b.T.Len()
	if frames < 2 {
		return 0, fmt.Errorf("corner spans %d temporal positions", frames)
	}
	voxels := b.X.Len() * b.Y.Len() * b.Z.Len()
	if len(vol.Data) != voxels*frames {
		return 0, fmt.Errorf("corner volume holds %d samples, want %d", len(vol.Data), voxels*frames)
	}

	series := make([]float64, frames)
	deviations := make([]float64, voxels)
	for v := 0; v < voxels; v++ {
		for t := 0; t < frames; t++ {
			series[t] = float64(vol.Data[v+voxels*t])
		}
		deviations[v] = stat.StdDev(series, nil)
	}
	return stat.Mean(deviations, nil), nil
}

// noiseScores computes the corner noise of every image. Corners are read on
// the worker pool; an image whose corners cannot be read gets no score.
func (c *Classifier) noiseScores(ds *models.Dataset, ids []int) map[int]float64 {
	futures := make(map[int][]*workerpool.Future[float64], len(ids))
	for _, id := range ids {
		im := &ds.Images[id]
		for _, corner := range Corners(im, c.cornerPortion) {
			futures[id] = append(futures[id], workerpool.Enqueue(c.pool, func() (float64, error) {
				vol, err := c.reader.ReadImageBlock(id, corner)
				if err != nil {
					return 0, err
				}
				return temporalNoise(vol, corner)
			}))
		}
	}

	scores := make(map[int]float64, len(ids))
	for _, id := range ids {
		vals, err := workerpool.WaitAll(futures[id])
		if err != nil {
			c.log.Warn().Err(err).Int("image", id).Msg("cannot compute corner noise")
			continue
		}
		scores[id] = stat.Mean(vals, nil)
		c.log.Debug().Int("image", id).Float64("noise", scores[id]).Msg("corner noise")
	}
	return scores
}
