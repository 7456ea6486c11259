// Package flow assigns semantic roles to the images of a time-resolved
// phase-contrast flow study.
//
// Flow-encoded images carry far more temporal noise in the air around the
// body than magnitude or anatomical images. The classifier measures that noise
// in the eight corners of every 3D+T image and picks the flow triplet of each
// same-size bucket. Which image of the triplet encodes which velocity axis is
// never inferred: it follows the configured AxisOrdering.
package flow

import (
	"sort"

	"github.com/mkmik/argsort"
	"github.com/rs/zerolog"

	"mrivolumes/internal/models"
	"mrivolumes/pkg/block"
	"mrivolumes/pkg/workerpool"
)

// BlockReader reads blocks of dataset images.
type BlockReader interface {
	ReadImageBlock(id int, b block.Block) (*models.Volume, error)
}

// Params configures a Classifier.
type Params struct {
	// Reader supplies the corner blocks
	Reader BlockReader

	// Log receives the decision trail
	Log zerolog.Logger

	// PoolSize is the number of corner workers; <= 0 uses all CPUs
	PoolSize int

	// CornerPortion is the fraction 1/n of each axis a corner covers
	CornerPortion int

	// NoiseSeparatorDivisor divides the largest stored value into the
	// separator between flow noise and signal noise. It must exceed 2: a
	// temporal standard deviation of samples in [0, max] is at most max/2,
	// so max itself is never crossed. <= 0 uses 16.
	NoiseSeparatorDivisor float64

	// Ordering maps the ascending triplet to X, Y and Z
	Ordering models.AxisOrdering
}

// Classifier finds flow, magnitude and anatomical images.
type Classifier struct {
	reader        BlockReader
	log           zerolog.Logger
	pool          *workerpool.Pool
	cornerPortion int
	divisor       float64
	ordering      models.AxisOrdering
}

// NewClassifier starts a classifier and its worker pool.
func NewClassifier(params *Params) *Classifier {
	portion := params.CornerPortion
	if portion < 1 {
		portion = 10
	}
	divisor := params.NoiseSeparatorDivisor
	if divisor <= 0 {
		divisor = 16
	}
	return &Classifier{
		reader:        params.Reader,
		log:           params.Log,
		pool:          workerpool.New(params.PoolSize),
		cornerPortion: portion,
		divisor:       divisor,
		ordering:      params.Ordering,
	}
}

// Close stops the worker pool.
func (c *Classifier) Close() {
	c.pool.Close()
}

// candidate is one scored image of a bucket.
type candidate struct {
	id       int
	score    float64
	maxValue float64
	sequence string
}

// Classify tags the images of ds. It returns the flow ids of every bucket
// where a triplet was found.
func (c *Classifier) Classify(ds *models.Dataset) []int {
	if ds.Flow == nil {
		ds.Flow = models.NewClassification()
	}
	cls := ds.Flow
	cls.Ordering = c.ordering

	var flows []int
	for _, bucket := range ds.Grid.Class(models.Class3DT) {
		if len(bucket.Images) < 3 {
			continue
		}
		log := c.log.With().Ints("size", bucket.Size).Logger()

		scores := c.noiseScores(ds, bucket.Images)
		cands := make([]candidate, 0, len(scores))
		for _, id := range bucket.Images {
			score, ok := scores[id]
			if !ok {
				continue
			}
			im := &ds.Images[id]
			cands = append(cands, candidate{
				id:       id,
				score:    score,
				maxValue: im.MaxStoredValue(),
				sequence: im.SequenceName,
			})
		}
		cands = dedupeScores(cands)

		triplet, ok := c.selectTriplet(cands, log)
		if !ok {
			log.Info().Int("candidates", len(cands)).Msg("no flow images in bucket")
			continue
		}
		log.Info().Ints("flow", triplet).Msg("flow images found")

		for _, id := range triplet {
			cls.Add3DTFlowImage(id)
		}
		for _, id := range bucket.Images {
			if cls.Role(id) == models.RoleNone {
				cls.AddMagnitudeImage(id)
			}
		}
		c.tagAnatomical(ds, bucket.Size)
		if cls.Venc3DT == 0 {
			cls.Venc3DT = vencOf(ds, triplet)
		}
		flows = append(flows, triplet...)
	}

	c.tag2DTFlow(ds)
	return flows
}

// tag2DTFlow tags 2D+T images whose sequence name carries a velocity
// encoding. Through-plane flow is a single image, so there is no triplet.
func (c *Classifier) tag2DTFlow(ds *models.Dataset) {
	cls := ds.Flow
	var ids []int
	for _, b := range ds.Grid.Class(models.Class2DT) {
		for _, id := range b.Images {
			if _, ok := ParseVenc(ds.Images[id].SequenceName); !ok {
				continue
			}
			if cls.Role(id) == models.RoleNone {
				cls.Add2DTFlowImage(id)
			}
			if cls.Role(id) == models.RoleFlow {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) > 0 {
		c.log.Info().Ints("flow", ids).Msg("2D+T flow images found")
	}
	if cls.Venc2DT == 0 {
		cls.Venc2DT = vencOf(ds, ids)
	}
}

// selectTriplet runs the decision ladder over deduplicated candidates.
func (c *Classifier) selectTriplet(cands []candidate, log zerolog.Logger) ([]int, bool) {
	if len(cands) < 3 {
		return nil, false
	}
	if len(cands) == 3 {
		return sortedIDs(cands), true
	}

	minScore := cands[0].score
	for _, cd := range cands[1:] {
		if cd.score < minScore {
			minScore = cd.score
		}
	}
	threshold := 100 * minScore
	var above []candidate
	for _, cd := range cands {
		if cd.score > threshold {
			above = append(above, cd)
		}
	}
	if len(above) == 3 {
		return sortedIDs(above), true
	}

	var filtered []candidate
	for _, cd := range cands {
		if cd.score > cd.maxValue/c.divisor {
			filtered = append(filtered, cd)
		}
	}
	if len(filtered) < 3 {
		return nil, false
	}

	if ids, ok := byName(filtered); ok {
		return ids, true
	}

	ids := sortedIDs(filtered)
	if t, ok := findRun(ids, 1); ok {
		return t, true
	}
	if t, ok := findRun(ids, 2); ok {
		return t, true
	}
	log.Warn().Ints("candidates", ids).Msg("ambiguous flow images, guessing the first three")
	return ids[:3], true
}

// byName picks the triplet from sequence names: a single name shared by
// exactly three images, else exactly three distinct names with the lowest id
// of each.
func byName(cands []candidate) ([]int, bool) {
	groups := make(map[string][]int)
	var names []string
	for _, cd := range cands {
		if cd.sequence == "" {
			continue
		}
		if _, ok := groups[cd.sequence]; !ok {
			names = append(names, cd.sequence)
		}
		groups[cd.sequence] = append(groups[cd.sequence], cd.id)
	}

	var triples [][]int
	for _, n := range names {
		if len(groups[n]) == 3 {
			triples = append(triples, groups[n])
		}
	}
	if len(triples) == 1 {
		ids := append([]int(nil), triples[0]...)
		sort.Ints(ids)
		return ids, true
	}

	if len(names) == 3 {
		ids := make([]int, 0, 3)
		for _, n := range names {
			g := append([]int(nil), groups[n]...)
			sort.Ints(g)
			ids = append(ids, g[0])
		}
		sort.Ints(ids)
		return ids, true
	}
	return nil, false
}

// findRun returns the first three ids spaced by stride in sorted ids.
func findRun(ids []int, stride int) ([]int, bool) {
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if ids[j]-ids[i] != stride {
				continue
			}
			for k := j + 1; k < len(ids); k++ {
				if ids[k]-ids[j] == stride {
					return []int{ids[i], ids[j], ids[k]}, true
				}
			}
		}
	}
	return nil, false
}

// dedupeScores drops images whose score equals another image's score; those
// are re-imports of the same data. The lowest id survives.
func dedupeScores(cands []candidate) []candidate {
	if len(cands) < 2 {
		return cands
	}
	order := argsort.SortSlice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score < cands[j].score
		}
		return cands[i].id < cands[j].id
	})
	keep := make([]bool, len(cands))
	for k, i := range order {
		if k > 0 && cands[order[k-1]].score == cands[i].score {
			continue
		}
		keep[i] = true
	}
	out := make([]candidate, 0, len(cands))
	for i, cd := range cands {
		if keep[i] {
			out = append(out, cd)
		}
	}
	return out
}

// tagAnatomical tags the untagged 3D images sharing the in-plane grid.
func (c *Classifier) tagAnatomical(ds *models.Dataset, size []int) {
	for _, b := range ds.Grid.Class(models.Class3D) {
		if len(size) < 2 || b.Size[0] != size[0] || b.Size[1] != size[1] {
			continue
		}
		for _, id := range b.Images {
			if ds.Flow.Role(id) == models.RoleNone {
				ds.Flow.AddAnatomicalImage(id)
			}
		}
	}
}

// vencOf returns the first encoding found in the sequence names of ids.
func vencOf(ds *models.Dataset, ids []int) float64 {
	for _, id := range ids {
		if v, ok := ParseVenc(ds.Images[id].SequenceName); ok {
			return v
		}
	}
	return 0
}

func sortedIDs(cands []candidate) []int {
	ids := make([]int, len(cands))
	for i, cd := range cands {
		ids[i] = cd.id
	}
	sort.Ints(ids)
	return ids
}
