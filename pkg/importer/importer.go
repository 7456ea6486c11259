// Package importer runs the whole pipeline over one directory: scan,
// assemble, aggregate, grid classification and, optionally, flow
// classification.
package importer

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"mrivolumes/internal/models"
	"mrivolumes/pkg/block"
	"mrivolumes/pkg/config"
	"mrivolumes/pkg/dicomio"
	"mrivolumes/pkg/flow"
	"mrivolumes/pkg/grid"
	"mrivolumes/pkg/progress"
	"mrivolumes/pkg/scan"
)

// ErrNoImages is returned when a directory holds no assemblable image.
var ErrNoImages = errors.New("no images assembled")

// Params configures an Importer.
type Params struct {
	// Config holds the scan and flow settings; nil uses the defaults
	Config *config.Config

	// Opener decodes files; nil reads from disk
	Opener dicomio.Opener

	// Log receives progress and warnings
	Log zerolog.Logger

	// Progress observes the long-running scan steps
	Progress progress.Sink
}

// Importer builds datasets from directories.
type Importer struct {
	cfg      *config.Config
	op       dicomio.Opener
	log      zerolog.Logger
	progress progress.Sink
}

// New creates an importer from params.
func New(params *Params) *Importer {
	cfg := params.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	op := params.Opener
	if op == nil {
		op = dicomio.DiskOpener{}
	}
	return &Importer{
		cfg:      cfg,
		op:       op,
		log:      params.Log,
		progress: progress.OrNop(params.Progress),
	}
}

// Import scans dir and returns the classified dataset.
func (i *Importer) Import(dir string) (*models.Dataset, error) {
	scanner := scan.NewScanner(&scan.Params{
		Opener:      i.op,
		Log:         i.log,
		Progress:    i.progress,
		Workers:     i.cfg.Scan.Workers,
		PreferIndex: i.cfg.Scan.PreferIndex,
	})
	res, images, err := scanner.Build(dir)
	if errors.Is(err, scan.ErrNoFiles) {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoImages)
	}
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%s: %w", res.Dir, ErrNoImages)
	}

	ds := models.NewDataset(res.Dir)
	ds.Files = res.Files
	ds.Images = images
	ds.Name = datasetName(ds)
	ds.Grid = grid.Classify(ds.Images, i.log)

	i.log.Info().
		Str("dataset", ds.Name).
		Int("files", len(ds.Files)).
		Int("images", len(ds.Images)).
		Bool("indexed", res.Indexed).
		Msg("images assembled")

	if i.cfg.Flow.Enabled {
		i.Classify(ds)
	}
	return ds, nil
}

// Classify runs the flow classifier over ds, replacing earlier roles.
func (i *Importer) Classify(ds *models.Dataset) []int {
	if ds.Flow == nil {
		ds.Flow = models.NewClassification()
	}
	ds.Flow.Reset()

	reader := block.NewReader(ds, &block.Params{
		Opener:  i.op,
		Log:     i.log,
		Workers: i.cfg.Scan.Workers,
	})
	classifier := flow.NewClassifier(&flow.Params{
		Reader:                reader,
		Log:                   i.log,
		PoolSize:              i.cfg.Flow.PoolSize,
		CornerPortion:         i.cfg.Flow.CornerPortion,
		NoiseSeparatorDivisor: i.cfg.Flow.NoiseSeparatorDivisor,
		Ordering:              i.cfg.Ordering(),
	})
	defer classifier.Close()

	return classifier.Classify(ds)
}

// datasetName is the patient name of the first image, else the directory
// base name.
func datasetName(ds *models.Dataset) string {
	for _, im := range ds.Images {
		if im.PatientName != "" {
			return im.PatientName
		}
	}
	return filepath.Base(ds.Directory)
}
