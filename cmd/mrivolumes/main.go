package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mrivolumes/internal/logx"
	"mrivolumes/internal/models"
	"mrivolumes/pkg/block"
	"mrivolumes/pkg/cache"
	"mrivolumes/pkg/config"
	"mrivolumes/pkg/dicomio"
	"mrivolumes/pkg/importer"
	"mrivolumes/pkg/progress"
	"mrivolumes/pkg/visualization"
)

func main() {
	// Parse command line arguments
	inputDir := flag.String("input", "", "Directory containing the image files of one study")
	configPath := flag.String("config", "mrivolumes.yaml", "Path of the YAML configuration file")
	initConfig := flag.Bool("init-config", false, "Write a default configuration file and exit")
	cachePath := flag.String("cache", "", "Save the scan result to this file (overrides cache.path)")
	loadPath := flag.String("load", "", "Load a saved scan result instead of scanning")
	reclassify := flag.Bool("classify", false, "Run flow classification again on a loaded scan result")
	noFlow := flag.Bool("no-flow", false, "Skip flow classification")
	ordering := flag.String("ordering", "", "Axis ordering of the flow triplet, e.g. XYZ or ZYX")
	exportDir := flag.String("export-slices", "", "Directory to save JPEG slices of one image")
	exportImage := flag.Int("image", -1, "Image id to export (default: first flow image, else image 0)")
	exportFrame := flag.Int("frame", 0, "Temporal frame to export")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	if *inputDir == "" && *loadPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		cfg.Output.Verbose = true
	}
	if *noFlow {
		cfg.Flow.Enabled = false
	}
	if *ordering != "" {
		cfg.Flow.AxisOrdering = *ordering
	}
	if *cachePath != "" {
		cfg.Cache.Path = *cachePath
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid settings: %v\n", err)
		os.Exit(1)
	}

	log := logx.NewLogger(cfg.Output.Verbose)

	params := &importer.Params{
		Config: cfg,
		Opener: dicomio.DiskOpener{},
		Log:    log,
	}
	if cfg.Output.Progress {
		params.Progress = progress.NewBar(log)
	}
	imp := importer.New(params)

	startTime := time.Now()
	var ds *models.Dataset
	if *loadPath != "" {
		ds, err = cache.Load(*loadPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *loadPath).Msg("failed to load scan result")
		}
		log.Info().Str("path", *loadPath).Int("images", len(ds.Images)).Msg("scan result loaded")
		if *reclassify && cfg.Flow.Enabled {
			imp.Classify(ds)
		}
	} else {
		ds, err = imp.Import(*inputDir)
		if err != nil {
			log.Fatal().Err(err).Msg("import failed")
		}
	}
	log.Info().Dur("elapsed", time.Since(startTime)).Msg("dataset ready")

	if cfg.Cache.Path != "" {
		if err := cache.Save(cfg.Cache.Path, ds, cfg.Cache.Level); err != nil {
			log.Fatal().Err(err).Str("path", cfg.Cache.Path).Msg("failed to save scan result")
		}
		log.Info().Str("path", cfg.Cache.Path).Msg("scan result saved")
	}

	printSummary(ds)

	if *exportDir != "" {
		if err := exportSlices(ds, log, cfg, *exportDir, *exportImage, *exportFrame); err != nil {
			log.Error().Err(err).Msg("slice export failed")
			os.Exit(1)
		}
	}
}

func printSummary(ds *models.Dataset) {
	fmt.Println("================================")
	fmt.Printf("Dataset: %s (%s)\n", ds.Name, ds.Directory)
	fmt.Printf("Files: %d, images: %d\n", len(ds.Files), len(ds.Images))
	fmt.Println("================================")

	for _, class := range models.DimClasses {
		buckets := ds.Grid.Class(class)
		if len(buckets) == 0 {
			continue
		}
		fmt.Printf("\n%s images:\n", class)
		for _, b := range buckets {
			fmt.Printf("  size %v\n", b.Size)
			for _, id := range b.Images {
				im := &ds.Images[id]
				role := ""
				if r := ds.Flow.Role(id); r != models.RoleNone {
					role = " [" + r.String() + "]"
				}
				fmt.Printf("    #%-3d %-24s %-16s %d files%s\n", id, im.SeriesDescription, im.SequenceName, im.NumFiles(), role)
			}
		}
	}

	if flows := ds.Flow.FlowImages(); len(flows) > 0 {
		fmt.Printf("\nFlow ordering %s, VENC 3D+T %.1f, 2D+T %.1f\n", ds.Flow.Ordering, ds.Flow.Venc3DT, ds.Flow.Venc2DT)
		for axis, name := range []string{"X", "Y", "Z"} {
			if id, ok := ds.FlowImage(axis); ok {
				fmt.Printf("  %s velocity: image #%d\n", name, id)
			}
		}
	}
}

func exportSlices(ds *models.Dataset, log zerolog.Logger, cfg *config.Config, dir string, id, frame int) error {
	if id < 0 {
		id = 0
		if flows := ds.Flow.FlowImages(); len(flows) > 0 {
			id = flows[0]
		}
	}
	if id >= len(ds.Images) {
		return fmt.Errorf("image %d does not exist", id)
	}

	reader := block.NewReader(ds, &block.Params{
		Opener:  dicomio.DiskOpener{},
		Log:     log,
		Workers: cfg.Scan.Workers,
	})
	viewer, err := visualization.FromImage(reader, &ds.Images[id], id, frame)
	if err != nil {
		return err
	}

	imageDir := filepath.Join(dir, fmt.Sprintf("image_%03d_t%03d", id, frame))
	for _, axis := range []string{"x", "y", "z"} {
		axisDir := filepath.Join(imageDir, axis)
		n, err := viewer.SaveSliceSequence(axis, axisDir)
		if err != nil {
			log.Warn().Err(err).Str("axis", strings.ToUpper(axis)).Msg("failed to save slices")
			continue
		}
		log.Info().Int("slices", n).Str("dir", axisDir).Msg("slices saved")
	}
	return nil
}
