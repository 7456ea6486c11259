// Package scan turns a directory of per-slice image files into ordered file
// records and assembled image records.
//
// A scan runs in three stages. Scan discovers files, either through a
// DICOMDIR index at the directory root or by walking the tree. Assemble
// groups runs of equal-key files into images, splitting merged runs. Aggregate
// completes every image from its files and derives the world matrix. Build
// chains the three.
package scan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"mrivolumes/internal/models"
	"mrivolumes/pkg/dicomio"
	"mrivolumes/pkg/progress"
)

var (
	// ErrNotIndex is returned when no usable directory index is present.
	ErrNotIndex = errors.New("not a directory storage index")

	// ErrNoFiles is returned when no readable image file was found.
	ErrNoFiles = errors.New("no readable image files")
)

// indexFileName is matched case-insensitively at the directory root.
const indexFileName = "DICOMDIR"

// Params configures a Scanner.
type Params struct {
	// Opener opens files and indexes; every call goes through the
	// global decode lock of package dicomio.
	Opener dicomio.Opener

	// Log receives warnings about fallbacks and skipped files.
	Log zerolog.Logger

	// Progress observes long-running steps. Nil disables reporting.
	Progress progress.Sink

	// Workers bounds the parallel loops; <= 0 uses all CPUs.
	Workers int

	// PreferIndex tries the DICOMDIR strategy before walking the tree.
	PreferIndex bool
}

// Segment is a half-open range of the file list assembled independently.
type Segment struct {
	Start int
	End   int
}

// Len returns the number of files in the segment.
func (s Segment) Len() int { return s.End - s.Start }

// Result is the output of the discovery stage.
type Result struct {
	// Dir is the absolute scanned directory
	Dir string

	// Files in assembly order
	Files []models.FileRecord

	// Segments partition Files into ranges assembled on their own
	Segments []Segment

	// Indexed is set when the DICOMDIR strategy produced the result
	Indexed bool
}

// Scanner discovers, assembles and aggregates image files.
type Scanner struct {
	op          dicomio.Opener
	log         zerolog.Logger
	progress    progress.Sink
	workers     int
	preferIndex bool
}

// NewScanner creates a scanner from params.
func NewScanner(params *Params) *Scanner {
	workers := params.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Scanner{
		op:          params.Opener,
		log:         params.Log,
		progress:    progress.OrNop(params.Progress),
		workers:     workers,
		preferIndex: params.PreferIndex,
	}
}

// Build scans dir, assembles the images and aggregates their metadata.
func (s *Scanner) Build(dir string) (*Result, []models.ImageRecord, error) {
	res, err := s.Scan(dir)
	if err != nil {
		return nil, nil, err
	}
	images := s.Assemble(res.Files, res.Segments)
	s.Aggregate(res.Files, images)
	return res, images, nil
}

// Scan lists the image files below dir. A malformed or missing index is
// never fatal: the scanner falls back to walking the tree.
func (s *Scanner) Scan(dir string) (*Result, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", abs)
	}

	if s.preferIndex {
		res, err := s.scanIndex(abs)
		if err == nil {
			s.log.Info().Str("dir", abs).Int("files", len(res.Files)).Msg("scanned directory index")
			return res, nil
		}
		if errors.Is(err, ErrNotIndex) {
			s.log.Debug().Err(err).Msg("no usable directory index")
		} else {
			s.log.Warn().Err(err).Str("dir", abs).Msg("directory index unusable, walking the tree")
		}
	}

	res, err := s.scanTree(abs)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("dir", abs).Int("files", len(res.Files)).Msg("scanned directory tree")
	return res, nil
}

// findIndex looks for the index file in the root of dir.
func findIndex(dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(e.Name(), indexFileName) {
			return filepath.Join(dir, e.Name()), true
		}
	}
	return "", false
}

// indexContext is the identifier set inherited by IMAGE records.
type indexContext struct {
	studyUID         string
	studyDescription string
	seriesUID        string
	protocol         string
}

func (c *indexContext) fill(rec *models.FileRecord) {
	if rec.StudyInstanceUID == "" {
		rec.StudyInstanceUID = c.studyUID
	}
	if rec.StudyDescription == "" {
		rec.StudyDescription = c.studyDescription
	}
	if rec.SeriesInstanceUID == "" {
		rec.SeriesInstanceUID = c.seriesUID
	}
	if rec.ProtocolName == "" {
		rec.ProtocolName = c.protocol
	}
}

// scanIndex walks the directory records of a DICOMDIR.
func (s *Scanner) scanIndex(dir string) (*Result, error) {
	path, ok := findIndex(dir)
	if !ok {
		return nil, fmt.Errorf("%w: no %s in %s", ErrNotIndex, indexFileName, dir)
	}
	idx, err := dicomio.WithIndex(s.op, path)
	if err != nil {
		return nil, fmt.Errorf("read index %s: %w", path, err)
	}
	if idx.SOPClassUID != dicomio.MediaStorageDirectoryUID {
		return nil, fmt.Errorf("%w: %s has SOP class %q", ErrNotIndex, path, idx.SOPClassUID)
	}

	res := &Result{Dir: dir, Indexed: true}
	var (
		ctx      indexContext
		start    int
		expected int
		probe    bool
	)
	flush := func() {
		res.Segments = append(res.Segments, cutSegment(start, len(res.Files), expected)...)
		start = len(res.Files)
		expected = 0
	}

	s.progress.EmitTask(len(idx.Records), "reading directory index")
	defer s.progress.SetFinished()

	for _, rec := range idx.Records {
		s.progress.Increment(1)
		switch strings.ToUpper(strings.TrimSpace(rec.Type)) {
		case "STUDY":
			flush()
			ctx = indexContext{
				studyUID:         rec.Values[dicomio.TagStudyInstanceUID],
				studyDescription: rec.Values[dicomio.TagStudyDescription],
			}
			probe = true
		case "SERIES":
			flush()
			ctx.seriesUID = rec.Values[dicomio.TagSeriesInstanceUID]
			ctx.protocol = rec.Values[dicomio.TagProtocolName]
			probe = true
		case "IMAGE":
			if len(rec.FileID) == 0 {
				return nil, fmt.Errorf("%w: image record without file reference", ErrNotIndex)
			}
			file := filepath.Join(append([]string{dir}, rec.FileID...)...)
			fr, err := dicomio.Extract(s.op, file)
			if err != nil {
				s.log.Debug().Err(err).Str("path", file).Msg("skipping unreadable indexed file")
				continue
			}
			ctx.fill(&fr)
			if probe {
				probe = false
				if c, err := dicomio.ProbeCounts(s.op, file); err == nil && c.Slices > 0 && c.TemporalPositions > 0 {
					expected = c.Slices * c.TemporalPositions
				}
			}
			res.Files = append(res.Files, fr)
		}
	}
	flush()

	if len(res.Files) == 0 {
		return nil, fmt.Errorf("%w: %s references no images", ErrNotIndex, path)
	}
	return res, nil
}

// cutSegment splits [start, end) into chunks of expected files when the
// range is a whole multiple of it, else returns it as one segment.
func cutSegment(start, end, expected int) []Segment {
	n := end - start
	if n <= 0 {
		return nil
	}
	if expected <= 0 || n <= expected || n%expected != 0 {
		return []Segment{{Start: start, End: end}}
	}
	segs := make([]Segment, 0, n/expected)
	for a := start; a < end; a += expected {
		segs = append(segs, Segment{Start: a, End: a + expected})
	}
	return segs
}

// scanTree reads every file below dir and stable-sorts them by key.
func (s *Scanner) scanTree(dir string) (*Result, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			s.log.Debug().Err(err).Str("path", p).Msg("skipping unreadable entry")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || strings.EqualFold(d.Name(), indexFileName) {
			return nil
		}
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}

	records := make([]models.FileRecord, len(paths))
	readable := make([]bool, len(paths))

	s.progress.EmitTask(len(paths), "reading file headers")
	var g errgroup.Group
	g.SetLimit(s.workers)
	var skipped int
	var mu sync.Mutex
	for i, p := range paths {
		g.Go(func() error {
			defer s.progress.Increment(1)
			rec, err := dicomio.Extract(s.op, p)
			if err != nil {
				s.log.Debug().Err(err).Str("path", p).Msg("skipping file")
				mu.Lock()
				skipped++
				mu.Unlock()
				return nil
			}
			records[i] = rec
			readable[i] = true
			return nil
		})
	}
	_ = g.Wait()
	s.progress.SetFinished()

	files := make([]models.FileRecord, 0, len(paths)-skipped)
	for i := range records {
		if readable[i] {
			files = append(files, records[i])
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoFiles, dir)
	}
	if skipped > 0 {
		s.log.Info().Int("skipped", skipped).Msg("ignored files that are not images")
	}

	SortByKey(files)
	return &Result{
		Dir:      dir,
		Files:    files,
		Segments: []Segment{{Start: 0, End: len(files)}},
	}, nil
}

// SortByKey stable-sorts files by their grouping key. Files with equal keys
// keep their relative order.
func SortByKey(files []models.FileRecord) {
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].Key().Less(files[j].Key())
	})
}
