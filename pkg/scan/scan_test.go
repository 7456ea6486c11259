package scan

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/suyashkumar/dicom/pkg/tag"

	"mrivolumes/internal/models"
	"mrivolumes/pkg/dicomio"
	"mrivolumes/pkg/progress"
)

// fixture backs a temp directory of empty files with in-memory tags.
type fixture struct {
	dir string
	op  *dicomio.MemoryOpener
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{dir: t.TempDir(), op: dicomio.NewMemoryOpener()}
}

func (f *fixture) add(t *testing.T, name string, tags map[tag.Tag]string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	f.op.Add(path, &dicomio.MemoryFile{Tags: tags})
	return path
}

func (f *fixture) scanner(counter *progress.Counter) *Scanner {
	params := &Params{Opener: f.op, Log: zerolog.Nop(), Workers: 3, PreferIndex: true}
	if counter != nil {
		params.Progress = counter
	}
	return NewScanner(params)
}

// series describes a synthetic acquisition written file by file.
type series struct {
	uid      string
	sequence string
	slices   int
	temporal int

	// omitCounts drops the dimension tags so they must be inferred
	omitCounts bool
}

func (s series) tags(sl, tt, instance int) map[tag.Tag]string {
	tags := map[tag.Tag]string{
		dicomio.TagSeriesInstanceUID:       s.uid,
		dicomio.TagSequenceName:            s.sequence,
		dicomio.TagInstanceNumber:          strconv.Itoa(instance),
		dicomio.TagRows:                    "4",
		dicomio.TagColumns:                 "6",
		dicomio.TagBitsAllocated:           "16",
		dicomio.TagBitsStored:              "12",
		dicomio.TagPixelSpacing:            `0.5\0.25`,
		dicomio.TagImageOrientationPatient: `1\0\0\0\1\0`,
		dicomio.TagImagePositionPatient:    fmt.Sprintf(`0\0\%d`, 2*sl),
		dicomio.TagSliceLocation:           strconv.Itoa(2 * sl),
		dicomio.TagAcquisitionTime:         fmt.Sprintf("100000.%06d", tt*50000),
		dicomio.TagPatientName:             "DOE^JANE",
	}
	if !s.omitCounts {
		tags[dicomio.TagNumberOfSlices] = strconv.Itoa(s.slices)
		tags[dicomio.TagNumberOfTemporalPositions] = strconv.Itoa(s.temporal)
	}
	return tags
}

// write stores the series with file names in reverse acquisition order.
func (s series) write(t *testing.T, f *fixture, prefix string) {
	t.Helper()
	n := s.slices * s.temporal
	for sl := 0; sl < s.slices; sl++ {
		for tt := 0; tt < s.temporal; tt++ {
			instance := sl*s.temporal + tt + 1
			name := fmt.Sprintf("%s/IM%04d", prefix, n-instance)
			f.add(t, name, s.tags(sl, tt, instance))
		}
	}
}

func sumRanges(images []models.ImageRecord) int {
	total := 0
	for _, im := range images {
		total += im.NumFiles()
	}
	return total
}

func TestBruteForceStableSort(t *testing.T) {
	f := newFixture(t)
	f.add(t, "f00", map[tag.Tag]string{dicomio.TagSeriesInstanceUID: "2", dicomio.TagInstanceNumber: "9"})
	f.add(t, "f01", map[tag.Tag]string{dicomio.TagSeriesInstanceUID: "2", dicomio.TagInstanceNumber: "1"})
	f.add(t, "f02", map[tag.Tag]string{dicomio.TagSeriesInstanceUID: "1", dicomio.TagInstanceNumber: "5"})
	f.add(t, "f03", map[tag.Tag]string{dicomio.TagSeriesInstanceUID: "1", dicomio.TagInstanceNumber: "3"})
	// not an image: skipped
	if err := os.WriteFile(filepath.Join(f.dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	res, err := f.scanner(nil).Scan(f.dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Indexed {
		t.Error("tree scan reported as indexed")
	}
	want := []string{"f02", "f03", "f00", "f01"}
	if len(res.Files) != len(want) {
		t.Fatalf("got %d files, want %d", len(res.Files), len(want))
	}
	for i, name := range want {
		if got := filepath.Base(res.Files[i].Path); got != name {
			t.Errorf("file %d = %s, want %s", i, got, name)
		}
	}
	if len(res.Segments) != 1 || res.Segments[0].Len() != 4 {
		t.Errorf("segments = %+v", res.Segments)
	}
}

func TestScanEmptyDirectory(t *testing.T) {
	f := newFixture(t)
	if _, err := f.scanner(nil).Scan(f.dir); err == nil {
		t.Error("Scan of an empty directory succeeded")
	}
}

func TestBuildSingle3DTImage(t *testing.T) {
	f := newFixture(t)
	series{uid: "1.1", sequence: "fl3d1", slices: 4, temporal: 3}.write(t, f, "flow")

	counter := &progress.Counter{}
	res, images, err := f.scanner(counter).Build(f.dir)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(images) != 1 {
		t.Fatalf("got %d images, want 1", len(images))
	}
	im := images[0]
	if im.NumFiles() != im.ExpectedFiles() || im.NumFiles() != 12 {
		t.Errorf("range %d, expected %d", im.NumFiles(), im.ExpectedFiles())
	}
	if im.Slices != 4 || im.TemporalPositions != 3 || im.Dimensions != 4 {
		t.Errorf("dims = %d x %d, %dD", im.Slices, im.TemporalPositions, im.Dimensions)
	}
	if im.Rows != 4 || im.Columns != 6 || im.BitsStored != 12 {
		t.Errorf("pixel fields = %+v", im)
	}
	if im.PatientName != "DOE^JANE" {
		t.Errorf("PatientName = %q", im.PatientName)
	}
	if math.Abs(im.TemporalResolution-50) > 1e-6 {
		t.Errorf("TemporalResolution = %v, want 50", im.TemporalResolution)
	}

	// slice-major: times ascend inside a slice, locations between slices
	for s := 0; s < im.SliceCount(); s++ {
		for tt := 0; tt < im.TimeCount(); tt++ {
			fr := res.Files[im.FileIndex(s, tt)]
			if tt > 0 {
				prev := res.Files[im.FileIndex(s, tt-1)]
				if fr.AcquisitionTime <= prev.AcquisitionTime {
					t.Errorf("slice %d: time %d not ascending", s, tt)
				}
				if fr.SliceLocation != prev.SliceLocation {
					t.Errorf("slice %d: location changes inside slice", s)
				}
			}
		}
	}
	if counter.Finished == 0 || counter.Done == 0 {
		t.Errorf("progress not reported: %+v", counter.Tasks)
	}
}

func TestAssembleSplitsMergedRun(t *testing.T) {
	f := newFixture(t)
	// counts say 2 slices x 1 phase, but 6 files share the key
	s := series{uid: "1.2", sequence: "tfl", slices: 2, temporal: 1}
	for k := 0; k < 3; k++ {
		for sl := 0; sl < 2; sl++ {
			f.add(t, fmt.Sprintf("IM%d%d", k, sl), s.tags(sl, 0, k*2+sl+1))
		}
	}

	res, images, err := f.scanner(nil).Build(f.dir)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(images) != 3 {
		t.Fatalf("got %d images, want 3", len(images))
	}
	if sumRanges(images) != len(res.Files) {
		t.Errorf("ranges cover %d files, want %d", sumRanges(images), len(res.Files))
	}
	for i, im := range images {
		if !im.Split {
			t.Errorf("image %d not marked split", i)
		}
		if im.NumFiles() != im.ExpectedFiles() {
			t.Errorf("image %d: range %d, expected %d", i, im.NumFiles(), im.ExpectedFiles())
		}
		suffix := "_" + strconv.Itoa(i+1)
		if im.SeriesInstanceUID != "1.2"+suffix || im.SequenceName != "tfl"+suffix {
			t.Errorf("image %d identifiers = %q %q", i, im.SeriesInstanceUID, im.SequenceName)
		}
	}
}

func TestAssembleInfersMissingCounts(t *testing.T) {
	f := newFixture(t)
	series{uid: "1.3", sequence: "cine", slices: 3, temporal: 5, omitCounts: true}.write(t, f, "cine")

	_, images, err := f.scanner(nil).Build(f.dir)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(images) != 1 {
		t.Fatalf("got %d images, want 1", len(images))
	}
	if images[0].Slices != 3 || images[0].TemporalPositions != 5 {
		t.Errorf("inferred %d x %d, want 3 x 5", images[0].Slices, images[0].TemporalPositions)
	}
}

func TestAssembleGuessesOnMismatch(t *testing.T) {
	f := newFixture(t)
	// 4 slices announced, 6 files present
	s := series{uid: "1.4", sequence: "t1", slices: 4, temporal: 1}
	for sl := 0; sl < 6; sl++ {
		f.add(t, fmt.Sprintf("IM%d", sl), s.tags(sl, 0, sl+1))
	}

	_, images, err := f.scanner(nil).Build(f.dir)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(images) != 1 {
		t.Fatalf("got %d images, want 1", len(images))
	}
	im := images[0]
	if im.Slices != 6 || im.TemporalPositions != 1 || im.NumFiles() != im.ExpectedFiles() {
		t.Errorf("guess = %d x %d over %d files", im.Slices, im.TemporalPositions, im.NumFiles())
	}
}

func TestRunLengthsSumToFileCount(t *testing.T) {
	f := newFixture(t)
	series{uid: "2.1", sequence: "a", slices: 3, temporal: 2}.write(t, f, "a")
	series{uid: "2.2", sequence: "b", slices: 1, temporal: 7}.write(t, f, "b")
	series{uid: "2.3", sequence: "c", slices: 5, temporal: 1}.write(t, f, "c")

	res, images, err := f.scanner(nil).Build(f.dir)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(images) != 3 {
		t.Fatalf("got %d images, want 3", len(images))
	}
	if got := sumRanges(images); got != len(res.Files) || got != 6+7+5 {
		t.Errorf("ranges cover %d files of %d", got, len(res.Files))
	}
	for _, im := range images {
		if im.NumFiles() != im.ExpectedFiles() {
			t.Errorf("%s: range %d, expected %d", im.SeriesInstanceUID, im.NumFiles(), im.ExpectedFiles())
		}
	}
}

func TestDedupe(t *testing.T) {
	images := []models.ImageRecord{
		{FileStart: 0, FileEnd: 4},
		{FileStart: 4, FileEnd: 8, SequenceName: "first"},
		{FileStart: 4, FileEnd: 8, SequenceName: "second"},
		{FileStart: 0, FileEnd: 8},
	}
	got := dedupe(images)
	if len(got) != 3 {
		t.Fatalf("got %d records, want 3", len(got))
	}
	if got[1].SequenceName != "first" {
		t.Errorf("kept %q, want the first occurrence", got[1].SequenceName)
	}
}

func TestWorldMatrixLastSliceAnchor(t *testing.T) {
	f := newFixture(t)
	series{uid: "3.1", sequence: "t2", slices: 3, temporal: 1}.write(t, f, "t2")

	res, images, err := f.scanner(nil).Build(f.dir)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	im := images[0]

	// columns: x * 0.25 mm, rows: y * 0.5 mm, slices: from z=4 towards z=0
	want := [16]float64{
		0.25, 0, 0, -0.125,
		0, 0.5, 0, -0.25,
		0, 0, -2, 5,
		0, 0, 0, 1,
	}
	for i := range want {
		if math.Abs(im.WorldMatrix[i]-want[i]) > 1e-9 {
			t.Fatalf("WorldMatrix = %v, want %v", im.WorldMatrix, want)
		}
	}
	if im.SliceSpacing != 2 {
		t.Errorf("SliceSpacing = %v, want 2", im.SliceSpacing)
	}

	center := im.VoxelToPatient(0.5, 0.5, 0.5)
	if math.Abs(center[2]-4) > 1e-9 {
		t.Errorf("first voxel center z = %v, want 4", center[2])
	}

	// files re-sorted along the derived normal
	for s := 0; s < 3; s++ {
		fr := res.Files[im.FileIndex(s, 0)]
		if fr.ImagePosition[2] != float64(4-2*s) {
			t.Errorf("slice %d at z=%v, want %v", s, fr.ImagePosition[2], 4-2*s)
		}
		if math.Abs(fr.SliceLocation-float64(2*s)) > 1e-9 {
			t.Errorf("slice %d location %v, want %v", s, fr.SliceLocation, 2*s)
		}
	}
}

func TestWorldMatrixIdentityWithoutOrientation(t *testing.T) {
	f := newFixture(t)
	f.add(t, "only", map[tag.Tag]string{
		dicomio.TagSeriesInstanceUID: "4.1",
		dicomio.TagRows:              "8",
		dicomio.TagColumns:           "8",
	})
	_, images, err := f.scanner(nil).Build(f.dir)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if images[0].WorldMatrix != models.IdentityMatrix {
		t.Errorf("WorldMatrix = %v, want identity", images[0].WorldMatrix)
	}
	if images[0].Dimensions != 2 {
		t.Errorf("Dimensions = %d, want 2", images[0].Dimensions)
	}
}

func TestAggregateFirstWriteWins(t *testing.T) {
	f := newFixture(t)
	s := series{uid: "5.1", sequence: "x", slices: 3, temporal: 1}
	for sl := 0; sl < 3; sl++ {
		tags := s.tags(sl, 0, sl+1)
		delete(tags, dicomio.TagPatientName)
		if sl > 0 {
			tags[dicomio.TagPatientName] = fmt.Sprintf("P%d", sl)
			tags[dicomio.TagRows] = "99"
		}
		f.add(t, fmt.Sprintf("IM%d", sl), tags)
	}
	_, images, err := f.scanner(nil).Build(f.dir)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if images[0].PatientName != "P1" {
		t.Errorf("PatientName = %q, want P1", images[0].PatientName)
	}
	if images[0].Rows != 4 {
		t.Errorf("Rows = %d, want 4", images[0].Rows)
	}
}

func TestTemporalResolution(t *testing.T) {
	tests := []struct {
		name      string
		nominal   float64
		heartRate float64
		temporal  int
		times     []float64
		want      float64
	}{
		{"nominal interval", 1000, 75, 20, nil, 50},
		{"heart rate", 0, 60, 20, nil, 50},
		{"acquisition times", 0, 0, 4, []float64{0, 50, 100, 150, 1000, 1050, 1100, 1150}, 50},
		{"duplicated times", 0, 0, 3, []float64{10, 10, 40, 40, 70}, 30},
		{"static image", 0, 0, 1, []float64{0, 400, 800}, 0},
		{"single time", 0, 0, 5, []float64{42}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := temporalResolution(tt.nominal, tt.heartRate, tt.temporal, tt.times)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("temporalResolution = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIndexScan(t *testing.T) {
	f := newFixture(t)
	s := series{uid: "6.1", sequence: "fl", slices: 2, temporal: 2}
	idx := &dicomio.Index{SOPClassUID: dicomio.MediaStorageDirectoryUID}
	idx.Records = append(idx.Records,
		dicomio.IndexRecord{Type: "PATIENT"},
		dicomio.IndexRecord{Type: "STUDY", Values: map[tag.Tag]string{dicomio.TagStudyInstanceUID: "9"}},
		dicomio.IndexRecord{Type: "SERIES", Values: map[tag.Tag]string{dicomio.TagSeriesInstanceUID: "6.1"}},
	)
	// two acquisitions of one series listed back to back
	for k := 0; k < 2; k++ {
		for sl := 0; sl < 2; sl++ {
			for tt := 0; tt < 2; tt++ {
				name := fmt.Sprintf("IM%d%d%d", k, sl, tt)
				tags := s.tags(sl, tt, sl*2+tt+1)
				delete(tags, dicomio.TagSeriesInstanceUID)
				f.add(t, filepath.Join("DATA", name), tags)
				idx.Records = append(idx.Records, dicomio.IndexRecord{Type: "IMAGE", FileID: []string{"DATA", name}})
			}
		}
	}
	f.add(t, "dicomdir", nil)
	f.op.AddIndex(filepath.Join(f.dir, "dicomdir"), idx)

	res, images, err := f.scanner(nil).Build(f.dir)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !res.Indexed {
		t.Fatal("index was not used")
	}
	if len(res.Segments) != 2 || res.Segments[0].Len() != 4 {
		t.Errorf("segments = %+v", res.Segments)
	}
	if len(images) != 2 {
		t.Fatalf("got %d images, want 2", len(images))
	}
	for _, im := range images {
		if im.SeriesInstanceUID != "6.1" || im.StudyInstanceUID != "9" {
			t.Errorf("context not inherited: %q %q", im.SeriesInstanceUID, im.StudyInstanceUID)
		}
		if im.Split {
			t.Error("index segment reported as split")
		}
	}
	if sumRanges(images) != 8 {
		t.Errorf("ranges cover %d files, want 8", sumRanges(images))
	}
}

func TestIndexWrongKindFallsBack(t *testing.T) {
	f := newFixture(t)
	series{uid: "7.1", sequence: "x", slices: 2, temporal: 1}.write(t, f, "x")
	f.add(t, "DICOMDIR", nil)
	f.op.AddIndex(filepath.Join(f.dir, "DICOMDIR"), &dicomio.Index{SOPClassUID: "1.2.3"})

	res, err := f.scanner(nil).Scan(f.dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Indexed {
		t.Error("invalid index was used")
	}
	if len(res.Files) != 2 {
		t.Errorf("got %d files, want 2 (index file excluded)", len(res.Files))
	}
}

func TestIndexMissingFileFallsBack(t *testing.T) {
	f := newFixture(t)
	series{uid: "8.1", sequence: "x", slices: 3, temporal: 1}.write(t, f, "x")
	f.add(t, "DICOMDIR", nil)
	f.op.AddIndex(filepath.Join(f.dir, "DICOMDIR"), &dicomio.Index{
		SOPClassUID: dicomio.MediaStorageDirectoryUID,
		Records:     []dicomio.IndexRecord{{Type: "IMAGE", FileID: []string{"GONE"}}},
	})

	res, err := f.scanner(nil).Scan(f.dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Indexed || len(res.Files) != 3 {
		t.Errorf("indexed=%v files=%d", res.Indexed, len(res.Files))
	}
}

func TestIndexSkipsUnreadableFile(t *testing.T) {
	f := newFixture(t)
	s := series{uid: "8.2", sequence: "x", slices: 2, temporal: 1}
	idx := &dicomio.Index{SOPClassUID: dicomio.MediaStorageDirectoryUID}
	idx.Records = append(idx.Records,
		dicomio.IndexRecord{Type: "SERIES", Values: map[tag.Tag]string{dicomio.TagSeriesInstanceUID: "8.2"}},
		dicomio.IndexRecord{Type: "IMAGE", FileID: []string{"DATA", "GONE"}},
	)
	for sl := 0; sl < 2; sl++ {
		name := fmt.Sprintf("IM%d", sl)
		f.add(t, filepath.Join("DATA", name), s.tags(sl, 0, sl+1))
		idx.Records = append(idx.Records, dicomio.IndexRecord{Type: "IMAGE", FileID: []string{"DATA", name}})
	}
	f.add(t, "DICOMDIR", nil)
	f.op.AddIndex(filepath.Join(f.dir, "DICOMDIR"), idx)

	res, err := f.scanner(nil).Scan(f.dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !res.Indexed {
		t.Fatal("index was abandoned over one unreadable file")
	}
	if len(res.Files) != 2 {
		t.Errorf("got %d files, want 2", len(res.Files))
	}
}

func TestCutSegment(t *testing.T) {
	tests := []struct {
		start, end, expected int
		want                 int
	}{
		{0, 12, 4, 3},
		{0, 12, 5, 1},
		{0, 4, 4, 1},
		{3, 3, 2, 0},
		{0, 9, 0, 1},
	}
	for _, tt := range tests {
		if got := len(cutSegment(tt.start, tt.end, tt.expected)); got != tt.want {
			t.Errorf("cutSegment(%d, %d, %d) = %d segments, want %d", tt.start, tt.end, tt.expected, got, tt.want)
		}
	}
}
