package scan

import (
	"sort"
	"strconv"

	"mrivolumes/internal/models"
	"mrivolumes/pkg/dicomio"
)

// Assemble groups the files of every segment into image records. Each
// maximal run of equal-key files yields one record, or several when the run
// holds a whole multiple of the expected file count. Files are reordered in
// place so that every record's range is slice-major.
func (s *Scanner) Assemble(files []models.FileRecord, segments []Segment) []models.ImageRecord {
	var images []models.ImageRecord

	s.progress.EmitTask(len(files), "assembling images")
	for _, seg := range segments {
		part := files[seg.Start:seg.End]
		SortByKey(part)

		for a := 0; a < len(part); {
			b := a + 1
			key := part[a].Key()
			for b < len(part) && part[b].Key() == key {
				b++
			}
			images = append(images, s.assembleRun(files, seg.Start+a, seg.Start+b)...)
			s.progress.Increment(b - a)
			a = b
		}
	}
	s.progress.SetFinished()

	return dedupe(images)
}

// assembleRun emits the records of files[start:end], a run sharing one key.
func (s *Scanner) assembleRun(files []models.FileRecord, start, end int) []models.ImageRecord {
	run := files[start:end]
	n := len(run)
	log := s.log.With().Str("series", run[0].SeriesInstanceUID).Str("sequence", run[0].SequenceName).Logger()

	counts, err := dicomio.ProbeCounts(s.op, run[0].Path)
	if err != nil {
		log.Warn().Err(err).Str("path", run[0].Path).Msg("cannot probe first file of run")
	}

	slices, temporal := counts.Slices, counts.TemporalPositions
	if slices <= 0 {
		slices = distinctCount(run, func(f *models.FileRecord) (float64, bool) {
			return f.SliceLocation, f.HasSliceLocation
		})
	}
	if temporal <= 0 {
		temporal = distinctCount(run, func(f *models.FileRecord) (float64, bool) {
			return f.AcquisitionTime, f.HasAcquisitionTime
		})
	}
	slices, temporal = atLeastOne(slices), atLeastOne(temporal)

	base := models.ImageRecord{
		Manufacturer:   counts.Manufacturer,
		NumberOfFrames: counts.NumberOfFrames,
		InstanceCount:  counts.InstanceCount,
	}
	if base.NumberOfFrames <= 0 {
		base.NumberOfFrames = n
	}

	expected := slices * temporal
	if n != expected && (n < expected || n%expected != 0) {
		// counts disagree with the run: trust the slice count if it divides
		if n%slices == 0 {
			temporal = n / slices
		} else {
			slices, temporal = n, 1
		}
		log.Warn().Int("files", n).Int("expected", expected).
			Int("slices", slices).Int("temporal", temporal).
			Msg("file count does not match image dimensions, guessing")
		expected = n
	}
	base.Slices, base.TemporalPositions = slices, temporal

	if n == expected {
		sortBySlice(run)
		im := base
		im.FileStart, im.FileEnd = start, end
		return []models.ImageRecord{im}
	}

	fragments := n / expected
	log.Info().Int("files", n).Int("fragments", fragments).Msg("splitting merged run")
	out := make([]models.ImageRecord, 0, fragments)
	for k := 0; k < fragments; k++ {
		a := start + k*expected
		frag := files[a : a+expected]
		sortBySlice(frag)
		suffix := "_" + strconv.Itoa(k+1)
		for i := range frag {
			frag[i].SeriesInstanceUID += suffix
			frag[i].SequenceName += suffix
			frag[i].ProtocolName += suffix
		}
		im := base
		im.FileStart, im.FileEnd = a, a+expected
		im.NumberOfFrames = minInt(im.NumberOfFrames, expected)
		im.Split = true
		out = append(out, im)
	}
	return out
}

// distinctCount counts the distinct known values of a field.
func distinctCount(run []models.FileRecord, field func(*models.FileRecord) (float64, bool)) int {
	vals := make([]float64, 0, len(run))
	for i := range run {
		if v, ok := field(&run[i]); ok {
			vals = append(vals, v)
		}
	}
	return len(distinct(vals))
}

// distinct sorts vals and drops repeated values.
func distinct(vals []float64) []float64 {
	if len(vals) == 0 {
		return nil
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	out := sorted[:1]
	for _, v := range sorted[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

// sortBySlice orders files by slice location, acquisition time and instance
// number, keeping ties in their current order.
func sortBySlice(files []models.FileRecord) {
	sort.SliceStable(files, func(i, j int) bool {
		a, b := &files[i], &files[j]
		if a.SliceLocation != b.SliceLocation {
			return a.SliceLocation < b.SliceLocation
		}
		if a.AcquisitionTime != b.AcquisitionTime {
			return a.AcquisitionTime < b.AcquisitionTime
		}
		return a.InstanceNumber < b.InstanceNumber
	})
}

// dedupe removes records covering an identical file range.
func dedupe(images []models.ImageRecord) []models.ImageRecord {
	seen := make(map[[2]int]bool, len(images))
	out := images[:0]
	for _, im := range images {
		k := [2]int{im.FileStart, im.FileEnd}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, im)
	}
	return out
}

func atLeastOne(v int) int {
	if v < 1 {
		return 1
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
