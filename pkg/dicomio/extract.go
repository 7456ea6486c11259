package dicomio

import (
	"github.com/suyashkumar/dicom/pkg/tag"
	"gonum.org/v1/gonum/spatial/r3"

	"mrivolumes/internal/models"
)

// FloatResolver derives a value from an opened file.
type FloatResolver func(Decoder) (float64, bool)

// IntResolver derives a count from an opened file.
type IntResolver func(Decoder) (int, bool)

// ResolveFloat applies resolvers in order until one succeeds.
func ResolveFloat(dec Decoder, chain []FloatResolver) (float64, bool) {
	for _, r := range chain {
		if v, ok := r(dec); ok {
			return v, true
		}
	}
	return 0, false
}

// ResolveInt applies resolvers in order until one yields a positive count.
func ResolveInt(dec Decoder, chain []IntResolver) (int, bool) {
	for _, r := range chain {
		if v, ok := r(dec); ok && v > 0 {
			return v, true
		}
	}
	return 0, false
}

// FloatTag reads a decimal tag.
func FloatTag(t tag.Tag) FloatResolver {
	return func(dec Decoder) (float64, bool) { return Float(dec, t) }
}

// IntTag reads an integer tag.
func IntTag(t tag.Tag) IntResolver {
	return func(dec Decoder) (int, bool) { return Int(dec, t) }
}

// TimeTag reads a TM tag as milliseconds since midnight.
func TimeTag(t tag.Tag) FloatResolver {
	return func(dec Decoder) (float64, bool) {
		if !dec.HasTag(t) {
			return 0, false
		}
		return ParseTime(dec.StringValue(t))
	}
}

// ProjectedSliceLocation projects the image position on the slice normal.
func ProjectedSliceLocation(dec Decoder) (float64, bool) {
	pos, ok := Vec3(dec, TagImagePositionPatient)
	if !ok {
		return 0, false
	}
	row, col, ok := Orientation(dec)
	if !ok {
		return 0, false
	}
	n := r3.Cross(r3.Vec{X: row[0], Y: row[1], Z: row[2]}, r3.Vec{X: col[0], Y: col[1], Z: col[2]})
	if r3.Norm(n) == 0 {
		return 0, false
	}
	return r3.Dot(r3.Unit(n), r3.Vec{X: pos[0], Y: pos[1], Z: pos[2]}), true
}

// TriggerAcquisitionTime offsets the trigger delay by the series time.
func TriggerAcquisitionTime(dec Decoder) (float64, bool) {
	trigger, ok := Float(dec, TagTriggerTime)
	if !ok {
		return 0, false
	}
	base, _ := TimeTag(TagSeriesTime)(dec)
	return base + trigger, true
}

var (
	sliceLocationChain = []FloatResolver{
		FloatTag(TagSliceLocation),
		ProjectedSliceLocation,
	}
	acquisitionTimeChain = []FloatResolver{
		TimeTag(TagAcquisitionTime),
		TimeTag(TagContentTime),
		TriggerAcquisitionTime,
	}
)

// Extract reads the metadata record of one file.
func Extract(op Opener, path string) (models.FileRecord, error) {
	var rec models.FileRecord
	err := WithFile(op, path, func(dec Decoder) error {
		rec = RecordFrom(dec, path)
		return nil
	})
	return rec, err
}

// RecordFrom builds a file record from an opened decoder.
func RecordFrom(dec Decoder, path string) models.FileRecord {
	rec := models.FileRecord{
		Path:              path,
		StudyInstanceUID:  Str(dec, TagStudyInstanceUID),
		SeriesInstanceUID: Str(dec, TagSeriesInstanceUID),
		SequenceName:      Str(dec, TagSequenceName),
		ProtocolName:      Str(dec, TagProtocolName),
		StudyDescription:  Str(dec, TagStudyDescription),
		SeriesDescription: Str(dec, TagSeriesDescription),
		ImageType:         Str(dec, TagImageType),
	}
	rec.InstanceNumber, _ = Int(dec, TagInstanceNumber)
	rec.SliceLocation, rec.HasSliceLocation = ResolveFloat(dec, sliceLocationChain)
	rec.AcquisitionTime, rec.HasAcquisitionTime = ResolveFloat(dec, acquisitionTimeChain)
	rec.ImagePosition, rec.HasImagePosition = Vec3(dec, TagImagePositionPatient)
	return rec
}
