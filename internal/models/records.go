package models

import (
	"gonum.org/v1/gonum/mat"
)

// FileRecord describes one physical slice file.
type FileRecord struct {
	// Path is the absolute path of the file on disk
	Path string

	// InstanceNumber is the scanner-assigned image number, 0 when absent
	InstanceNumber int

	// Identifiers used to group files into images
	StudyInstanceUID  string
	SeriesInstanceUID string
	SequenceName      string
	ProtocolName      string
	StudyDescription  string
	SeriesDescription string
	ImageType         string

	// SliceLocation is the patient-space offset of the slice along its normal
	SliceLocation    float64
	HasSliceLocation bool

	// AcquisitionTime is the capture time in milliseconds since midnight
	AcquisitionTime    float64
	HasAcquisitionTime bool

	// ImagePosition is the patient-space position of the first transmitted voxel
	ImagePosition    [3]float64
	HasImagePosition bool
}

// FileKey is the tuple files are sorted and grouped by.
type FileKey struct {
	SeriesInstanceUID string
	SequenceName      string
	StudyDescription  string
	SeriesDescription string
	ImageType         string
}

// Key returns the grouping key of the file.
func (f *FileRecord) Key() FileKey {
	return FileKey{
		SeriesInstanceUID: f.SeriesInstanceUID,
		SequenceName:      f.SequenceName,
		StudyDescription:  f.StudyDescription,
		SeriesDescription: f.SeriesDescription,
		ImageType:         f.ImageType,
	}
}

// Less orders keys field by field.
func (k FileKey) Less(o FileKey) bool {
	if k.SeriesInstanceUID != o.SeriesInstanceUID {
		return k.SeriesInstanceUID < o.SeriesInstanceUID
	}
	if k.SequenceName != o.SequenceName {
		return k.SequenceName < o.SequenceName
	}
	if k.StudyDescription != o.StudyDescription {
		return k.StudyDescription < o.StudyDescription
	}
	if k.SeriesDescription != o.SeriesDescription {
		return k.SeriesDescription < o.SeriesDescription
	}
	return k.ImageType < o.ImageType
}

// ImageRecord is one coherent volume assembled from the half-open file range
// [FileStart, FileEnd). Files inside the range are ordered slice-major: the
// file for slice s and temporal position t sits at FileStart + s*T + t.
type ImageRecord struct {
	FileStart int
	FileEnd   int

	// Per-axis sizes
	Rows              int
	Columns           int
	Slices            int
	TemporalPositions int
	Dimensions        int

	// Physical spacing in mm, temporal resolution in ms
	RowSpacing         float64
	ColumnSpacing      float64
	SliceSpacing       float64
	TemporalResolution float64

	// Pixel storage
	SamplesPerPixel     int
	BitsAllocated       int
	BitsStored          int
	HighBit             int
	PixelRepresentation int
	BigEndian           bool

	NumberOfFrames int
	InstanceCount  int

	// Descriptive strings
	PatientName       string
	PatientID         string
	StudyInstanceUID  string
	StudyDescription  string
	SeriesInstanceUID string
	SeriesDescription string
	SequenceName      string
	ProtocolName      string
	Modality          string
	Manufacturer      string
	ImageType         string

	// RowOrientation is the direction of increasing column index,
	// ColumnOrientation the direction of increasing row index.
	RowOrientation    [3]float64
	ColumnOrientation [3]float64

	// WorldMatrix maps homogeneous voxel indices (col, row, slice, 1) to
	// patient coordinates. Row-major.
	WorldMatrix [16]float64

	// Split is set when the record is one fragment of a merged run.
	Split bool
}

// NumFiles returns the length of the file range.
func (im *ImageRecord) NumFiles() int {
	return im.FileEnd - im.FileStart
}

// ExpectedFiles returns max(slices,1) * max(temporal positions,1).
func (im *ImageRecord) ExpectedFiles() int {
	return atLeastOne(im.Slices) * atLeastOne(im.TemporalPositions)
}

// SliceCount returns the number of slices, never less than one.
func (im *ImageRecord) SliceCount() int { return atLeastOne(im.Slices) }

// TimeCount returns the number of temporal positions, never less than one.
func (im *ImageRecord) TimeCount() int { return atLeastOne(im.TemporalPositions) }

// FileIndex returns the absolute file index holding slice s at time t.
func (im *ImageRecord) FileIndex(s, t int) int {
	return im.FileStart + s*im.TimeCount() + t
}

// SliceAndTime is the inverse of FileIndex.
func (im *ImageRecord) SliceAndTime(fileIdx int) (s, t int) {
	local := fileIdx - im.FileStart
	return local / im.TimeCount(), local % im.TimeCount()
}

// UpdateDimensions recomputes the number of non-trivial axes.
func (im *ImageRecord) UpdateDimensions() {
	n := 0
	for _, v := range []int{im.Columns, im.Rows, im.Slices, im.TemporalPositions} {
		if v > 1 {
			n++
		}
	}
	im.Dimensions = n
}

// MaxStoredValue is the largest value a stored sample can hold.
func (im *ImageRecord) MaxStoredValue() float64 {
	bits := im.BitsStored
	if bits <= 0 {
		bits = im.BitsAllocated
	}
	if bits <= 0 {
		bits = 16
	}
	if bits >= 64 {
		return float64(^uint64(0))
	}
	return float64(uint64(1)<<uint(bits) - 1)
}

// IdentityMatrix is the row-major 4x4 identity.
var IdentityMatrix = [16]float64{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 1, 0,
	0, 0, 0, 1,
}

// World returns the world matrix as a gonum matrix.
func (im *ImageRecord) World() *mat.Dense {
	data := make([]float64, 16)
	copy(data, im.WorldMatrix[:])
	return mat.NewDense(4, 4, data)
}

// VoxelToPatient maps voxel indices to patient coordinates.
func (im *ImageRecord) VoxelToPatient(col, row, slice float64) [3]float64 {
	var out mat.VecDense
	out.MulVec(im.World(), mat.NewVecDense(4, []float64{col, row, slice, 1}))
	return [3]float64{out.AtVec(0), out.AtVec(1), out.AtVec(2)}
}

func atLeastOne(v int) int {
	if v < 1 {
		return 1
	}
	return v
}
