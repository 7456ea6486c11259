package scan

import (
	"github.com/suyashkumar/dicom/pkg/tag"
	"golang.org/x/sync/errgroup"

	"mrivolumes/internal/models"
	"mrivolumes/pkg/dicomio"
)

var sliceSpacingChain = []dicomio.FloatResolver{
	positive(dicomio.FloatTag(dicomio.TagSpacingBetweenSlices)),
	positive(dicomio.FloatTag(dicomio.TagSliceThickness)),
}

func positive(r dicomio.FloatResolver) dicomio.FloatResolver {
	return func(dec dicomio.Decoder) (float64, bool) {
		v, ok := r(dec)
		return v, ok && v > 0
	}
}

// Aggregate completes every image record from the files in its range and
// derives the world matrix. Images are processed in parallel; their file
// ranges are disjoint, so each worker reorders only its own files.
func (s *Scanner) Aggregate(files []models.FileRecord, images []models.ImageRecord) {
	s.progress.EmitTask(len(images), "aggregating image info")
	defer s.progress.SetFinished()

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i := range images {
		g.Go(func() error {
			s.aggregateImage(files, &images[i])
			s.progress.Increment(1)
			return nil
		})
	}
	_ = g.Wait()
}

// accumulator tracks which fields were already set by an earlier file.
type accumulator struct {
	haveOrientation bool
	haveSpacing     bool
	havePixelRep    bool
	haveEndian      bool
	nominal         float64
	heartRate       float64
}

func (s *Scanner) aggregateImage(files []models.FileRecord, im *models.ImageRecord) {
	run := files[im.FileStart:im.FileEnd]

	// identifiers come from the file records so split suffixes survive
	first := &run[0]
	im.StudyInstanceUID = first.StudyInstanceUID
	im.SeriesInstanceUID = first.SeriesInstanceUID
	im.SequenceName = first.SequenceName
	im.ProtocolName = first.ProtocolName
	im.StudyDescription = first.StudyDescription
	im.SeriesDescription = first.SeriesDescription
	im.ImageType = first.ImageType

	var acc accumulator
	for i := range run {
		err := dicomio.WithFile(s.op, run[i].Path, func(dec dicomio.Decoder) error {
			acc.collect(dec, im)
			return nil
		})
		if err != nil {
			s.log.Debug().Err(err).Str("path", run[i].Path).Msg("cannot reread file")
		}
	}

	im.UpdateDimensions()

	times := make([]float64, 0, len(run))
	for i := range run {
		if run[i].HasAcquisitionTime {
			times = append(times, run[i].AcquisitionTime)
		}
	}
	im.TemporalResolution = temporalResolution(acc.nominal, acc.heartRate, im.TemporalPositions, times)

	anchor, normal, reslice := buildWorldMatrix(im, run, acc.haveOrientation)
	if reslice {
		resliceLocations(run, anchor, normal)
	}
}

// collect copies every still-missing field out of one file.
func (acc *accumulator) collect(dec dicomio.Decoder, im *models.ImageRecord) {
	setString(&im.PatientName, dicomio.Str(dec, dicomio.TagPatientName))
	setString(&im.PatientID, dicomio.Str(dec, dicomio.TagPatientID))
	setString(&im.Modality, dicomio.Str(dec, dicomio.TagModality))
	setString(&im.Manufacturer, dicomio.Str(dec, dicomio.TagManufacturer))
	setString(&im.StudyInstanceUID, dicomio.Str(dec, dicomio.TagStudyInstanceUID))
	setString(&im.SeriesInstanceUID, dicomio.Str(dec, dicomio.TagSeriesInstanceUID))
	setString(&im.StudyDescription, dicomio.Str(dec, dicomio.TagStudyDescription))
	setString(&im.SeriesDescription, dicomio.Str(dec, dicomio.TagSeriesDescription))
	setString(&im.SequenceName, dicomio.Str(dec, dicomio.TagSequenceName))
	setString(&im.ProtocolName, dicomio.Str(dec, dicomio.TagProtocolName))
	setString(&im.ImageType, dicomio.Str(dec, dicomio.TagImageType))

	setInt(&im.Rows, dec, dicomio.TagRows)
	setInt(&im.Columns, dec, dicomio.TagColumns)
	setInt(&im.SamplesPerPixel, dec, dicomio.TagSamplesPerPixel)
	setInt(&im.BitsAllocated, dec, dicomio.TagBitsAllocated)
	setInt(&im.BitsStored, dec, dicomio.TagBitsStored)
	setInt(&im.HighBit, dec, dicomio.TagHighBit)
	setInt(&im.InstanceCount, dec, dicomio.TagImagesInAcquisition)

	if !acc.havePixelRep {
		if v, ok := dicomio.Int(dec, dicomio.TagPixelRepresentation); ok {
			im.PixelRepresentation = v
			acc.havePixelRep = true
		}
	}
	if !acc.haveEndian && dec.HasTag(dicomio.TagTransferSyntaxUID) {
		im.BigEndian = dicomio.Str(dec, dicomio.TagTransferSyntaxUID) == dicomio.ExplicitVRBigEndianUID
		acc.haveEndian = true
	}
	if !acc.haveSpacing {
		if v, ok := dicomio.Floats(dec, dicomio.TagPixelSpacing); ok && len(v) >= 2 && v[0] > 0 && v[1] > 0 {
			im.RowSpacing, im.ColumnSpacing = v[0], v[1]
			acc.haveSpacing = true
		}
	}
	if im.SliceSpacing <= 0 {
		if v, ok := dicomio.ResolveFloat(dec, sliceSpacingChain); ok {
			im.SliceSpacing = v
		}
	}
	if !acc.haveOrientation {
		if row, col, ok := dicomio.Orientation(dec); ok {
			im.RowOrientation, im.ColumnOrientation = row, col
			acc.haveOrientation = true
		}
	}
	if acc.nominal <= 0 {
		if v, ok := dicomio.Float(dec, dicomio.TagNominalInterval); ok && v > 0 {
			acc.nominal = v
		}
	}
	if acc.heartRate <= 0 {
		if v, ok := dicomio.Float(dec, dicomio.TagHeartRate); ok && v > 0 {
			acc.heartRate = v
		}
	}
}

func setString(dst *string, v string) {
	if *dst == "" && v != "" {
		*dst = v
	}
}

func setInt(dst *int, dec dicomio.Decoder, t tag.Tag) {
	if *dst != 0 {
		return
	}
	if v, ok := dicomio.Int(dec, t); ok {
		*dst = v
	}
}
