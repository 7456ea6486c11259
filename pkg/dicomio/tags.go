package dicomio

import "github.com/suyashkumar/dicom/pkg/tag"

// Tags consumed by the scanner. Literal group/element pairs keep private
// tags and standard tags in one place.
var (
	// File meta and directory index
	TagMediaStorageSOPClassUID = tag.Tag{Group: 0x0002, Element: 0x0002}
	TagTransferSyntaxUID       = tag.Tag{Group: 0x0002, Element: 0x0010}
	TagDirectoryRecordSequence = tag.Tag{Group: 0x0004, Element: 0x1220}
	TagDirectoryRecordType     = tag.Tag{Group: 0x0004, Element: 0x1430}
	TagReferencedFileID        = tag.Tag{Group: 0x0004, Element: 0x1500}

	// Identification
	TagImageType         = tag.Tag{Group: 0x0008, Element: 0x0008}
	TagSeriesTime        = tag.Tag{Group: 0x0008, Element: 0x0031}
	TagAcquisitionTime   = tag.Tag{Group: 0x0008, Element: 0x0032}
	TagContentTime       = tag.Tag{Group: 0x0008, Element: 0x0033}
	TagModality          = tag.Tag{Group: 0x0008, Element: 0x0060}
	TagManufacturer      = tag.Tag{Group: 0x0008, Element: 0x0070}
	TagStudyDescription  = tag.Tag{Group: 0x0008, Element: 0x1030}
	TagSeriesDescription = tag.Tag{Group: 0x0008, Element: 0x103E}
	TagPatientName       = tag.Tag{Group: 0x0010, Element: 0x0010}
	TagPatientID         = tag.Tag{Group: 0x0010, Element: 0x0020}

	// Acquisition
	TagSequenceName          = tag.Tag{Group: 0x0018, Element: 0x0024}
	TagSliceThickness        = tag.Tag{Group: 0x0018, Element: 0x0050}
	TagSpacingBetweenSlices  = tag.Tag{Group: 0x0018, Element: 0x0088}
	TagProtocolName          = tag.Tag{Group: 0x0018, Element: 0x1030}
	TagTriggerTime           = tag.Tag{Group: 0x0018, Element: 0x1060}
	TagNominalInterval       = tag.Tag{Group: 0x0018, Element: 0x1062}
	TagHeartRate             = tag.Tag{Group: 0x0018, Element: 0x1088}
	TagCardiacNumberOfImages = tag.Tag{Group: 0x0018, Element: 0x1090}

	// Relationship and geometry
	TagStudyInstanceUID          = tag.Tag{Group: 0x0020, Element: 0x000D}
	TagSeriesInstanceUID         = tag.Tag{Group: 0x0020, Element: 0x000E}
	TagInstanceNumber            = tag.Tag{Group: 0x0020, Element: 0x0013}
	TagImagePositionPatient      = tag.Tag{Group: 0x0020, Element: 0x0032}
	TagImageOrientationPatient   = tag.Tag{Group: 0x0020, Element: 0x0037}
	TagNumberOfTemporalPositions = tag.Tag{Group: 0x0020, Element: 0x0105}
	TagImagesInAcquisition       = tag.Tag{Group: 0x0020, Element: 0x1002}
	TagSliceLocation             = tag.Tag{Group: 0x0020, Element: 0x1041}

	// Pixel module
	TagSamplesPerPixel     = tag.Tag{Group: 0x0028, Element: 0x0002}
	TagNumberOfFrames      = tag.Tag{Group: 0x0028, Element: 0x0008}
	TagRows                = tag.Tag{Group: 0x0028, Element: 0x0010}
	TagColumns             = tag.Tag{Group: 0x0028, Element: 0x0011}
	TagPixelSpacing        = tag.Tag{Group: 0x0028, Element: 0x0030}
	TagBitsAllocated       = tag.Tag{Group: 0x0028, Element: 0x0100}
	TagBitsStored          = tag.Tag{Group: 0x0028, Element: 0x0101}
	TagHighBit             = tag.Tag{Group: 0x0028, Element: 0x0102}
	TagPixelRepresentation = tag.Tag{Group: 0x0028, Element: 0x0103}
	TagNumberOfSlices      = tag.Tag{Group: 0x0054, Element: 0x0081}
	TagPixelData           = tag.Tag{Group: 0x7FE0, Element: 0x0010}

	// Vendor private
	TagPhilipsNumberOfPhases    = tag.Tag{Group: 0x2001, Element: 0x1017}
	TagPhilipsNumberOfSlices    = tag.Tag{Group: 0x2001, Element: 0x1018}
	TagGELocationsInAcquisition = tag.Tag{Group: 0x0021, Element: 0x104F}
)

const (
	// MediaStorageDirectoryUID identifies a DICOMDIR index file.
	MediaStorageDirectoryUID = "1.2.840.10008.1.3.10"

	// ExplicitVRBigEndianUID is the only transfer syntax storing pixels big-endian.
	ExplicitVRBigEndianUID = "1.2.840.10008.1.2.2"
)
