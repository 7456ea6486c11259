package dicomio

import (
	"errors"
	"fmt"

	jpeglossless "github.com/cocosip/go-dicom-codec/jpeg/lossless"
	jpegls "github.com/cocosip/go-dicom-codec/jpegls/lossless"
	jpegnear "github.com/cocosip/go-dicom-codec/jpegls/nearlossless"
)

// Encapsulated transfer syntaxes with a decoder.
const (
	JPEGLosslessUID       = "1.2.840.10008.1.2.4.57"
	JPEGLosslessSV1UID    = "1.2.840.10008.1.2.4.70"
	JPEGLSLosslessUID     = "1.2.840.10008.1.2.4.80"
	JPEGLSNearLosslessUID = "1.2.840.10008.1.2.4.81"
)

// ErrUnsupportedSyntax is returned for compressed pixel data without a decoder.
var ErrUnsupportedSyntax = errors.New("unsupported encapsulated transfer syntax")

// DecodeFrame decompresses one encapsulated frame into little-endian samples,
// one byte per sample up to 8 bits and two bytes above.
func DecodeFrame(syntax string, data []byte) ([]byte, error) {
	var (
		pixels []byte
		err    error
	)
	switch syntax {
	case JPEGLosslessUID, JPEGLosslessSV1UID:
		pixels, _, _, _, _, err = jpeglossless.Decode(data)
	case JPEGLSLosslessUID:
		pixels, _, _, _, _, err = jpegls.Decode(data)
	case JPEGLSNearLosslessUID:
		pixels, _, _, _, _, _, err = jpegnear.Decode(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSyntax, syntax)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s frame: %w", syntax, err)
	}
	return pixels, nil
}
