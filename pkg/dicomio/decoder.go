// Package dicomio wraps per-file DICOM access: the decoder contract, the
// process-wide decode lock and the metadata extractor built on top of it.
//
// Decoders are not assumed to be thread-safe. Every open and every pixel
// decode must run inside WithFile (or WithIndex), which serializes callers on
// a single global mutex. Work on the values copied out of a decoder can run in
// parallel.
package dicomio

import (
	"errors"
	"sync"

	"github.com/suyashkumar/dicom/pkg/tag"
)

var (
	// ErrNotDicom is returned when a file cannot be read as an image file.
	ErrNotDicom = errors.New("not a readable DICOM file")

	// ErrNoPixelData is returned when a file holds no decodable pixels.
	ErrNoPixelData = errors.New("no pixel data")
)

// Decoder exposes one opened file.
type Decoder interface {
	// HasTag reports whether the tag is present.
	HasTag(t tag.Tag) bool

	// StringValue returns the tag value; multiple values are joined by '\'.
	StringValue(t tag.Tag) string

	// RawPixelBuffer returns the native pixel bytes of the first frame.
	RawPixelBuffer() ([]byte, error)
}

// IndexRecord is one directory record of a directory index file.
type IndexRecord struct {
	// Type is the upper-case record type (PATIENT, STUDY, SERIES, IMAGE, ...)
	Type string

	// Values holds the string values of the record's elements
	Values map[tag.Tag]string

	// FileID holds the path components of a referenced file
	FileID []string
}

// Index is a parsed directory index.
type Index struct {
	SOPClassUID string
	Records     []IndexRecord
}

// Opener opens files and directory indexes.
type Opener interface {
	Open(path string) (Decoder, error)
	OpenIndex(path string) (*Index, error)
}

var decodeMu sync.Mutex

// WithFile opens path and runs fn while holding the global decode lock.
// fn must copy out what it needs; the decoder is not valid afterwards.
func WithFile(op Opener, path string, fn func(Decoder) error) error {
	decodeMu.Lock()
	defer decodeMu.Unlock()

	dec, err := op.Open(path)
	if err != nil {
		return err
	}
	return fn(dec)
}

// WithIndex opens a directory index under the global decode lock.
func WithIndex(op Opener, path string) (*Index, error) {
	decodeMu.Lock()
	defer decodeMu.Unlock()
	return op.OpenIndex(path)
}

// ReadPixels opens path and returns its raw pixel buffer.
func ReadPixels(op Opener, path string) ([]byte, error) {
	var buf []byte
	err := WithFile(op, path, func(dec Decoder) error {
		var err error
		buf, err = dec.RawPixelBuffer()
		return err
	})
	return buf, err
}
