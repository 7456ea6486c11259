package dicomio

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// DiskOpener reads files from disk with github.com/suyashkumar/dicom.
// Metadata is parsed without pixel data; pixels are decoded on demand.
type DiskOpener struct{}

// Open parses the metadata of a file.
func (DiskOpener) Open(path string) (Decoder, error) {
	ds, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotDicom, path, err)
	}
	return &diskDecoder{path: path, ds: ds}, nil
}

// OpenIndex parses a DICOMDIR file into its directory records.
func (DiskOpener) OpenIndex(path string) (*Index, error) {
	ds, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotDicom, path, err)
	}

	idx := &Index{}
	if el, err := ds.FindElementByTag(TagMediaStorageSOPClassUID); err == nil {
		idx.SOPClassUID = elementString(el)
	}

	seq, err := ds.FindElementByTag(TagDirectoryRecordSequence)
	if err != nil {
		return idx, nil
	}
	if seq.Value.ValueType() != dicom.Sequences {
		return nil, fmt.Errorf("directory record sequence has value type %v", seq.Value.ValueType())
	}
	items, ok := seq.Value.GetValue().([]*dicom.SequenceItemValue)
	if !ok {
		return nil, fmt.Errorf("unexpected directory record sequence value %T", seq.Value.GetValue())
	}

	for _, item := range items {
		elems, ok := item.GetValue().([]*dicom.Element)
		if !ok {
			continue
		}
		rec := IndexRecord{Values: make(map[tag.Tag]string, len(elems))}
		for _, el := range elems {
			switch el.Tag {
			case TagDirectoryRecordType:
				rec.Type = strings.ToUpper(strings.TrimSpace(elementString(el)))
			case TagReferencedFileID:
				if el.Value.ValueType() == dicom.Strings {
					for _, part := range dicom.MustGetStrings(el.Value) {
						rec.FileID = append(rec.FileID, strings.TrimSpace(part))
					}
				}
			default:
				rec.Values[el.Tag] = elementString(el)
			}
		}
		idx.Records = append(idx.Records, rec)
	}
	return idx, nil
}

type diskDecoder struct {
	path string
	ds   dicom.Dataset
}

func (d *diskDecoder) HasTag(t tag.Tag) bool {
	_, err := d.ds.FindElementByTag(t)
	return err == nil
}

func (d *diskDecoder) StringValue(t tag.Tag) string {
	el, err := d.ds.FindElementByTag(t)
	if err != nil {
		return ""
	}
	return elementString(el)
}

// RawPixelBuffer re-parses the file with pixel data and serializes the first
// native frame in the byte order declared by the transfer syntax. Compressed
// frames are decoded with DecodeFrame.
func (d *diskDecoder) RawPixelBuffer() ([]byte, error) {
	ds, err := dicom.ParseFile(d.path, nil)
	if err != nil {
		return nil, fmt.Errorf("parse pixels of %s: %w", d.path, err)
	}
	el, err := ds.FindElementByTag(TagPixelData)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.path, ErrNoPixelData)
	}
	info := dicom.MustGetPixelDataInfo(el.Value)
	if len(info.Frames) == 0 {
		return nil, fmt.Errorf("%s: %w", d.path, ErrNoPixelData)
	}
	if info.IsEncapsulated {
		ef, err := info.Frames[0].GetEncapsulatedFrame()
		if err != nil {
			return nil, fmt.Errorf("%s: encapsulated frame: %w", d.path, err)
		}
		pixels, err := DecodeFrame(d.StringValue(TagTransferSyntaxUID), ef.Data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.path, err)
		}
		return pixels, nil
	}
	nf, err := info.Frames[0].GetNativeFrame()
	if err != nil {
		return nil, fmt.Errorf("%s: native frame: %w", d.path, err)
	}

	rows, cols := nf.Rows(), nf.Cols()
	spp := nf.SamplesPerPixel()
	bytesPer := (nf.BitsPerSample() + 7) / 8
	if bytesPer == 0 {
		bytesPer = 1
	}
	bigEndian := d.StringValue(TagTransferSyntaxUID) == ExplicitVRBigEndianUID
	out := make([]byte, rows*cols*spp*bytesPer)
	var scratch [8]byte
	off := 0
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			px, err := nf.GetPixel(x, y)
			if err != nil {
				return nil, fmt.Errorf("%s: pixel (%d,%d): %w", d.path, x, y, err)
			}
			for _, s := range px {
				if bigEndian {
					binary.BigEndian.PutUint64(scratch[:], uint64(s))
					copy(out[off:off+bytesPer], scratch[8-bytesPer:])
				} else {
					binary.LittleEndian.PutUint64(scratch[:], uint64(s))
					copy(out[off:off+bytesPer], scratch[:bytesPer])
				}
				off += bytesPer
			}
		}
	}
	return out, nil
}

// elementString renders any scalar element as a '\'-joined string.
func elementString(el *dicom.Element) string {
	switch el.Value.ValueType() {
	case dicom.Strings:
		return strings.TrimSpace(strings.Join(dicom.MustGetStrings(el.Value), `\`))
	case dicom.Ints:
		ints := dicom.MustGetInts(el.Value)
		parts := make([]string, len(ints))
		for i, v := range ints {
			parts[i] = strconv.Itoa(v)
		}
		return strings.Join(parts, `\`)
	case dicom.Floats:
		floats, _ := el.Value.GetValue().([]float64)
		parts := make([]string, len(floats))
		for i, v := range floats {
			parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		return strings.Join(parts, `\`)
	case dicom.Bytes:
		raw, _ := el.Value.GetValue().([]byte)
		return strings.Trim(string(raw), "\x00 ")
	}
	return ""
}
