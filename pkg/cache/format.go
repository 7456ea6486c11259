// Package cache persists a scanned dataset so that a large directory does
// not have to be scanned again.
//
// File structure:
//
//	Header (24 bytes):
//	  - Magic (4): "MRIV"
//	  - Version (2): 1
//	  - Flags (2): reserved
//	  - Checksum (4): CRC32 of the uncompressed body
//	  - BodyLen (8): length of the uncompressed body
//	  - Reserved (4)
//	Body (compressed with zstd), little-endian:
//	  - source directory, dataset name
//	  - file record count, then every file record
//	  - image record count, then every image record
//	  - grid tables 2D, 2D+T, 3D, 3D+T: bucket count, then per bucket the
//	    size vector, the member count and the member ids
//	  - classification entry count, then (image id, role) pairs, the axis
//	    ordering and the 3D+T and 2D+T velocity encodings
package cache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"mrivolumes/internal/models"
)

const (
	Magic      = "MRIV"
	Version    = 1
	HeaderSize = 24
)

var (
	// ErrBadMagic is returned for files that are not scan caches.
	ErrBadMagic = errors.New("not a scan cache file")

	// ErrChecksum is returned when the body does not match its checksum.
	ErrChecksum = errors.New("scan cache checksum mismatch")

	// ErrCorrupt is returned when the body ends early or holds invalid counts.
	ErrCorrupt = errors.New("scan cache corrupt")
)

// Header is the fixed-size file header.
type Header struct {
	Magic    [4]byte
	Version  uint16
	Flags    uint16
	Checksum uint32
	BodyLen  uint64
	Reserved [4]byte
}

func encodeHeader(h *Header) []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], h.Magic[:])
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint16(buf[6:8], h.Flags)
	binary.LittleEndian.PutUint32(buf[8:12], h.Checksum)
	binary.LittleEndian.PutUint64(buf[12:20], h.BodyLen)
	copy(buf[20:24], h.Reserved[:])
	return buf
}

func decodeHeader(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("%w: header too short", ErrBadMagic)
	}
	h := &Header{}
	copy(h.Magic[:], buf[0:4])
	if string(h.Magic[:]) != Magic {
		return nil, fmt.Errorf("%w: magic %q", ErrBadMagic, h.Magic)
	}
	h.Version = binary.LittleEndian.Uint16(buf[4:6])
	if h.Version != Version {
		return nil, fmt.Errorf("unsupported scan cache version: %d", h.Version)
	}
	h.Flags = binary.LittleEndian.Uint16(buf[6:8])
	h.Checksum = binary.LittleEndian.Uint32(buf[8:12])
	h.BodyLen = binary.LittleEndian.Uint64(buf[12:20])
	copy(h.Reserved[:], buf[20:24])
	return h, nil
}

// Save writes ds to path. level selects the zstd level, 1 (fastest) to 4
// (best compression). The file is replaced atomically.
func Save(path string, ds *models.Dataset, level int) error {
	body := encodeDataset(ds)

	header := Header{
		Version:  Version,
		Checksum: crc32.ChecksumIEEE(body),
		BodyLen:  uint64(len(body)),
	}
	copy(header.Magic[:], Magic)

	if level < int(zstd.SpeedFastest) || level > int(zstd.SpeedBestCompression) {
		level = int(zstd.SpeedDefault)
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevel(level)))
	if err != nil {
		return fmt.Errorf("create encoder: %w", err)
	}
	defer encoder.Close()
	compressed := encoder.EncodeAll(body, nil)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := f.Write(encodeHeader(&header)); err != nil {
		f.Close()
		return err
	}
	if _, err := f.Write(compressed); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load reads a dataset written by Save.
func Load(path string) (*models.Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	header, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	defer decoder.Close()

	body, err := decoder.DecodeAll(data[HeaderSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	if uint64(len(body)) != header.BodyLen || crc32.ChecksumIEEE(body) != header.Checksum {
		return nil, ErrChecksum
	}

	ds, err := decodeDataset(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}
