package dicomio

import (
	"fmt"
	"sync"

	"github.com/suyashkumar/dicom/pkg/tag"
)

// MemoryFile is an in-memory stand-in for one image file.
type MemoryFile struct {
	Tags   map[tag.Tag]string
	Pixels []byte

	// PixelErr, when set, is returned instead of Pixels.
	PixelErr error
}

// MemoryOpener serves files and indexes from memory. It is used to feed
// synthetic datasets through the pipeline.
type MemoryOpener struct {
	mu         sync.Mutex
	files      map[string]*MemoryFile
	indexes    map[string]*Index
	opens      int
	pixelReads int
}

// NewMemoryOpener returns an empty opener.
func NewMemoryOpener() *MemoryOpener {
	return &MemoryOpener{
		files:   make(map[string]*MemoryFile),
		indexes: make(map[string]*Index),
	}
}

// Add registers a file under path.
func (m *MemoryOpener) Add(path string, f *MemoryFile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.Tags == nil {
		f.Tags = make(map[tag.Tag]string)
	}
	m.files[path] = f
}

// AddIndex registers a directory index under path.
func (m *MemoryOpener) AddIndex(path string, idx *Index) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexes[path] = idx
}

// Open implements Opener.
func (m *MemoryOpener) Open(path string) (Decoder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotDicom, path)
	}
	m.opens++
	return &memoryDecoder{owner: m, file: f}, nil
}

// OpenIndex implements Opener.
func (m *MemoryOpener) OpenIndex(path string) (*Index, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.indexes[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotDicom, path)
	}
	return idx, nil
}

// Opens returns how many times a file was opened.
func (m *MemoryOpener) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

// PixelReads returns how many pixel buffers were decoded.
func (m *MemoryOpener) PixelReads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pixelReads
}

type memoryDecoder struct {
	owner *MemoryOpener
	file  *MemoryFile
}

func (d *memoryDecoder) HasTag(t tag.Tag) bool {
	_, ok := d.file.Tags[t]
	return ok
}

func (d *memoryDecoder) StringValue(t tag.Tag) string {
	return d.file.Tags[t]
}

func (d *memoryDecoder) RawPixelBuffer() ([]byte, error) {
	d.owner.mu.Lock()
	d.owner.pixelReads++
	d.owner.mu.Unlock()
	if d.file.PixelErr != nil {
		return nil, d.file.PixelErr
	}
	if d.file.Pixels == nil {
		return nil, ErrNoPixelData
	}
	return d.file.Pixels, nil
}
