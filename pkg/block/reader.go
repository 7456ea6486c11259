// Package block reads rectangular sub-blocks of decoded pixel data from an
// assembled image.
//
// A read is split in two steps: ReadImageBlockRaw fetches the pixel buffers
// of the files a block touches, Interpret turns them into a Volume. Callers
// may keep raw blocks and reinterpret them without touching the decoder.
package block

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"mrivolumes/internal/models"
	"mrivolumes/pkg/dicomio"
)

var (
	// ErrDimensionality is returned when a block spans more axes than the
	// image has.
	ErrDimensionality = errors.New("block has more axes than the image")

	// ErrOutOfRange is returned for unknown images or blocks outside the grid.
	ErrOutOfRange = errors.New("block out of range")
)

// Range is an inclusive index range along one axis.
type Range struct {
	From int
	To   int
}

// Len returns the number of indices covered.
func (r Range) Len() int { return r.To - r.From + 1 }

func (r Range) normalize() Range {
	if r.From > r.To {
		r.From, r.To = r.To, r.From
	}
	return r
}

// Block is an axis-aligned box over columns (X), rows (Y), slices (Z) and
// temporal positions (T).
type Block struct {
	X, Y, Z, T Range
}

// NewBlock builds a block from inclusive bounds; reversed bounds are swapped.
func NewBlock(x0, x1, y0, y1, z0, z1, t0, t1 int) Block {
	return Block{
		X: Range{x0, x1}.normalize(),
		Y: Range{y0, y1}.normalize(),
		Z: Range{z0, z1}.normalize(),
		T: Range{t0, t1}.normalize(),
	}
}

// Full returns the block covering a whole image.
func Full(im *models.ImageRecord) Block {
	return NewBlock(0, im.Columns-1, 0, im.Rows-1, 0, im.SliceCount()-1, 0, im.TimeCount()-1)
}

func (b Block) ranges() [4]Range {
	return [4]Range{b.X, b.Y, b.Z, b.T}
}

// Axes returns the number of axes spanning more than one index.
func (b Block) Axes() int {
	n := 0
	for _, r := range b.ranges() {
		if r.Len() > 1 {
			n++
		}
	}
	return n
}

// Size returns the extents of the non-trivial axes in x, y, z, t order.
func (b Block) Size() []int {
	var size []int
	for _, r := range b.ranges() {
		if r.Len() > 1 {
			size = append(size, r.Len())
		}
	}
	if len(size) == 0 {
		size = []int{1}
	}
	return size
}

// RawBlock holds the pixel buffers of the files a block touches.
type RawBlock struct {
	Image  models.ImageRecord
	Block  Block
	Layout Layout

	// Buffers are indexed (z-Z.From)*T.Len() + (t-T.From); nil marks a
	// file that could not be decoded.
	Buffers [][]byte
}

// Params configures a Reader.
type Params struct {
	Opener  dicomio.Opener
	Log     zerolog.Logger
	Workers int
}

// Reader reads blocks of the images of one dataset.
type Reader struct {
	ds      *models.Dataset
	op      dicomio.Opener
	log     zerolog.Logger
	workers int
}

// NewReader creates a reader over ds.
func NewReader(ds *models.Dataset, params *Params) *Reader {
	workers := params.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Reader{ds: ds, op: params.Opener, log: params.Log, workers: workers}
}

// ReadImage reads a whole image.
func (r *Reader) ReadImage(id int) (*models.Volume, error) {
	im, err := r.image(id)
	if err != nil {
		return nil, err
	}
	return r.ReadImageBlock(id, Full(im))
}

// ReadImageBlock reads a block of an image into a volume whose axes are the
// non-trivial axes of the block in x, y, z, t order.
func (r *Reader) ReadImageBlock(id int, b Block) (*models.Volume, error) {
	raw, err := r.ReadImageBlockRaw(id, b)
	if err != nil {
		return nil, err
	}
	return r.Interpret(raw)
}

// ReadImageBlockRaw validates b and fetches the pixel buffer of every file
// the block touches. Each file is decoded once; failures are logged and
// leave a nil buffer.
func (r *Reader) ReadImageBlockRaw(id int, b Block) (*RawBlock, error) {
	im, err := r.image(id)
	if err != nil {
		return nil, err
	}
	b = NewBlock(b.X.From, b.X.To, b.Y.From, b.Y.To, b.Z.From, b.Z.To, b.T.From, b.T.To)
	if err := check(im, b); err != nil {
		return nil, fmt.Errorf("image %d: %w", id, err)
	}

	raw := &RawBlock{
		Image: *im,
		Block: b,
		Layout: Layout{
			BitsAllocated: im.BitsAllocated,
			BitsStored:    im.BitsStored,
			HighBit:       im.HighBit,
			BigEndian:     im.BigEndian,
		},
		Buffers: make([][]byte, b.Z.Len()*b.T.Len()),
	}

	var g errgroup.Group
	g.SetLimit(r.workers)
	for z := b.Z.From; z <= b.Z.To; z++ {
		for t := b.T.From; t <= b.T.To; t++ {
			slot := (z-b.Z.From)*b.T.Len() + (t - b.T.From)
			path := r.ds.Files[im.FileIndex(z, t)].Path
			g.Go(func() error {
				buf, err := dicomio.ReadPixels(r.op, path)
				if err != nil {
					r.log.Error().Err(err).Str("path", path).Int("image", id).Msg("cannot decode pixels")
					return nil
				}
				raw.Buffers[slot] = buf
				return nil
			})
		}
	}
	_ = g.Wait()
	return raw, nil
}

// Interpret converts the buffers of a raw block into a volume. Voxels of
// missing or short buffers stay zero.
func (r *Reader) Interpret(raw *RawBlock) (*models.Volume, error) {
	b := raw.Block
	im := &raw.Image
	if len(raw.Buffers) != b.Z.Len()*b.T.Len() {
		return nil, fmt.Errorf("raw block holds %d buffers for %d files", len(raw.Buffers), b.Z.Len()*b.T.Len())
	}

	vol := models.NewVolume(b.Size()...)
	nx, ny, nz := b.X.Len(), b.Y.Len(), b.Z.Len()
	spp := im.SamplesPerPixel
	if spp <= 0 {
		spp = 1
	}
	pixels := im.Rows * im.Columns

	var g errgroup.Group
	g.SetLimit(r.workers)
	for slot, buf := range raw.Buffers {
		if buf == nil {
			continue
		}
		g.Go(func() error {
			layout := raw.Layout
			if layout.BitsAllocated <= 0 && pixels > 0 {
				layout.BitsAllocated = len(buf) * 8 / (pixels * spp)
			}
			if len(buf)*8 < pixels*spp*layout.BitsAllocated || layout.BitsAllocated <= 0 {
				r.log.Error().Int("bytes", len(buf)).Int("pixels", pixels).
					Int("bitsAllocated", layout.BitsAllocated).Msg("pixel buffer too short")
				return nil
			}
			lz, lt := slot/b.T.Len(), slot%b.T.Len()
			base := nx * ny * (lz + nz*lt)
			for y := b.Y.From; y <= b.Y.To; y++ {
				row := base + nx*(y-b.Y.From)
				for x := b.X.From; x <= b.X.To; x++ {
					v, _ := layout.Sample(buf, (y*im.Columns+x)*spp)
					vol.Data[row+x-b.X.From] = v
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return vol, nil
}

func (r *Reader) image(id int) (*models.ImageRecord, error) {
	if id < 0 || id >= len(r.ds.Images) {
		return nil, fmt.Errorf("%w: no image %d", ErrOutOfRange, id)
	}
	return &r.ds.Images[id], nil
}

// check verifies that b lies inside the image and does not span more axes
// than the image has.
func check(im *models.ImageRecord, b Block) error {
	probe := *im
	probe.UpdateDimensions()
	if b.Axes() > probe.Dimensions {
		return fmt.Errorf("%w: %d axes requested, image has %d", ErrDimensionality, b.Axes(), probe.Dimensions)
	}
	limits := [4]int{im.Columns, im.Rows, im.SliceCount(), im.TimeCount()}
	for axis, rg := range b.ranges() {
		if rg.From < 0 || rg.To >= limits[axis] {
			return fmt.Errorf("%w: axis %c range [%d, %d] outside [0, %d)", ErrOutOfRange, "xyzt"[axis], rg.From, rg.To, limits[axis])
		}
	}
	return nil
}
