package block

import (
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"mrivolumes/internal/models"
	"mrivolumes/pkg/dicomio"
)

func value(x, y, z, t int) uint64 {
	return uint64(1000*t + 100*z + 10*y + x)
}

// newDataset builds one 16-bit image whose voxels encode their coordinates.
func newDataset(t *testing.T, cols, rows, slices, temporal int) (*models.Dataset, *dicomio.MemoryOpener) {
	t.Helper()
	op := dicomio.NewMemoryOpener()
	ds := models.NewDataset("/data")
	im := models.ImageRecord{
		FileStart:         0,
		FileEnd:           slices * temporal,
		Rows:              rows,
		Columns:           cols,
		Slices:            slices,
		TemporalPositions: temporal,
		SamplesPerPixel:   1,
		BitsAllocated:     16,
		BitsStored:        16,
		HighBit:           15,
	}
	im.UpdateDimensions()
	for z := 0; z < slices; z++ {
		for tt := 0; tt < temporal; tt++ {
			path := fmt.Sprintf("/data/IM_%d_%d", z, tt)
			ds.Files = append(ds.Files, models.FileRecord{Path: path})
			buf := make([]byte, rows*cols*2)
			for y := 0; y < rows; y++ {
				for x := 0; x < cols; x++ {
					binary.LittleEndian.PutUint16(buf[2*(y*cols+x):], uint16(value(x, y, z, tt)))
				}
			}
			op.Add(path, &dicomio.MemoryFile{Pixels: buf})
		}
	}
	ds.Images = append(ds.Images, im)
	return ds, op
}

func newReader(ds *models.Dataset, op dicomio.Opener) *Reader {
	return NewReader(ds, &Params{Opener: op, Log: zerolog.Nop(), Workers: 4})
}

func TestReadImage(t *testing.T) {
	ds, op := newDataset(t, 3, 2, 2, 3)
	r := newReader(ds, op)

	vol, err := r.ReadImage(0)
	if err != nil {
		t.Fatalf("ReadImage: %v", err)
	}
	if len(vol.Size) != 4 || vol.Size[0] != 3 || vol.Size[1] != 2 || vol.Size[2] != 2 || vol.Size[3] != 3 {
		t.Fatalf("Size = %v", vol.Size)
	}
	for tt := 0; tt < 3; tt++ {
		for z := 0; z < 2; z++ {
			for y := 0; y < 2; y++ {
				for x := 0; x < 3; x++ {
					if got := vol.At(x, y, z, tt); got != value(x, y, z, tt) {
						t.Fatalf("voxel (%d,%d,%d,%d) = %d, want %d", x, y, z, tt, got, value(x, y, z, tt))
					}
				}
			}
		}
	}
	if op.PixelReads() != 6 {
		t.Errorf("decoded %d buffers, want one per file (6)", op.PixelReads())
	}
}

func TestReadImageBlockTimeSeries(t *testing.T) {
	ds, op := newDataset(t, 3, 2, 2, 4)
	r := newReader(ds, op)

	full, err := r.ReadImage(0)
	if err != nil {
		t.Fatalf("ReadImage: %v", err)
	}
	series, err := r.ReadImageBlock(0, NewBlock(0, 0, 0, 0, 1, 1, 1, 3))
	if err != nil {
		t.Fatalf("ReadImageBlock: %v", err)
	}
	if len(series.Size) != 1 || series.Size[0] != 3 {
		t.Fatalf("Size = %v, want [3]", series.Size)
	}
	for i := 0; i < 3; i++ {
		if got, want := series.At(i), full.At(0, 0, 1, i+1); got != want {
			t.Errorf("t=%d: %d, want %d", i+1, got, want)
		}
	}
}

func TestReadImageBlockSwapsReversedRanges(t *testing.T) {
	ds, op := newDataset(t, 4, 3, 2, 2)
	r := newReader(ds, op)

	fwd, err := r.ReadImageBlock(0, NewBlock(1, 3, 0, 2, 0, 1, 1, 1))
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	rev, err := r.ReadImageBlock(0, Block{X: Range{3, 1}, Y: Range{2, 0}, Z: Range{1, 0}, T: Range{1, 1}})
	if err != nil {
		t.Fatalf("reversed: %v", err)
	}
	if len(fwd.Data) != len(rev.Data) || len(fwd.Data) != 3*3*2 {
		t.Fatalf("sizes %v and %v", fwd.Size, rev.Size)
	}
	for i := range fwd.Data {
		if fwd.Data[i] != rev.Data[i] {
			t.Fatalf("voxel %d: %d vs %d", i, fwd.Data[i], rev.Data[i])
		}
	}
	if got := fwd.At(0, 0, 1); got != value(1, 0, 1, 1) {
		t.Errorf("block origin = %d, want %d", got, value(1, 0, 1, 1))
	}
}

func TestReadImageBlockErrors(t *testing.T) {
	ds, op := newDataset(t, 3, 2, 1, 1)
	r := newReader(ds, op)

	tests := []struct {
		name string
		id   int
		b    Block
		want error
	}{
		{"too many axes", 0, NewBlock(0, 2, 0, 1, 0, 0, 0, 1), ErrDimensionality},
		{"x outside grid", 0, NewBlock(0, 5, 0, 1, 0, 0, 0, 0), ErrOutOfRange},
		{"negative y", 0, NewBlock(0, 1, -1, 0, 0, 0, 0, 0), ErrOutOfRange},
		{"unknown image", 3, NewBlock(0, 0, 0, 0, 0, 0, 0, 0), ErrOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.ReadImageBlock(tt.id, tt.b)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeFailureLeavesZeros(t *testing.T) {
	ds, op := newDataset(t, 2, 2, 2, 1)
	op.Add(ds.Files[1].Path, &dicomio.MemoryFile{PixelErr: errors.New("corrupt")})
	r := newReader(ds, op)

	vol, err := r.ReadImage(0)
	if err != nil {
		t.Fatalf("ReadImage: %v", err)
	}
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			if got := vol.At(x, y, 0); got != value(x, y, 0, 0) {
				t.Errorf("slice 0 voxel = %d, want %d", got, value(x, y, 0, 0))
			}
			if got := vol.At(x, y, 1); got != 0 {
				t.Errorf("failed slice voxel = %d, want 0", got)
			}
		}
	}
}

func TestInterpretRawBlockAgain(t *testing.T) {
	ds, op := newDataset(t, 2, 2, 1, 2)
	r := newReader(ds, op)

	raw, err := r.ReadImageBlockRaw(0, Full(&ds.Images[0]))
	if err != nil {
		t.Fatalf("ReadImageBlockRaw: %v", err)
	}
	reads := op.PixelReads()

	// keep only the low byte of every sample
	raw.Layout.BitsStored = 8
	raw.Layout.HighBit = 7
	vol, err := r.Interpret(raw)
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if got, want := vol.At(1, 1, 1), value(1, 1, 0, 1)&0xFF; got != want {
		t.Errorf("masked voxel = %d, want %d", got, want)
	}
	if op.PixelReads() != reads {
		t.Error("Interpret touched the decoder")
	}
}

func TestMultiSampleKeepsFirstSample(t *testing.T) {
	op := dicomio.NewMemoryOpener()
	ds := models.NewDataset("/rgb")
	ds.Files = []models.FileRecord{{Path: "/rgb/1"}}
	ds.Images = []models.ImageRecord{{
		FileEnd: 1, Rows: 1, Columns: 2, Slices: 1, TemporalPositions: 1,
		SamplesPerPixel: 3, BitsAllocated: 8, BitsStored: 8, HighBit: 7,
	}}
	op.Add("/rgb/1", &dicomio.MemoryFile{Pixels: []byte{10, 20, 30, 40, 50, 60}})

	vol, err := newReader(ds, op).ReadImage(0)
	if err != nil {
		t.Fatalf("ReadImage: %v", err)
	}
	if vol.At(0) != 10 || vol.At(1) != 40 {
		t.Errorf("samples = %v, want [10 40]", vol.Data)
	}
}

func TestLayoutSample(t *testing.T) {
	tests := []struct {
		name   string
		layout Layout
		buf    []byte
		index  int
		want   uint64
	}{
		{"8-bit", Layout{BitsAllocated: 8, BitsStored: 8, HighBit: 7}, []byte{1, 200}, 1, 200},
		{"16-bit little endian", Layout{BitsAllocated: 16, BitsStored: 16, HighBit: 15}, []byte{0x34, 0x12}, 0, 0x1234},
		{"16-bit big endian", Layout{BitsAllocated: 16, BitsStored: 16, HighBit: 15, BigEndian: true}, []byte{0x12, 0x34}, 0, 0x1234},
		{"12 of 16 bits", Layout{BitsAllocated: 16, BitsStored: 12, HighBit: 11}, []byte{0x23, 0xF1}, 0, 0x123},
		{"12 of 16 bits high", Layout{BitsAllocated: 16, BitsStored: 12, HighBit: 15}, []byte{0x30, 0x12}, 0, 0x123},
		{"32-bit", Layout{BitsAllocated: 32}, []byte{0, 0, 0, 0, 1, 0, 0, 0x80}, 1, 0x80000001},
		{"64-bit big endian", Layout{BitsAllocated: 64, BigEndian: true}, []byte{0, 0, 0, 0, 0, 0, 1, 0}, 0, 256},
		{"packed 12-bit first", Layout{BitsAllocated: 12, BitsStored: 12, HighBit: 11}, []byte{0xBC, 0x3A, 0x12}, 0, 0xABC},
		{"packed 12-bit second", Layout{BitsAllocated: 12, BitsStored: 12, HighBit: 11}, []byte{0xBC, 0x3A, 0x12}, 1, 0x123},
		{"packed 12-bit big endian", Layout{BitsAllocated: 12, BitsStored: 12, HighBit: 11, BigEndian: true}, []byte{0xAB, 0xC1, 0x23}, 1, 0x123},
		{"packed 1-bit", Layout{BitsAllocated: 1, BitsStored: 1}, []byte{0x04}, 2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.layout.Sample(tt.buf, tt.index)
			if !ok {
				t.Fatal("Sample reported a short buffer")
			}
			if got != tt.want {
				t.Errorf("Sample = %#x, want %#x", got, tt.want)
			}
		})
	}

	if _, ok := (Layout{BitsAllocated: 16}).Sample([]byte{1}, 0); ok {
		t.Error("Sample accepted a short buffer")
	}
	if _, ok := (Layout{BitsAllocated: 12}).Sample([]byte{1, 2}, 1); ok {
		t.Error("packed Sample accepted a short buffer")
	}
}
