// Package visualization exports axis-aligned slices of an image volume as
// JPEG files for quick inspection.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"

	"mrivolumes/internal/models"
	"mrivolumes/pkg/block"
)

// BlockReader reads blocks of dataset images.
type BlockReader interface {
	ReadImageBlock(id int, b block.Block) (*models.Volume, error)
}

// Viewer holds one temporal frame of an image as a width x height x depth
// grid, x fastest.
type Viewer struct {
	data []uint64

	// dimensions of the volume
	width  int
	height int
	depth  int

	// peak is the largest sample, mapped to white
	peak uint64
}

// NewViewer wraps samples laid out x fastest, then y, then z.
func NewViewer(data []uint64, width, height, depth int) (*Viewer, error) {
	if width <= 0 || height <= 0 || depth <= 0 {
		return nil, fmt.Errorf("invalid volume size %dx%dx%d", width, height, depth)
	}
	if len(data) != width*height*depth {
		return nil, fmt.Errorf("volume holds %d samples, want %d", len(data), width*height*depth)
	}
	v := &Viewer{data: data, width: width, height: height, depth: depth}
	for _, s := range data {
		if s > v.peak {
			v.peak = s
		}
	}
	return v, nil
}

// FromImage reads temporal frame t of an image into a viewer.
func FromImage(r BlockReader, im *models.ImageRecord, id, t int) (*Viewer, error) {
	if t < 0 || t >= im.TimeCount() {
		return nil, fmt.Errorf("frame %d outside [0, %d)", t, im.TimeCount())
	}
	b := block.NewBlock(0, im.Columns-1, 0, im.Rows-1, 0, im.SliceCount()-1, t, t)
	vol, err := r.ReadImageBlock(id, b)
	if err != nil {
		return nil, fmt.Errorf("read image %d frame %d: %w", id, t, err)
	}
	return NewViewer(vol.Data, im.Columns, im.Rows, im.SliceCount())
}

func (v *Viewer) gray(idx int) color.Gray16 {
	if v.peak == 0 {
		return color.Gray16{}
	}
	return color.Gray16{Y: uint16(v.data[idx] * 65535 / v.peak)}
}

// ExtractSlice extracts a 2D slice through the volume perpendicular to axis.
func (v *Viewer) ExtractSlice(axis string, position int) (*image.Gray16, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	var img *image.Gray16
	switch axis {
	case "x", "X":
		if position >= v.width {
			return nil, fmt.Errorf("position %d exceeds width %d", position, v.width)
		}
		img = image.NewGray16(image.Rect(0, 0, v.depth, v.height))
		for y := 0; y < v.height; y++ {
			for z := 0; z < v.depth; z++ {
				img.SetGray16(z, y, v.gray(z*v.width*v.height+y*v.width+position))
			}
		}

	case "y", "Y":
		if position >= v.height {
			return nil, fmt.Errorf("position %d exceeds height %d", position, v.height)
		}
		img = image.NewGray16(image.Rect(0, 0, v.width, v.depth))
		for z := 0; z < v.depth; z++ {
			for x := 0; x < v.width; x++ {
				img.SetGray16(x, z, v.gray(z*v.width*v.height+position*v.width+x))
			}
		}

	case "z", "Z":
		if position >= v.depth {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, v.depth)
		}
		img = image.NewGray16(image.Rect(0, 0, v.width, v.height))
		for y := 0; y < v.height; y++ {
			for x := 0; x < v.width; x++ {
				img.SetGray16(x, y, v.gray(position*v.width*v.height+y*v.width+x))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}
	return img, nil
}

// SaveSlice saves an extracted slice as a JPEG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(file, img, &jpeg.Options{Quality: 90}); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// SaveSliceSequence writes every slice along axis to outputDir and returns
// the number of files written.
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) (int, error) {
	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.width
	case "y", "Y":
		maxPos = v.height
	case "z", "Z":
		maxPos = v.depth
	default:
		return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return 0, err
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return pos, err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return pos, err
		}
	}
	return maxPos, nil
}
