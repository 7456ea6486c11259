package models

// Volume is an N-dimensional block of unsigned samples read from an image.
// Axes appear in (x, y, z, t) order with trivial axes dropped; x varies
// fastest in Data.
type Volume struct {
	// Size holds the extent of every retained axis
	Size []int

	// Data holds the samples in x-fastest order
	Data []uint64
}

// NewVolume allocates a zeroed volume of the given size.
func NewVolume(size ...int) *Volume {
	n := 1
	for _, s := range size {
		n *= s
	}
	dims := make([]int, len(size))
	copy(dims, size)
	return &Volume{Size: dims, Data: make([]uint64, n)}
}

// Dims returns the number of axes.
func (v *Volume) Dims() int { return len(v.Size) }

// Len returns the number of samples.
func (v *Volume) Len() int { return len(v.Data) }

// Offset returns the linear index of the given per-axis position.
func (v *Volume) Offset(idx ...int) int {
	off, stride := 0, 1
	for a, i := range idx {
		off += i * stride
		stride *= v.Size[a]
	}
	return off
}

// At returns the sample at the given per-axis position.
func (v *Volume) At(idx ...int) uint64 {
	return v.Data[v.Offset(idx...)]
}

// Set stores a sample at the given per-axis position.
func (v *Volume) Set(val uint64, idx ...int) {
	v.Data[v.Offset(idx...)] = val
}
