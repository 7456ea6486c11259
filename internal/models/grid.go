package models

import "fmt"

// DimClass is one of the four dimensionality classes.
type DimClass int

const (
	Class2D DimClass = iota
	Class2DT
	Class3D
	Class3DT
)

// DimClasses lists the classes in persistence order.
var DimClasses = []DimClass{Class2D, Class2DT, Class3D, Class3DT}

func (c DimClass) String() string {
	switch c {
	case Class2D:
		return "2D"
	case Class2DT:
		return "2D+T"
	case Class3D:
		return "3D"
	case Class3DT:
		return "3D+T"
	}
	return fmt.Sprintf("DimClass(%d)", int(c))
}

// GridBucket groups image ids sharing an identical size vector.
type GridBucket struct {
	Size   []int
	Images []int
}

// GridTable holds the ordered buckets of every dimensionality class.
// Images with one column or one row have no in-plane grid and belong to
// no bucket, so the buckets may cover fewer ids than the dataset holds.
type GridTable struct {
	Buckets [4][]GridBucket
}

// Class returns the buckets of one class.
func (g *GridTable) Class(c DimClass) []GridBucket {
	return g.Buckets[c]
}

// Find returns the class and bucket index holding the image.
func (g *GridTable) Find(id int) (DimClass, int, bool) {
	for _, c := range DimClasses {
		for b, bucket := range g.Buckets[c] {
			for _, m := range bucket.Images {
				if m == id {
					return c, b, true
				}
			}
		}
	}
	return 0, 0, false
}

// CompareSize orders size vectors lexicographically.
func CompareSize(a, b []int) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}
