package models

// Dataset is the full result of importing one directory.
type Dataset struct {
	// Directory is the scanned source directory
	Directory string

	// Name is a human readable name of the dataset
	Name string

	Files  []FileRecord
	Images []ImageRecord
	Grid   GridTable
	Flow   *Classification
}

// NewDataset returns an empty dataset for a directory.
func NewDataset(dir string) *Dataset {
	return &Dataset{
		Directory: dir,
		Flow:      NewClassification(),
	}
}

// Empty reports whether no image was assembled.
func (d *Dataset) Empty() bool {
	return len(d.Images) == 0
}

// ImageFiles returns the files of an image.
func (d *Dataset) ImageFiles(id int) []FileRecord {
	im := &d.Images[id]
	return d.Files[im.FileStart:im.FileEnd]
}

// FlowImage resolves the 3D+T flow image encoding an axis (0=X, 1=Y, 2=Z)
// within the bucket of the lowest flow id.
func (d *Dataset) FlowImage(axis int) (int, bool) {
	flows := d.Flow.FlowImages()
	if len(flows) == 0 {
		return 0, false
	}
	class, b, ok := d.Grid.Find(flows[0])
	if !ok || class != Class3DT {
		return 0, false
	}
	return d.Flow.FlowImage(axis, d.Grid.Buckets[class][b].Images)
}
