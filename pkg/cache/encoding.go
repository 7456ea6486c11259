package cache

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"mrivolumes/internal/models"
)

// writer appends little-endian fields to a body.
type writer struct {
	buf []byte
}

func (w *writer) u8(v uint8) { w.buf = append(w.buf, v) }

func (w *writer) bool(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *writer) i64(v int) { w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(int64(v))) }

func (w *writer) f64(v float64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(v)) }

func (w *writer) str(s string) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) vec3(v [3]float64) {
	for _, x := range v {
		w.f64(x)
	}
}

func (w *writer) ints(v []int) {
	w.i64(len(v))
	for _, x := range v {
		w.i64(x)
	}
}

// reader consumes fields in the order writer produced them. The first
// failure sticks and every later read returns zero values.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.err = fmt.Errorf("%w: body ends at %d, need %d more bytes", ErrCorrupt, r.off, n)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) bool() bool { return r.u8() != 0 }

func (r *reader) i64() int {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return int(int64(binary.LittleEndian.Uint64(b)))
}

func (r *reader) f64() float64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func (r *reader) str() string {
	n := r.take(4)
	if n == nil {
		return ""
	}
	return string(r.take(int(binary.LittleEndian.Uint32(n))))
}

func (r *reader) vec3() [3]float64 {
	return [3]float64{r.f64(), r.f64(), r.f64()}
}

// count reads an element count and rejects values the rest of the body
// cannot hold, assuming at least minSize bytes per element.
func (r *reader) count(minSize int) int {
	n := r.i64()
	if r.err != nil {
		return 0
	}
	if n < 0 || n > (len(r.buf)-r.off)/minSize {
		r.err = fmt.Errorf("%w: count %d at offset %d", ErrCorrupt, n, r.off)
		return 0
	}
	return n
}

func (r *reader) ints() []int {
	n := r.count(8)
	if n == 0 {
		return nil
	}
	out := make([]int, n)
	for i := range out {
		out[i] = r.i64()
	}
	return out
}

func encodeDataset(ds *models.Dataset) []byte {
	w := &writer{}
	w.str(ds.Directory)
	w.str(ds.Name)

	w.i64(len(ds.Files))
	for i := range ds.Files {
		writeFile(w, &ds.Files[i])
	}

	w.i64(len(ds.Images))
	for i := range ds.Images {
		writeImage(w, &ds.Images[i])
	}

	for _, class := range models.DimClasses {
		buckets := ds.Grid.Class(class)
		w.i64(len(buckets))
		for _, b := range buckets {
			w.ints(b.Size)
			w.ints(b.Images)
		}
	}

	cls := ds.Flow
	if cls == nil {
		cls = models.NewClassification()
	}
	ids := make([]int, 0, len(cls.Roles))
	for id := range cls.Roles {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	w.i64(len(ids))
	for _, id := range ids {
		w.i64(id)
		w.u8(uint8(cls.Roles[id]))
	}
	w.u8(uint8(cls.Ordering))
	w.f64(cls.Venc3DT)
	w.f64(cls.Venc2DT)

	return w.buf
}

func decodeDataset(body []byte) (*models.Dataset, error) {
	r := &reader{buf: body}
	ds := models.NewDataset(r.str())
	ds.Name = r.str()

	if n := r.count(1); n > 0 {
		ds.Files = make([]models.FileRecord, n)
		for i := range ds.Files {
			readFile(r, &ds.Files[i])
		}
	}

	if n := r.count(1); n > 0 {
		ds.Images = make([]models.ImageRecord, n)
		for i := range ds.Images {
			readImage(r, &ds.Images[i])
		}
	}

	for _, class := range models.DimClasses {
		n := r.count(16)
		if n == 0 {
			continue
		}
		buckets := make([]models.GridBucket, n)
		for i := range buckets {
			buckets[i].Size = r.ints()
			buckets[i].Images = r.ints()
		}
		ds.Grid.Buckets[class] = buckets
	}

	n := r.count(9)
	for i := 0; i < n; i++ {
		id := r.i64()
		ds.Flow.Roles[id] = models.Role(r.u8())
	}
	ds.Flow.Ordering = models.AxisOrdering(r.u8())
	ds.Flow.Venc3DT = r.f64()
	ds.Flow.Venc2DT = r.f64()

	if r.err != nil {
		return nil, r.err
	}
	if r.off != len(body) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(body)-r.off)
	}
	for id := range ds.Images {
		im := &ds.Images[id]
		if im.FileStart < 0 || im.FileEnd > len(ds.Files) || im.FileStart > im.FileEnd {
			return nil, fmt.Errorf("%w: image %d range [%d, %d) outside %d files", ErrCorrupt, id, im.FileStart, im.FileEnd, len(ds.Files))
		}
	}
	return ds, nil
}

func writeFile(w *writer, f *models.FileRecord) {
	w.str(f.Path)
	w.i64(f.InstanceNumber)
	w.str(f.StudyInstanceUID)
	w.str(f.SeriesInstanceUID)
	w.str(f.SequenceName)
	w.str(f.ProtocolName)
	w.str(f.StudyDescription)
	w.str(f.SeriesDescription)
	w.str(f.ImageType)
	w.f64(f.SliceLocation)
	w.bool(f.HasSliceLocation)
	w.f64(f.AcquisitionTime)
	w.bool(f.HasAcquisitionTime)
	w.vec3(f.ImagePosition)
	w.bool(f.HasImagePosition)
}

func readFile(r *reader, f *models.FileRecord) {
	f.Path = r.str()
	f.InstanceNumber = r.i64()
	f.StudyInstanceUID = r.str()
	f.SeriesInstanceUID = r.str()
	f.SequenceName = r.str()
	f.ProtocolName = r.str()
	f.StudyDescription = r.str()
	f.SeriesDescription = r.str()
	f.ImageType = r.str()
	f.SliceLocation = r.f64()
	f.HasSliceLocation = r.bool()
	f.AcquisitionTime = r.f64()
	f.HasAcquisitionTime = r.bool()
	f.ImagePosition = r.vec3()
	f.HasImagePosition = r.bool()
}

func writeImage(w *writer, im *models.ImageRecord) {
	for _, v := range []int{
		im.FileStart, im.FileEnd,
		im.Rows, im.Columns, im.Slices, im.TemporalPositions, im.Dimensions,
		im.SamplesPerPixel, im.BitsAllocated, im.BitsStored, im.HighBit, im.PixelRepresentation,
		im.NumberOfFrames, im.InstanceCount,
	} {
		w.i64(v)
	}
	for _, v := range []float64{im.RowSpacing, im.ColumnSpacing, im.SliceSpacing, im.TemporalResolution} {
		w.f64(v)
	}
	w.bool(im.BigEndian)
	for _, s := range []string{
		im.PatientName, im.PatientID, im.StudyInstanceUID, im.StudyDescription,
		im.SeriesInstanceUID, im.SeriesDescription, im.SequenceName, im.ProtocolName,
		im.Modality, im.Manufacturer, im.ImageType,
	} {
		w.str(s)
	}
	w.vec3(im.RowOrientation)
	w.vec3(im.ColumnOrientation)
	for _, v := range im.WorldMatrix {
		w.f64(v)
	}
	w.bool(im.Split)
}

func readImage(r *reader, im *models.ImageRecord) {
	for _, p := range []*int{
		&im.FileStart, &im.FileEnd,
		&im.Rows, &im.Columns, &im.Slices, &im.TemporalPositions, &im.Dimensions,
		&im.SamplesPerPixel, &im.BitsAllocated, &im.BitsStored, &im.HighBit, &im.PixelRepresentation,
		&im.NumberOfFrames, &im.InstanceCount,
	} {
		*p = r.i64()
	}
	for _, p := range []*float64{&im.RowSpacing, &im.ColumnSpacing, &im.SliceSpacing, &im.TemporalResolution} {
		*p = r.f64()
	}
	im.BigEndian = r.bool()
	for _, p := range []*string{
		&im.PatientName, &im.PatientID, &im.StudyInstanceUID, &im.StudyDescription,
		&im.SeriesInstanceUID, &im.SeriesDescription, &im.SequenceName, &im.ProtocolName,
		&im.Modality, &im.Manufacturer, &im.ImageType,
	} {
		*p = r.str()
	}
	im.RowOrientation = r.vec3()
	im.ColumnOrientation = r.vec3()
	for i := range im.WorldMatrix {
		im.WorldMatrix[i] = r.f64()
	}
	im.Split = r.bool()
}
