package dicomio

import (
	"strings"
)

// VendorStrategy supplies the private-tag fallbacks of one manufacturer for
// the slice and temporal-position counts.
type VendorStrategy struct {
	Name     string
	Slices   []IntResolver
	Temporal []IntResolver
}

var (
	standardSlices = []IntResolver{
		IntTag(TagNumberOfSlices),
	}
	standardTemporal = []IntResolver{
		IntTag(TagNumberOfTemporalPositions),
		IntTag(TagCardiacNumberOfImages),
	}
)

// vendorStrategies is keyed by the upper-case manufacturer prefix.
var vendorStrategies = []VendorStrategy{
	{
		Name:     "PHILIPS",
		Slices:   []IntResolver{IntTag(TagPhilipsNumberOfSlices)},
		Temporal: []IntResolver{IntTag(TagPhilipsNumberOfPhases)},
	},
	{
		Name:   "GE",
		Slices: []IntResolver{IntTag(TagGELocationsInAcquisition)},
	},
	{Name: "SIEMENS"},
}

// StrategyFor returns the strategy matching a manufacturer string. Unknown
// manufacturers get an empty strategy that only uses the standard tags.
func StrategyFor(manufacturer string) VendorStrategy {
	m := strings.ToUpper(strings.TrimSpace(manufacturer))
	for _, s := range vendorStrategies {
		if strings.HasPrefix(m, s.Name) {
			return s
		}
	}
	return VendorStrategy{Name: m}
}

// SliceCount resolves the number of slices from the vendor tag, then the
// standard tags.
func (v VendorStrategy) SliceCount(dec Decoder) (int, bool) {
	if n, ok := ResolveInt(dec, v.Slices); ok {
		return n, true
	}
	return ResolveInt(dec, standardSlices)
}

// TemporalCount resolves the number of temporal positions.
func (v VendorStrategy) TemporalCount(dec Decoder) (int, bool) {
	if n, ok := ResolveInt(dec, v.Temporal); ok {
		return n, true
	}
	return ResolveInt(dec, standardTemporal)
}

// Counts are the dimension hints read from the first file of a run.
type Counts struct {
	Manufacturer      string
	Slices            int
	TemporalPositions int
	NumberOfFrames    int
	InstanceCount     int
}

// ProbeCounts reads dimension hints from one file. Zero means unknown.
func ProbeCounts(op Opener, path string) (Counts, error) {
	var c Counts
	err := WithFile(op, path, func(dec Decoder) error {
		c.Manufacturer = Str(dec, TagManufacturer)
		strategy := StrategyFor(c.Manufacturer)
		c.Slices, _ = strategy.SliceCount(dec)
		c.TemporalPositions, _ = strategy.TemporalCount(dec)
		c.NumberOfFrames, _ = Int(dec, TagNumberOfFrames)
		c.InstanceCount, _ = Int(dec, TagImagesInAcquisition)
		return nil
	})
	return c, err
}
