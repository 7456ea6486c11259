package models

import (
	"fmt"
	"sort"
	"strings"
)

// Role is the semantic role of an image in a flow protocol.
type Role uint8

const (
	RoleNone Role = iota
	RoleFlow
	RoleMagnitude
	RoleAnatomical
	RoleSignalIntensity
)

func (r Role) String() string {
	switch r {
	case RoleFlow:
		return "flow"
	case RoleMagnitude:
		return "magnitude"
	case RoleAnatomical:
		return "anatomical"
	case RoleSignalIntensity:
		return "signal-intensity"
	}
	return "none"
}

// AxisOrdering tells which image of the ascending flow triplet encodes
// which velocity axis.
type AxisOrdering uint8

const (
	OrderXYZ AxisOrdering = iota
	OrderXZY
	OrderYXZ
	OrderYZX
	OrderZXY
	OrderZYX
)

var orderingNames = []string{"XYZ", "XZY", "YXZ", "YZX", "ZXY", "ZYX"}

func (o AxisOrdering) String() string {
	if int(o) < len(orderingNames) {
		return orderingNames[o]
	}
	return fmt.Sprintf("AxisOrdering(%d)", int(o))
}

// ParseAxisOrdering parses names such as "XZY" (case-insensitive).
func ParseAxisOrdering(s string) (AxisOrdering, error) {
	up := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range orderingNames {
		if n == up {
			return AxisOrdering(i), nil
		}
	}
	return OrderXYZ, fmt.Errorf("unknown axis ordering %q", s)
}

// Position returns the index into the ascending triplet holding the given
// axis (0=X, 1=Y, 2=Z).
func (o AxisOrdering) Position(axis int) int {
	name := o.String()
	return strings.IndexByte(name, "XYZ"[axis])
}

// Classification holds the semantic roles assigned to images.
type Classification struct {
	Roles    map[int]Role
	Ordering AxisOrdering

	// Velocity encodings of the 3D+T and 2D+T flow acquisitions
	Venc3DT float64
	Venc2DT float64
}

// NewClassification returns an empty classification.
func NewClassification() *Classification {
	return &Classification{Roles: make(map[int]Role)}
}

func (c *Classification) set(id int, r Role) {
	if c.Roles == nil {
		c.Roles = make(map[int]Role)
	}
	c.Roles[id] = r
}

// Add3DTFlowImage tags a 3D+T image as flow-encoded.
func (c *Classification) Add3DTFlowImage(id int) { c.set(id, RoleFlow) }

// Add2DTFlowImage tags a 2D+T image as flow-encoded.
func (c *Classification) Add2DTFlowImage(id int) { c.set(id, RoleFlow) }

// AddMagnitudeImage tags a magnitude image.
func (c *Classification) AddMagnitudeImage(id int) { c.set(id, RoleMagnitude) }

// AddAnatomicalImage tags an anatomical image.
func (c *Classification) AddAnatomicalImage(id int) { c.set(id, RoleAnatomical) }

// AddSignalIntensityImage tags a signal-intensity image.
func (c *Classification) AddSignalIntensityImage(id int) { c.set(id, RoleSignalIntensity) }

// Role returns the role of an image.
func (c *Classification) Role(id int) Role {
	return c.Roles[id]
}

// ImagesWithRole returns the ids carrying a role in ascending order.
func (c *Classification) ImagesWithRole(r Role) []int {
	var ids []int
	for id, role := range c.Roles {
		if role == r {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// FlowImages returns all flow-tagged ids in ascending order.
func (c *Classification) FlowImages() []int {
	return c.ImagesWithRole(RoleFlow)
}

// FlowImage resolves the image encoding the given axis (0=X, 1=Y, 2=Z)
// among the ascending flow ids restricted to candidates.
func (c *Classification) FlowImage(axis int, candidates []int) (int, bool) {
	var triplet []int
	for _, id := range candidates {
		if c.Roles[id] == RoleFlow {
			triplet = append(triplet, id)
		}
	}
	if len(triplet) != 3 || axis < 0 || axis > 2 {
		return 0, false
	}
	sort.Ints(triplet)
	return triplet[c.Ordering.Position(axis)], true
}

// Reset removes every role and velocity encoding.
func (c *Classification) Reset() {
	c.Roles = make(map[int]Role)
	c.Venc3DT = 0
	c.Venc2DT = 0
}
