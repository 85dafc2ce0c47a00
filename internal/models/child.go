package models

// Child is a child profile with a running point balance. Points always equal
// the sum of the points of the child's records.
type Child struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Points int    `json:"points"`
}

// ChildInput holds the fields a caller supplies when adding a child
type ChildInput struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// ChildPatch is a partial child update. Nil fields keep their current value.
type ChildPatch struct {
	Name   *string `json:"name,omitempty"`
	Avatar *string `json:"avatar,omitempty"`
	Points *int    `json:"points,omitempty"`
}

// Apply returns c with the patch's non-nil fields set
func (p ChildPatch) Apply(c Child) Child {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Avatar != nil {
		c.Avatar = *p.Avatar
	}
	if p.Points != nil {
		c.Points = *p.Points
	}
	return c
}
