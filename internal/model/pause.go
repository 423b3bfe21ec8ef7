package model

import "fmt"

// Location is a position in a source. Lines are 1-indexed and columns are
// 0-indexed, matching source map conventions.
type Location struct {
	SourceID string `json:"sourceId"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.SourceID, l.Line, l.Column)
}

// Breakpoint holds an original location, a generated location, or both
type Breakpoint struct {
	ID                string    `json:"id"`
	Location          *Location `json:"location,omitempty"`
	GeneratedLocation *Location `json:"generatedLocation,omitempty"`
	Condition         string    `json:"condition,omitempty"`
	Loading           bool      `json:"loading,omitempty"`
	Disabled          bool      `json:"disabled,omitempty"`
	Hidden            bool      `json:"hidden,omitempty"`

	Token uint64 `json:"-"`
}

// NewBreakpoint creates a breakpoint with a fresh identity token. The id is
// derived from the original location when present.
func NewBreakpoint(location, generatedLocation *Location) *Breakpoint {
	bp := &Breakpoint{
		Location:          location,
		GeneratedLocation: generatedLocation,
		Token:             NextToken(),
	}
	bp.ID = BreakpointID(bp.primaryLocation())
	return bp
}

// Replace returns a copy of the breakpoint carrying a fresh identity token
func (b *Breakpoint) Replace() *Breakpoint {
	cp := *b
	cp.Token = NextToken()
	return &cp
}

func (b *Breakpoint) primaryLocation() Location {
	if b.Location != nil {
		return *b.Location
	}
	if b.GeneratedLocation != nil {
		return *b.GeneratedLocation
	}
	return Location{}
}

// BreakpointID builds the id used for a breakpoint at loc
func BreakpointID(loc Location) string {
	return loc.String()
}

// Frame is a single entry of a paused call stack
type Frame struct {
	ID                string   `json:"id"`
	DisplayName       string   `json:"displayName,omitempty"`
	Location          Location `json:"location"`
	GeneratedLocation Location `json:"generatedLocation"`
}

// MappedScopes pairs a frame with its original scope chain. Scope is nil
// when no mapping is available.
type MappedScopes struct {
	Frame Frame  `json:"frame"`
	Scope *Scope `json:"scope"`
}
