package model

import (
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// originalMarker separates a generated source id from the hash of an
// original source url inside an original source id.
const originalMarker = "/originalSource"

var tokenCounter atomic.Uint64

// NextToken returns a process-wide unique identity token. Tokens are never 0.
func NextToken() uint64 {
	return tokenCounter.Add(1)
}

// Source represents a script known to the debugger, either generated
// (actually executed) or original (recovered through a source map)
type Source struct {
	ID              string `json:"id"`
	URL             string `json:"url,omitempty"`
	IsWasm          bool   `json:"isWasm,omitempty"`
	IsPrettyPrinted bool   `json:"isPrettyPrinted,omitempty"`

	// Token identifies this exact value. Replacing a source assigns a new one.
	Token uint64 `json:"-"`
}

// NewSource creates a source with a fresh identity token
func NewSource(id, url string) *Source {
	return &Source{ID: id, URL: url, Token: NextToken()}
}

// IsGenerated reports whether the source is a generated artifact
func (s *Source) IsGenerated() bool {
	return IsGeneratedID(s.ID)
}

// Replace returns a copy of the source carrying a fresh identity token
func (s *Source) Replace() *Source {
	cp := *s
	cp.Token = NextToken()
	return &cp
}

// IsOriginalID reports whether id names an original source
func IsOriginalID(id string) bool {
	return strings.Contains(id, originalMarker)
}

// IsGeneratedID reports whether id names a generated source
func IsGeneratedID(id string) bool {
	return !IsOriginalID(id)
}

// OriginalID derives the id of an original source from the generated source
// it was mapped from and its url
func OriginalID(generatedID, url string) string {
	return generatedID + originalMarker + "-" + strconv.FormatUint(xxhash.Sum64String(url), 16)
}

// GeneratedID returns the generated source id an original id was derived
// from. Generated ids are returned unchanged.
func GeneratedID(id string) string {
	if i := strings.Index(id, originalMarker); i >= 0 {
		return id[:i]
	}
	return id
}
