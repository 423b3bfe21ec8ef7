package sourcemap

import "github.com/yousuf/scopemap-mcp/internal/model"

// StackFrame represents a single stack frame parsed from a generated stack trace
type StackFrame struct {
	// The raw original line from the stack trace
	Raw string
	// Function name (or '<anonymous>' if anonymous)
	FunctionName string
	// Script url as printed by the runtime
	FileName string
	// Line number (1-indexed), nil if not available
	LineNumber *int
	// Column number (1-indexed), nil if not available
	ColumnNumber *int
	// Whether this is a native call
	IsNative bool
}

// GeneratedLocation converts the printed position into a Location in the
// given source. Stack traces print 1-indexed columns.
func (f StackFrame) GeneratedLocation(sourceID string) (model.Location, bool) {
	if f.IsNative || f.LineNumber == nil || f.ColumnNumber == nil {
		return model.Location{}, false
	}
	col := *f.ColumnNumber - 1
	if col < 0 {
		col = 0
	}
	return model.Location{SourceID: sourceID, Line: *f.LineNumber, Column: col}, true
}

// mappedStackFrame represents a mapped stack frame with original source information
type mappedStackFrame struct {
	StackFrame
	OriginalFileName     *string
	OriginalLineNumber   *int
	OriginalColumnNumber *int
	OriginalName         *string
	Mapped               bool
}

// OriginalSource describes an original source listed by a source map
type OriginalSource struct {
	ID  string `json:"id"`
	URL string `json:"url"`
	// Content is the embedded sourcesContent entry, nil when absent
	Content *string `json:"-"`
}

// rawSourceMap mirrors the fields of a version 3 source map that the
// consumer does not expose
type rawSourceMap struct {
	Version        int       `json:"version"`
	File           string    `json:"file"`
	SourceRoot     string    `json:"sourceRoot"`
	Sources        []string  `json:"sources"`
	SourcesContent []*string `json:"sourcesContent"`
	Names          []string  `json:"names"`
	Mappings       string    `json:"mappings"`
}
