package sourcemap

import (
	"fmt"
	"regexp"
	"strings"
)

var indentPattern = regexp.MustCompile(`^(\s*)`)

// formatStackFrame renders a mapped frame as "at name (file:line:column)",
// keeping the indentation of the raw line. Unmapped frames are returned as-is.
func formatStackFrame(frame mappedStackFrame) string {
	if !frame.Mapped || frame.IsNative {
		return frame.Raw
	}

	functionName := frame.FunctionName
	if frame.OriginalName != nil && *frame.OriginalName != "" {
		functionName = *frame.OriginalName
	}

	fileName := frame.FileName
	if frame.OriginalFileName != nil {
		fileName = *frame.OriginalFileName
	}

	line := 0
	if frame.OriginalLineNumber != nil {
		line = *frame.OriginalLineNumber
	} else if frame.LineNumber != nil {
		line = *frame.LineNumber
	}

	column := 0
	if frame.OriginalColumnNumber != nil {
		column = *frame.OriginalColumnNumber
	} else if frame.ColumnNumber != nil {
		column = *frame.ColumnNumber
	}

	indent := ""
	if matches := indentPattern.FindStringSubmatch(frame.Raw); len(matches) > 1 {
		indent = matches[1]
	}

	return fmt.Sprintf("%sat %s (%s:%d:%d)", indent, functionName, fileName, line, column)
}

func formatStackTrace(frames []mappedStackFrame, withStatus bool) string {
	lines := make([]string, len(frames))
	for i, frame := range frames {
		formatted := formatStackFrame(frame)
		if withStatus {
			status := "✗ unmapped"
			if frame.Mapped {
				status = "✓ mapped"
			}
			formatted = fmt.Sprintf("%s %s", formatted, status)
		}
		lines[i] = formatted
	}
	return strings.Join(lines, "\n")
}
