package sourcemap

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	nativePattern   = regexp.MustCompile(`at\s+(.+?)\s+\(native\)`)
	namedPattern    = regexp.MustCompile(`at\s+(.+?)\s+\((.+?):(\d+):(\d+)\)`)
	anonPattern     = regexp.MustCompile(`at\s+(.+?):(\d+):(\d+)`)
	geckoPattern    = regexp.MustCompile(`^(.*?)@(.+?):(\d+):(\d+)$`)
	locationPattern = regexp.MustCompile(`^(.+?):(\d+):(\d+)$`)
)

// ParseStack parses a full stack trace (multiple lines) into stack frames.
// Lines that cannot be parsed are skipped.
func ParseStack(stackTrace string) []StackFrame {
	lines := strings.Split(stackTrace, "\n")
	frames := make([]StackFrame, 0, len(lines))

	for _, line := range lines {
		if frame := parseStackLine(line); frame != nil {
			frames = append(frames, *frame)
		}
	}

	return frames
}

// parseStackLine parses a single line from a stack trace
// Handles formats like:
// - at functionName (file:line:column)
// - at file:line:column
// - at functionName (native)
// - functionName@file:line:column
// - file:line:column
func parseStackLine(line string) *StackFrame {
	trimmedLine := strings.TrimSpace(line)
	if trimmedLine == "" {
		return nil
	}

	if strings.Contains(trimmedLine, "(native)") {
		functionName := "unknown"
		if matches := nativePattern.FindStringSubmatch(trimmedLine); matches != nil {
			functionName = matches[1]
		}
		return &StackFrame{
			Raw:          line,
			FunctionName: functionName,
			FileName:     "native",
			IsNative:     true,
		}
	}

	if matches := namedPattern.FindStringSubmatch(trimmedLine); matches != nil {
		return newFrame(line, matches[1], matches[2], matches[3], matches[4])
	}

	if matches := anonPattern.FindStringSubmatch(trimmedLine); matches != nil {
		return newFrame(line, "<anonymous>", matches[1], matches[2], matches[3])
	}

	if matches := geckoPattern.FindStringSubmatch(trimmedLine); matches != nil {
		name := matches[1]
		if name == "" {
			name = "<anonymous>"
		}
		return newFrame(line, name, matches[2], matches[3], matches[4])
	}

	if matches := locationPattern.FindStringSubmatch(trimmedLine); matches != nil {
		return newFrame(line, "<anonymous>", matches[1], matches[2], matches[3])
	}

	return nil
}

func newFrame(raw, functionName, fileName, line, column string) *StackFrame {
	lineNum, _ := strconv.Atoi(line)
	colNum, _ := strconv.Atoi(column)
	return &StackFrame{
		Raw:          raw,
		FunctionName: functionName,
		FileName:     fileName,
		LineNumber:   &lineNum,
		ColumnNumber: &colNum,
	}
}
