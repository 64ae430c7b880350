package chunker

import "strings"

// Header is one level of the markdown heading hierarchy above a segment.
type Header struct {
	Level int
	Text  string
}

// segment is a run of markdown between structural boundaries, tagged with the
// heading path in effect where it starts.
type segment struct {
	text    string
	headers []Header
}

// splitOnHeaders cuts body at ATX headings of level 1..maxLevel. Each segment
// keeps its heading line and carries a snapshot of the active hierarchy: a
// new H2 clears the previous H2 and anything deeper, the H1 above survives.
// Headings inside fenced code blocks are content, not boundaries.
func splitOnHeaders(body string, maxLevel int) []segment {
	var (
		segs       []segment
		cur        []string
		curHeaders []Header
		inFence    bool
		fenceMark  string
	)
	active := make([]string, 7) // indexed by heading level 1..6

	flush := func() {
		text := strings.TrimSpace(strings.Join(cur, "\n"))
		if text != "" {
			segs = append(segs, segment{text: text, headers: curHeaders})
		}
		cur = nil
	}

	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)

		if mark := fenceMarker(trimmed); mark != "" {
			if !inFence {
				inFence = true
				fenceMark = mark
			} else if strings.HasPrefix(mark, fenceMark) {
				inFence = false
			}
			cur = append(cur, line)
			continue
		}

		if !inFence {
			if level, ok := parseHeading(trimmed, maxLevel); ok {
				flush()
				title := strings.TrimSpace(trimmed[level:])
				for l := level; l < len(active); l++ {
					active[l] = ""
				}
				active[level] = title
				curHeaders = snapshotHeaders(active)
			}
		}
		cur = append(cur, line)
	}
	flush()
	return segs
}

// fenceMarker returns the fence characters opening or closing a code block,
// or "" if the line is not a fence.
func fenceMarker(line string) string {
	for _, mark := range []string{"```", "~~~"} {
		if strings.HasPrefix(line, mark) {
			return mark
		}
	}
	return ""
}

// parseHeading reports whether line is an ATX heading at or above maxLevel
// and returns its level. Deeper headings stay inside their segment.
func parseHeading(line string, maxLevel int) (int, bool) {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level < 1 || level > maxLevel {
		return 0, false
	}
	if level >= len(line) || (line[level] != ' ' && line[level] != '\t') {
		return 0, false
	}
	if strings.TrimSpace(line[level:]) == "" {
		return 0, false
	}
	return level, true
}

func snapshotHeaders(active []string) []Header {
	var headers []Header
	for level := 1; level < len(active); level++ {
		if active[level] != "" {
			headers = append(headers, Header{Level: level, Text: active[level]})
		}
	}
	return headers
}
