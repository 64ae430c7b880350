package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	contextSeparator = "\n---\n"
	unknownSource    = "Unknown Document"
)

// enrich assigns chunk identifiers and prepends the provenance context block
// to every piece.
func (s *Splitter) enrich(fm FrontMatter, sourceName, body string, pieces []segment) []Chunk {
	rootID := resolveRootID(fm, sourceName, body)
	source := sourceDisplayName(fm, sourceName)
	parent := fm.Parent
	if parent == "" {
		parent = "None"
	}
	lastUpdated := truncateDate(string(fm.LastUpdated))

	chunks := make([]Chunk, 0, len(pieces))
	for i, piece := range pieces {
		block := buildContextBlock(source, string(fm.Version), lastUpdated, piece.headers)
		chunks = append(chunks, Chunk{
			ID:              fmt.Sprintf("%s_chunk_%d", rootID, i+1),
			Content:         block + contextSeparator + piece.text,
			OriginalContent: piece.text,
			Headers:         piece.headers,
			Source:          source,
			URL:             fm.OriginalURL,
			Parent:          parent,
			Version:         string(fm.Version),
			LastUpdated:     lastUpdated,
			Breadcrumbs:     strings.ReplaceAll(block, "\n", " | "),
		})
	}
	return chunks
}

// resolveRootID picks the stable identifier all of a document's chunk ids
// hang off: the explicit page id when present, else a sanitized file name
// stem, else a content hash. The hash arm always yields, so every document
// gets an id.
func resolveRootID(fm FrontMatter, sourceName, body string) string {
	if id := strings.TrimSpace(string(fm.PageID)); id != "" {
		return id
	}
	if id := fileNameRootID(sourceName); id != "" {
		return id
	}
	sum := sha256.Sum256([]byte(body))
	return "anon_" + hex.EncodeToString(sum[:])[:8]
}

func fileNameRootID(sourceName string) string {
	if sourceName == "" {
		return ""
	}
	stem := strings.TrimSuffix(filepath.Base(sourceName), filepath.Ext(sourceName))
	stem = strings.TrimSpace(stem)
	if stem == "" || stem == "." {
		return ""
	}
	stem = strings.NewReplacer(" ", "_", "-", "_").Replace(stem)
	return strings.ToLower(stem)
}

// sourceDisplayName chooses the human-readable source label for the context
// block: explicit path, then parent/title, then a prettified file name stem.
func sourceDisplayName(fm FrontMatter, sourceName string) string {
	if fm.Path != "" {
		return fm.Path
	}
	if fm.Title != "" {
		if fm.Parent != "" {
			return fm.Parent + " / " + fm.Title
		}
		return fm.Title
	}
	if sourceName != "" {
		stem := strings.TrimSuffix(filepath.Base(sourceName), filepath.Ext(sourceName))
		if stem != "" {
			return strings.NewReplacer("-", " ", "_", " ").Replace(stem)
		}
	}
	return unknownSource
}

// buildContextBlock renders the provenance block prepended to chunk content.
// Version and date lines appear only when the metadata carries them.
func buildContextBlock(source, version, lastUpdated string, headers []Header) string {
	lines := []string{"Context:", "Source: " + source}
	if version != "" {
		lines = append(lines, "Version: "+version)
	}
	if lastUpdated != "" {
		lines = append(lines, "Last Updated: "+lastUpdated)
	}
	if len(headers) > 0 {
		titles := make([]string, len(headers))
		for i, h := range headers {
			titles[i] = h.Text
		}
		lines = append(lines, "Headers: "+strings.Join(titles, " > "))
	}
	return strings.Join(lines, "\n")
}

// truncateDate reduces timestamps to their date part. Values that do not
// look like timestamps pass through unchanged.
func truncateDate(v string) string {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.Format("2006-01-02")
	}
	if len(v) >= 10 {
		if _, err := time.Parse("2006-01-02", v[:10]); err == nil {
			return v[:10]
		}
	}
	return v
}
