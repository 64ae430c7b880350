// Package chunker segments markdown documents into retrieval-ready chunks.
//
// A document passes through three stages: front-matter extraction, structural
// splitting on markdown headings, and recursive size-bounded splitting of any
// oversized segment. Every resulting chunk is then enriched with a provenance
// context block so it remains interpretable when retrieved in isolation.
package chunker

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/textsplitter"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/logging"
)

var (
	// ErrFrontMatter indicates a document opened a metadata block that could
	// not be parsed.
	ErrFrontMatter = errors.New("malformed front matter")

	// ErrSplitFailed indicates the recursive size splitter failed.
	ErrSplitFailed = errors.New("text splitting failed")
)

// Chunk is one indexable unit of a document.
type Chunk struct {
	// ID is "<rootID>_chunk_<n>" with n starting at 1.
	ID string

	// Content is the context block plus the raw piece, the text that gets
	// embedded and stored.
	Content string

	// OriginalContent is the raw piece without the context block.
	OriginalContent string

	// Headers is the heading path above this chunk, outermost first.
	Headers []Header

	Source      string
	URL         string
	Parent      string
	Version     string
	LastUpdated string

	// Breadcrumbs is the context block flattened to one line for display.
	Breadcrumbs string
}

// Config bounds chunk geometry.
type Config struct {
	// ChunkSize is the maximum piece length in characters.
	ChunkSize int

	// ChunkOverlap is carried between adjacent pieces of a split segment.
	ChunkOverlap int

	// HeaderDepth is the deepest heading level that starts a new segment.
	// Deeper headings stay inside their parent segment.
	HeaderDepth int
}

// Splitter turns markdown documents into enriched chunks.
type Splitter struct {
	cfg    Config
	logger *logging.Logger
}

// NewSplitter creates a Splitter.
func NewSplitter(cfg Config, logger *logging.Logger) (*Splitter, error) {
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be > 0, got %d", cfg.ChunkSize)
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be in [0, chunk size)", cfg.ChunkOverlap)
	}
	if cfg.HeaderDepth < 1 || cfg.HeaderDepth > 6 {
		return nil, fmt.Errorf("header depth %d must be in [1, 6]", cfg.HeaderDepth)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Splitter{cfg: cfg, logger: logger.Named("chunker")}, nil
}

// Split chunks one document. sourceName is the file name or other caller
// identifier and may be empty. Every document yields at least one chunk.
func (s *Splitter) Split(ctx context.Context, text, sourceName string) ([]Chunk, error) {
	fm, body, err := extractFrontMatter(text)
	if err != nil {
		s.logger.Error(ctx, "front matter parsing failed",
			zap.String("source", sourceName),
			zap.Error(err),
		)
		return nil, fmt.Errorf("parsing front matter of %q: %w", sourceName, err)
	}

	segs := s.splitStructural(ctx, body)
	pieces, err := s.splitRecursive(segs)
	if err != nil {
		s.logger.Error(ctx, "size splitting failed",
			zap.String("source", sourceName),
			zap.Error(err),
		)
		return nil, fmt.Errorf("splitting %q: %w", sourceName, err)
	}

	chunks := s.enrich(fm, sourceName, body, pieces)
	s.logger.Debug(ctx, "document chunked",
		zap.String("source", sourceName),
		zap.Int("segments", len(segs)),
		zap.Int("chunks", len(chunks)),
	)
	return chunks, nil
}

// splitStructural runs the heading splitter, degrading to a single untagged
// segment when the body has no usable structure.
func (s *Splitter) splitStructural(ctx context.Context, body string) []segment {
	segs := splitOnHeaders(body, s.cfg.HeaderDepth)
	if len(segs) == 0 {
		s.logger.Debug(ctx, "no structural segments, using whole body")
		return []segment{{text: body}}
	}
	return segs
}

// splitRecursive size-bounds each segment. Segments at or under the limit
// pass through untouched; oversized segments are split recursively on
// paragraph, line, and word boundaries, each piece inheriting the segment's
// heading path.
func (s *Splitter) splitRecursive(segs []segment) ([]segment, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(s.cfg.ChunkSize),
		textsplitter.WithChunkOverlap(s.cfg.ChunkOverlap),
		textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
	)

	var out []segment
	for _, seg := range segs {
		if len(seg.text) <= s.cfg.ChunkSize {
			out = append(out, seg)
			continue
		}
		parts, err := splitter.SplitText(seg.text)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSplitFailed, err)
		}
		if len(parts) == 0 {
			out = append(out, seg)
			continue
		}
		for _, part := range parts {
			out = append(out, segment{text: part, headers: seg.headers})
		}
	}
	return out, nil
}
