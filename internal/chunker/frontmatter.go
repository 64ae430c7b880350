package chunker

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontMatterDelimiter = "---"

// FrontMatter holds the document-level metadata carried in a leading YAML
// block. All fields are optional.
type FrontMatter struct {
	Title       string     `yaml:"title"`
	Parent      string     `yaml:"parent"`
	Path        string     `yaml:"path"`
	OriginalURL string     `yaml:"original_url"`
	PageID      flexString `yaml:"page_id"`
	Version     flexString `yaml:"version"`
	LastUpdated flexString `yaml:"last_updated"`
}

// flexString accepts any YAML scalar as a string. Exporters emit page ids and
// versions as bare integers, dates sometimes as timestamps.
type flexString string

// UnmarshalYAML implements yaml.Unmarshaler.
func (f *flexString) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("expected scalar, got %v node", value.Kind)
	}
	*f = flexString(value.Value)
	return nil
}

// extractFrontMatter strips a leading front-matter block from text and
// returns the parsed metadata plus the remaining body. A document without a
// block is not an error; a block that opens but never closes, or that holds
// invalid YAML, is.
func extractFrontMatter(text string) (FrontMatter, string, error) {
	var fm FrontMatter

	lines := strings.Split(text, "\n")
	if len(lines) == 0 || strings.TrimRight(lines[0], "\r") != frontMatterDelimiter {
		return fm, text, nil
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], "\r") == frontMatterDelimiter {
			end = i
			break
		}
	}
	if end == -1 {
		return fm, "", fmt.Errorf("%w: unterminated block", ErrFrontMatter)
	}

	block := strings.Join(lines[1:end], "\n")
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		return fm, "", fmt.Errorf("%w: %v", ErrFrontMatter, err)
	}

	body := strings.Join(lines[end+1:], "\n")
	return fm, strings.TrimLeft(body, "\r\n"), nil
}
