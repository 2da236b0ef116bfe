package ingest

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	// ErrUnsupportedFormat is returned for file types that cannot be extracted.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrInvalidDocument is returned for a missing name or unreadable content.
	ErrInvalidDocument = errors.New("invalid document")
)

// SupportedExtensions lists the file extensions Extract understands.
var SupportedExtensions = []string{".txt", ".md", ".markdown", ".docx"}

// Supported reports whether name has an extractable extension.
func Supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range SupportedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Extractor turns file content into plain text with blank lines between paragraphs.
type Extractor struct {
	markdown goldmark.Markdown
}

// NewExtractor creates an Extractor.
func NewExtractor() *Extractor {
	return &Extractor{
		markdown: goldmark.New(goldmark.WithExtensions(extension.Table)),
	}
}

// Extract returns the text of content, choosing the format by the extension of name.
func (e *Extractor) Extract(name string, content []byte) (string, error) {
	var (
		text string
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".txt":
		text = decodeText(content)
	case ".md", ".markdown":
		text = e.extractMarkdown(content)
	case ".docx":
		text, err = extractDocx(content)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrInvalidDocument, name, err)
		}
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n")), nil
}

// decodeText reads UTF-8, dropping a byte order mark, and falls back to
// Latin-1 for anything else.
func decodeText(content []byte) string {
	content = trimBOM(content)
	if utf8.Valid(content) {
		return string(content)
	}
	runes := make([]rune, len(content))
	for i, b := range content {
		runes[i] = rune(b)
	}
	return string(runes)
}

func trimBOM(content []byte) []byte {
	if len(content) >= 3 && content[0] == 0xEF && content[1] == 0xBB && content[2] == 0xBF {
		return content[3:]
	}
	return content
}
