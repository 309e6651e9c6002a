package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"

	"secure-llm-assistant/errs"
	"secure-llm-assistant/llm"
)

// MaxFileSize is the upload cap in bytes.
const MaxFileSize = 50 * 1024 * 1024

// supportedTypes maps file extensions (without the dot) to whether the
// text can be extracted locally. Formats marked false are handed to
// the backend.
var supportedTypes = map[string]bool{
	"txt":  true,
	"md":   true,
	"csv":  true,
	"json": true,
	"pdf":  false,
	"docx": false,
	"xlsx": false,
	"pptx": false,
}

// Extracted is the plain-text form of an uploaded file. The text has
// NOT been redacted yet.
type Extracted struct {
	Text     string
	FileType string
	Size     int64
}

// Processor turns uploaded files into plain text. Text formats are
// handled locally; binary office formats are delegated to the backend.
type Processor struct {
	backend llm.Backend
	maxSize int64
}

// NewProcessor returns a processor that delegates binary formats to
// backend.
func NewProcessor(backend llm.Backend) *Processor {
	return &Processor{backend: backend, maxSize: MaxFileSize}
}

// Extract returns the plain text of the file at filePath. Unsupported
// extensions fail with UnsupportedFormat; oversized or unreadable
// files fail with DocumentError.
func (p *Processor) Extract(ctx context.Context, filePath string) (*Extracted, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filePath), "."))
	local, ok := supportedTypes[ext]
	if !ok {
		return nil, errs.UnsupportedFormat(ext)
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return nil, errs.DocumentError(err)
	}
	if info.IsDir() {
		return nil, errs.DocumentError(fmt.Errorf("%s is a directory", filePath))
	}
	if info.Size() > p.maxSize {
		return nil, errs.DocumentError(fmt.Errorf("%s is %d bytes, limit is %d",
			filepath.Base(filePath), info.Size(), p.maxSize))
	}

	if !local {
		text, err := p.backend.ProcessDocument(ctx, filePath, ext)
		if err != nil {
			return nil, errs.DocumentError(fmt.Errorf("%s: %w", filepath.Base(filePath), err))
		}
		return &Extracted{Text: text, FileType: ext, Size: info.Size()}, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errs.DocumentError(err)
	}

	var text string
	switch ext {
	case "txt", "csv":
		text = string(data)
	case "md":
		text = markdownText(data)
	case "json":
		text, err = jsonText(data)
		if err != nil {
			return nil, errs.DocumentError(err)
		}
	}

	return &Extracted{Text: text, FileType: ext, Size: info.Size()}, nil
}

// SupportedExtensions lists the accepted file extensions.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(supportedTypes))
	for ext := range supportedTypes {
		exts = append(exts, ext)
	}
	return exts
}

// markdownText strips markdown formatting, keeping the readable text.
func markdownText(source []byte) string {
	md := goldmark.New()
	root := md.Parser().Parse(gmtext.NewReader(source))

	var buf bytes.Buffer
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			if t, ok := n.(*ast.Text); ok {
				buf.Write(t.Segment.Value(source))
				if t.SoftLineBreak() || t.HardLineBreak() {
					buf.WriteByte('\n')
				}
			}
			return ast.WalkContinue, nil
		}
		// blank line between blocks
		if n.Type() == ast.TypeBlock {
			buf.WriteByte('\n')
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(buf.String())
}

// jsonText validates and pretty-prints JSON so the stored text stays
// readable and searchable.
func jsonText(data []byte) (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return "", fmt.Errorf("invalid JSON: %w", err)
	}
	return buf.String(), nil
}
