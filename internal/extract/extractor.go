package extract

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/docuchat-io/docuchat/internal/pkg/errs"
)

// Extract converts an uploaded file's raw bytes into plain text. declaredType
// is the client-declared file type ("txt", "md", ...), normalized here.
// Unknown types fail with errs.ErrUnsupportedFormat, undecodable content with
// errs.ErrCorruptFile; the ingestion pipeline maps both to a failed document.
func Extract(data []byte, declaredType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty file", errs.ErrCorruptFile)
	}
	fileType := normalizeType(declaredType)
	switch fileType {
	case "txt":
		return extractPlain(data)
	case "md", "markdown":
		return extractMarkdown(data)
	default:
		return "", fmt.Errorf("%w: %s", errs.ErrUnsupportedFormat, declaredType)
	}
}

// Supported reports whether a declared type can be extracted, so uploads can
// be rejected before the file is stored.
func Supported(declaredType string) bool {
	switch normalizeType(declaredType) {
	case "txt", "md", "markdown":
		return true
	}
	return false
}

func normalizeType(declaredType string) string {
	t := strings.ToLower(strings.TrimSpace(declaredType))
	t = strings.TrimPrefix(t, ".")
	return t
}

func extractPlain(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: not valid utf-8", errs.ErrCorruptFile)
	}
	return string(data), nil
}

// extractMarkdown parses the document and walks the block structure, keeping
// paragraph separation so the chunker can still find natural boundaries.
func extractMarkdown(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: not valid utf-8", errs.ErrCorruptFile)
	}
	md := goldmark.New()
	reader := text.NewReader(data)
	doc := md.Parser().Parse(reader)

	var blocks []string
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *ast.FencedCodeBlock:
			var sb strings.Builder
			for i := 0; i < n.Lines().Len(); i++ {
				line := n.Lines().At(i)
				sb.Write(line.Value(data))
			}
			if code := strings.TrimSpace(sb.String()); code != "" {
				blocks = append(blocks, code)
			}
		default:
			if txt := blockText(node, data); txt != "" {
				blocks = append(blocks, txt)
			}
		}
	}
	return strings.Join(blocks, "\n\n"), nil
}

func blockText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if node.Kind() == ast.KindText {
			sb.Write(node.(*ast.Text).Segment.Value(source))
			if node.(*ast.Text).HardLineBreak() || node.(*ast.Text).SoftLineBreak() {
				sb.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
