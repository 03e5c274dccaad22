package service

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ErrNoText is returned when a result archive holds neither a content list
// nor a markdown rendering.
var ErrNoText = errors.New("no text in parse result")

// contentItem is one block of MinerU's content_list.json.
type contentItem struct {
	Type          string   `json:"type"`
	Text          string   `json:"text"`
	TableBody     string   `json:"table_body"`
	TableCaption  []string `json:"table_caption"`
	TableFootnote []string `json:"table_footnote"`
	PageIdx       int      `json:"page_idx"`
}

// ResultText reads a MinerU result archive. The content list is preferred
// because it keeps page order and table cells; full.md is the fallback.
func ResultText(zipData []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
	if err != nil {
		return "", fmt.Errorf("failed to open result archive: %w", err)
	}

	var contentList, markdown *zip.File
	for _, f := range zr.File {
		name := path.Base(f.Name)
		switch {
		case strings.HasSuffix(name, "content_list.json") && contentList == nil:
			contentList = f
		case name == "full.md" && markdown == nil:
			markdown = f
		}
	}

	if contentList != nil {
		data, err := readZipFile(contentList)
		if err != nil {
			return "", err
		}
		if s, err := contentListText(data); err == nil && s != "" {
			return s, nil
		}
	}
	if markdown != nil {
		data, err := readZipFile(markdown)
		if err != nil {
			return "", err
		}
		if s := markdownText(data); s != "" {
			return s, nil
		}
	}
	return "", ErrNoText
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxResultSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
	}
	return data, nil
}

// contentListText joins the blocks in page order, one block per line.
func contentListText(data []byte) (string, error) {
	var items []contentItem
	if err := json.Unmarshal(data, &items); err != nil {
		return "", fmt.Errorf("failed to parse content list: %w", err)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].PageIdx < items[j].PageIdx })

	var lines []string
	for _, it := range items {
		switch it.Type {
		case "table":
			lines = append(lines, it.TableCaption...)
			if t := htmlText(it.TableBody); t != "" {
				lines = append(lines, t)
			}
			lines = append(lines, it.TableFootnote...)
		default:
			if t := strings.TrimSpace(it.Text); t != "" {
				lines = append(lines, t)
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}

// htmlText flattens an HTML fragment. Table rows become lines with cells
// separated by a space.
func htmlText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}

	rows := doc.Find("tr")
	if rows.Length() == 0 {
		return collapse(doc.Text())
	}
	var lines []string
	rows.Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.ChildrenFiltered("th, td").Each(func(_ int, cell *goquery.Selection) {
			if t := collapse(cell.Text()); t != "" {
				cells = append(cells, t)
			}
		})
		if len(cells) > 0 {
			lines = append(lines, strings.Join(cells, " "))
		}
	})
	return strings.Join(lines, "\n")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// markdownText renders markdown to plain text, one block per line. Raw HTML
// blocks, which MinerU uses for tables, are flattened with htmlText.
func markdownText(src []byte) string {
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			switch node := n.(type) {
			case *ast.Text:
				b.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					b.WriteByte('\n')
				}
			case *ast.String:
				b.Write(node.Value)
			case *ast.HTMLBlock:
				var raw bytes.Buffer
				writeLines(&raw, node, src)
				if node.HasClosure() {
					raw.Write(node.ClosureLine.Value(src))
				}
				b.WriteString(htmlText(raw.String()))
				return ast.WalkSkipChildren, nil
			case *ast.FencedCodeBlock, *ast.CodeBlock:
				writeLines(&b, n, src)
				return ast.WalkSkipChildren, nil
			}
			return ast.WalkContinue, nil
		}
		if n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument {
			b.WriteByte('\n')
		}
		return ast.WalkContinue, nil
	})

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func writeLines(w io.Writer, n ast.Node, src []byte) {
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		w.Write(seg.Value(src))
	}
}
