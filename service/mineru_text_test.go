package service

import (
	"errors"
	"testing"
)

func TestResultTextContentList(t *testing.T) {
	contentList := `[
		{"type":"text","text":"本期计价金额 5,000.00 元","page_idx":1},
		{"type":"text","text":"工程款计价单","text_level":1,"page_idx":0},
		{"type":"image","img_path":"images/a.jpg","page_idx":0},
		{"type":"table","table_caption":["计价明细"],"table_body":"<table><tr><td>分包方：</td><td>ACME</td></tr><tr><td>开累计价金额</td><td> 12,000 元</td></tr></table>","page_idx":0},
		{"type":"text","text":"   ","page_idx":2}
	]`
	archive := buildZip(t, map[string]string{
		"abc/abc_content_list.json": contentList,
		"abc/full.md":               "ignored",
	})

	text, err := ResultText(archive)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	expected := "工程款计价单\n计价明细\n分包方： ACME\n开累计价金额 12,000 元\n本期计价金额 5,000.00 元"
	if text != expected {
		t.Errorf("Expected %q, got %q", expected, text)
	}
}

func TestResultTextMarkdownFallback(t *testing.T) {
	markdown := "# 工程款计价单\n\n分包方：ACME\n计价编号：PS-7\n\n<table><tr><th>本期计价金额</th><td>800 元</td></tr></table>\n\n- 2025年6月\n"
	archive := buildZip(t, map[string]string{
		"abc/full.md":     markdown,
		"abc/layout.json": "{}",
	})

	text, err := ResultText(archive)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	expected := "工程款计价单\n分包方：ACME\n计价编号：PS-7\n本期计价金额 800 元\n2025年6月"
	if text != expected {
		t.Errorf("Expected %q, got %q", expected, text)
	}
}

func TestResultTextBrokenContentListFallsBack(t *testing.T) {
	archive := buildZip(t, map[string]string{
		"content_list.json": "{not json",
		"full.md":           "分包方：ACME",
	})

	text, err := ResultText(archive)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if text != "分包方：ACME" {
		t.Errorf("Expected markdown text, got %q", text)
	}
}

func TestResultTextErrors(t *testing.T) {
	if _, err := ResultText([]byte("not a zip")); err == nil {
		t.Error("Expected error for invalid archive")
	}

	archive := buildZip(t, map[string]string{"images/a.jpg": "jpeg"})
	if _, err := ResultText(archive); !errors.Is(err, ErrNoText) {
		t.Errorf("Expected ErrNoText, got %v", err)
	}
}

func TestHTMLText(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		expected string
	}{
		{"empty", "  ", ""},
		{"plain", "<p>本期 <b>计价</b></p>", "本期 计价"},
		{"table", "<table><tr><th>A</th><th>B</th></tr><tr><td> 1 </td><td></td><td>2</td></tr></table>", "A B\n1 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := htmlText(tt.html); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}
