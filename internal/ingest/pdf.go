package ingest

import (
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

type PageText struct {
	PageNum int
	Text    string
}

// Document wraps an opened PDF and exposes per-page native text.
type Document struct {
	file   *os.File
	reader *pdf.Reader
}

func OpenDocument(path string) (*Document, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	return &Document{file: file, reader: reader}, nil
}

func (d *Document) Close() error {
	return d.file.Close()
}

func (d *Document) PageCount() int {
	return d.reader.NumPage()
}

// PageText returns the native text layer of a page, 1-based. Pages without
// a text layer yield an empty string rather than an error; the router
// treats them as low-density.
func (d *Document) PageText(num int) (string, error) {
	page := d.reader.Page(num)
	if page.V.IsNull() {
		return "", nil
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		return "", nil
	}
	return strings.TrimSpace(text), nil
}

// ReadAllPages extracts the native text of every page in order.
func (d *Document) ReadAllPages() ([]PageText, error) {
	total := d.PageCount()
	pages := make([]PageText, 0, total)
	for i := 1; i <= total; i++ {
		text, err := d.PageText(i)
		if err != nil {
			return nil, fmt.Errorf("read page %d: %w", i, err)
		}
		pages = append(pages, PageText{PageNum: i, Text: text})
	}
	return pages, nil
}
