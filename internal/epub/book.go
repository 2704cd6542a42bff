// Package epub reads the metadata, cover and spine of EPUB payloads.
package epub

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
)

// Book is a parsed EPUB archive.
type Book struct {
	zr      *zip.Reader
	opfPath string
	pkg     *packageDoc
	byID    map[string]*manifestItem
}

// Parse opens an EPUB held in memory.
func Parse(data []byte) (*Book, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("epub: open archive: %w: %w", ErrInvalidEPUB, err)
	}

	opfPath, err := locatePackage(zr)
	if err != nil {
		return nil, err
	}
	f := findFile(zr, opfPath)
	if f == nil {
		return nil, fmt.Errorf("epub: package document %s: %w", opfPath, ErrInvalidEPUB)
	}
	raw, err := readEntry(f)
	if err != nil {
		return nil, err
	}
	pkg, err := parsePackage(raw)
	if err != nil {
		return nil, err
	}

	b := &Book{zr: zr, opfPath: f.Name, pkg: pkg, byID: make(map[string]*manifestItem, len(pkg.Manifest))}
	for i := range pkg.Manifest {
		b.byID[pkg.Manifest[i].ID] = &pkg.Manifest[i]
	}
	return b, nil
}

// Title returns the first non-empty dc:title.
func (b *Book) Title() string {
	return firstNonEmpty(b.pkg.Metadata.Titles)
}

// Author returns the first non-empty dc:creator.
func (b *Book) Author() string {
	return firstNonEmpty(b.pkg.Metadata.Creators)
}

// Spine returns archive paths of the reading order.
func (b *Book) Spine() []string {
	out := make([]string, 0, len(b.pkg.Spine))
	for _, ref := range b.pkg.Spine {
		item, ok := b.byID[ref.IDRef]
		if !ok {
			continue
		}
		if p := resolve(b.opfPath, item.Href); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ReadFile returns an archive entry by path.
func (b *Book) ReadFile(name string) ([]byte, error) {
	f := findFile(b.zr, name)
	if f == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrFileNotFound)
	}
	return readEntry(f)
}

func firstNonEmpty(values []string) string {
	for _, v := range values {
		if v = strings.Join(strings.Fields(v), " "); v != "" {
			return v
		}
	}
	return ""
}
