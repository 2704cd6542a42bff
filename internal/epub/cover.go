package epub

import (
	"bytes"
	"slices"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Cover is a cover image read from the archive.
type Cover struct {
	Path      string
	MediaType string
	Data      []byte
}

// Cover locates the cover image. It tries, in order: the EPUB 3
// cover-image manifest property, the EPUB 2 cover meta, the guide's cover
// page, and finally any image whose id or href mentions "cover".
func (b *Book) Cover() (Cover, error) {
	finders := []func() *manifestItem{
		b.coverFromProperties,
		b.coverFromMeta,
		b.coverFromGuide,
		b.coverFromName,
	}
	for _, find := range finders {
		if item := find(); item != nil {
			p := resolve(b.opfPath, item.Href)
			data, err := b.ReadFile(p)
			if err != nil {
				return Cover{}, err
			}
			return Cover{Path: p, MediaType: item.MediaType, Data: data}, nil
		}
	}
	return Cover{}, ErrNoCover
}

func (b *Book) coverFromProperties() *manifestItem {
	for i := range b.pkg.Manifest {
		item := &b.pkg.Manifest[i]
		if slices.Contains(strings.Fields(item.Properties), "cover-image") {
			return item
		}
	}
	return nil
}

func (b *Book) coverFromMeta() *manifestItem {
	for _, m := range b.pkg.Metadata.Metas {
		if !strings.EqualFold(m.Name, "cover") || m.Content == "" {
			continue
		}
		item, ok := b.byID[m.Content]
		if !ok {
			continue
		}
		if isImage(item.MediaType) {
			return item
		}
		if img := b.imageOnPage(resolve(b.opfPath, item.Href)); img != nil {
			return img
		}
	}
	return nil
}

func (b *Book) coverFromGuide() *manifestItem {
	for _, ref := range b.pkg.Guide {
		if !strings.EqualFold(ref.Type, "cover") {
			continue
		}
		if img := b.imageOnPage(resolve(b.opfPath, ref.Href)); img != nil {
			return img
		}
	}
	return nil
}

func (b *Book) coverFromName() *manifestItem {
	for i := range b.pkg.Manifest {
		item := &b.pkg.Manifest[i]
		if !isImage(item.MediaType) {
			continue
		}
		if strings.Contains(strings.ToLower(item.ID), "cover") || strings.Contains(strings.ToLower(item.Href), "cover") {
			return item
		}
	}
	return nil
}

// imageOnPage returns the manifest image referenced by the first <img> (or
// SVG <image>) on an XHTML page.
func (b *Book) imageOnPage(page string) *manifestItem {
	if page == "" {
		return nil
	}
	data, err := b.ReadFile(page)
	if err != nil {
		return nil
	}
	src := firstImage(data)
	if src == "" {
		return nil
	}
	target := resolve(page, src)
	for i := range b.pkg.Manifest {
		item := &b.pkg.Manifest[i]
		if isImage(item.MediaType) && strings.EqualFold(resolve(b.opfPath, item.Href), target) {
			return item
		}
	}
	return nil
}

func firstImage(page []byte) string {
	z := html.NewTokenizer(bytes.NewReader(page))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if !hasAttr {
				continue
			}
			var keys []string
			switch atom.Lookup(name) {
			case atom.Img:
				keys = []string{"src"}
			case atom.Image:
				keys = []string{"href", "xlink:href"}
			default:
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if slices.Contains(keys, string(key)) && len(val) > 0 {
					return string(val)
				}
				if !more {
					break
				}
			}
		}
	}
}

func isImage(mediaType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mediaType)), "image/")
}
