package epub

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildEPUB zips files (path to content) into an in-memory archive.
func buildEPUB(t *testing.T, files map[string]string) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	for name, content := range files {
		fw, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

const testContainer = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

func opf(metadata, manifest, spine, guide string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">` + metadata + `</metadata>
  <manifest>` + manifest + `</manifest>
  <spine>` + spine + `</spine>
  <guide>` + guide + `</guide>
</package>`
}

func TestParseMetadataAndSpine(t *testing.T) {
	data := buildEPUB(t, map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": testContainer,
		"OEBPS/content.opf": opf(
			`<dc:title>  </dc:title><dc:title>Moby   Dick</dc:title><dc:creator>Herman Melville</dc:creator>`,
			`<item id="c1" href="text/ch1.xhtml" media-type="application/xhtml+xml"/>
			 <item id="c2" href="text/ch2.xhtml" media-type="application/xhtml+xml"/>`,
			`<itemref idref="c2"/><itemref idref="missing"/><itemref idref="c1"/>`,
			``,
		),
		"OEBPS/text/ch1.xhtml": "<html/>",
		"OEBPS/text/ch2.xhtml": "<html/>",
	})

	book, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "Moby Dick", book.Title())
	assert.Equal(t, "Herman Melville", book.Author())
	assert.Equal(t, []string{"OEBPS/text/ch2.xhtml", "OEBPS/text/ch1.xhtml"}, book.Spine())

	_, err = book.Cover()
	assert.ErrorIs(t, err, ErrNoCover)
}

func TestParseWithoutContainerFindsPackage(t *testing.T) {
	data := buildEPUB(t, map[string]string{
		"book.opf": opf(`<dc:title>Orphan</dc:title>`, ``, ``, ``),
	})

	book, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "Orphan", book.Title())
	assert.Empty(t, book.Author())
}

func TestParseRejectsInvalidPayloads(t *testing.T) {
	_, err := Parse([]byte("definitely not a zip"))
	assert.ErrorIs(t, err, ErrInvalidEPUB)

	_, err = Parse(buildEPUB(t, map[string]string{"readme.txt": "hi"}))
	assert.ErrorIs(t, err, ErrInvalidEPUB)

	_, err = Parse(buildEPUB(t, map[string]string{
		"META-INF/container.xml": testContainer,
		"OEBPS/content.opf":      "<package><metadata>",
	}))
	assert.ErrorIs(t, err, ErrInvalidEPUB)
}

func TestCoverStrategies(t *testing.T) {
	png := "\x89PNG\r\n\x1a\nfake"
	tests := []struct {
		name     string
		metadata string
		manifest string
		guide    string
		extra    map[string]string
		wantPath string
	}{
		{
			name:     "cover-image property",
			manifest: `<item id="img" href="images/front.png" media-type="image/png" properties="cover-image"/>`,
			wantPath: "OEBPS/images/front.png",
		},
		{
			name:     "meta cover pointing at an image",
			metadata: `<meta name="cover" content="img"/>`,
			manifest: `<item id="img" href="images/front.png" media-type="image/png"/>`,
			wantPath: "OEBPS/images/front.png",
		},
		{
			name:     "meta cover pointing at a page",
			metadata: `<meta name="cover" content="page"/>`,
			manifest: `<item id="page" href="text/cover.xhtml" media-type="application/xhtml+xml"/>
			           <item id="img" href="images/front.png" media-type="image/png"/>`,
			extra:    map[string]string{"OEBPS/text/cover.xhtml": `<html><body><img src="../images/front.png"/></body></html>`},
			wantPath: "OEBPS/images/front.png",
		},
		{
			name:     "guide cover page with svg image",
			manifest: `<item id="img" href="images/front.png" media-type="image/png"/>`,
			guide:    `<reference type="cover" href="text/title.xhtml#top"/>`,
			extra:    map[string]string{"OEBPS/text/title.xhtml": `<html><body><svg><image xlink:href="../images/front.png"/></svg></body></html>`},
			wantPath: "OEBPS/images/front.png",
		},
		{
			name:     "image named cover",
			manifest: `<item id="pic1" href="images/other.png" media-type="image/png"/><item id="pic2" href="images/Cover.png" media-type="image/png"/>`,
			extra:    map[string]string{"OEBPS/images/other.png": png},
			wantPath: "OEBPS/images/Cover.png",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := map[string]string{
				"META-INF/container.xml": testContainer,
				"OEBPS/content.opf":      opf(`<dc:title>T</dc:title>`+tt.metadata, tt.manifest, ``, tt.guide),
				tt.wantPath:              png,
			}
			for k, v := range tt.extra {
				files[k] = v
			}

			book, err := Parse(buildEPUB(t, files))
			require.NoError(t, err)

			cover, err := book.Cover()
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, cover.Path)
			assert.Equal(t, "image/png", cover.MediaType)
			assert.Equal(t, []byte(png), cover.Data)
		})
	}
}

func TestCoverMissingImageEntry(t *testing.T) {
	book, err := Parse(buildEPUB(t, map[string]string{
		"META-INF/container.xml": testContainer,
		"OEBPS/content.opf":      opf(``, `<item id="img" href="gone.jpg" media-type="image/jpeg" properties="cover-image"/>`, ``, ``),
	}))
	require.NoError(t, err)

	_, err = book.Cover()
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestResolve(t *testing.T) {
	assert.Equal(t, "OEBPS/images/a b.png", resolve("OEBPS/text/p.xhtml", "../images/a%20b.png#frag"))
	assert.Equal(t, "", resolve("OEBPS/p.xhtml", "../../etc/passwd"))
	assert.Equal(t, "", resolve("OEBPS/p.xhtml", "/abs.png"))
	assert.Equal(t, "", resolve("OEBPS/p.xhtml", "#only-fragment"))
}
