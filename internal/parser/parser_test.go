package parser

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
)

const animePage = `<!DOCTYPE html>
<html>
<head><title>Anime X</title><style>body { color: red; }</style></head>
<body>
  <nav><a href="/">Home</a></nav>
  <script>var tracking = "should not appear";</script>
  <h1>Anime X</h1>
  <p>Anime X follows   Kaito, a young swordsman.</p>
  <p>The series ran for <b>24</b> episodes.<br>It was well received.</p>
  <ul><li>Kaito</li><li>Mira</li></ul>
  <noscript>enable javascript</noscript>
</body>
</html>`

func TestExtractTextHTML(t *testing.T) {
	text, err := ExtractText([]byte(animePage), "text/html; charset=utf-8", "https://example.com/anime-x")
	require.NoError(t, err)

	assert.Contains(t, text, "Anime X follows Kaito, a young swordsman.")
	assert.Contains(t, text, "The series ran for 24 episodes.\nIt was well received.")
	assert.Contains(t, text, "Kaito\nMira")
	assert.Contains(t, text, "\n\n")
	assert.NotContains(t, text, "tracking")
	assert.NotContains(t, text, "color: red")
	assert.NotContains(t, text, "enable javascript")
	assert.NotContains(t, text, "<p>")
	assert.NotContains(t, text, "\n\n\n")
	assert.Equal(t, strings.TrimSpace(text), text)
}

func TestExtractTextEmptyHTML(t *testing.T) {
	text, err := ExtractText([]byte("<html><body><script>x()</script></body></html>"), "text/html", "")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestExtractTextMarkdown(t *testing.T) {
	md := "# Anime X\n\nA story about **Kaito**.\n\n- episode one\n- episode two\n"
	text, err := ExtractText([]byte(md), "text/plain", "https://example.com/notes/anime-x.md")
	require.NoError(t, err)

	assert.Contains(t, text, "Anime X")
	assert.Contains(t, text, "A story about Kaito.")
	assert.Contains(t, text, "episode one")
	assert.NotContains(t, text, "**")
	assert.NotContains(t, text, "#")
}

func TestExtractTextPlain(t *testing.T) {
	text, err := ExtractText([]byte("  line one  \n\n\n\nline   two\n"), "text/plain", "")
	require.NoError(t, err)
	assert.Equal(t, "line one\n\nline two", text)
}

func TestExtractTextUnsupported(t *testing.T) {
	_, err := ExtractText([]byte{0x89, 'P', 'N', 'G'}, "image/png", "https://example.com/cover.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported content type")
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		url         string
		body        []byte
		want        Format
	}{
		{"html header", "text/html; charset=utf-8", "https://example.com/anime", nil, FormatHTML},
		{"xhtml", "application/xhtml+xml", "", nil, FormatHTML},
		{"pdf header", "application/pdf", "https://example.com/a", nil, FormatPDF},
		{"pdf by extension", "application/octet-stream", "https://example.com/guide.PDF", nil, FormatPDF},
		{"markdown labelled plain", "text/plain", "https://example.com/readme.md", nil, FormatMarkdown},
		{"csv is text", "text/csv", "", nil, FormatText},
		{"sniffed html", "", "https://example.com/", []byte("<html><body>hi</body></html>"), FormatHTML},
		{"docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", "", nil, FormatDOCX},
		{"xlsm by extension", "", "https://example.com/list.xlsm", nil, FormatXLSM},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectFormat(tt.contentType, tt.url, tt.body)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractRunsDOCX(t *testing.T) {
	xmlContent := `<w:body><w:p><w:r><w:t>Kaito &amp; Mira</w:t></w:r><w:r><w:t xml:space="preserve"> meet</w:t></w:r></w:p><w:p><w:r><w:t>again</w:t></w:r></w:p></w:body>`
	paragraphs := docxParagraphRe.FindAllString(xmlContent, -1)
	require.Len(t, paragraphs, 2)
	assert.Equal(t, "Kaito & Mira meet", extractRuns(paragraphs[0], docxRunRe, ""))
	assert.Equal(t, "again", extractRuns(paragraphs[1], docxRunRe, ""))
}

func TestExtractTextPPTX(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	slides := map[string]string{
		"ppt/slides/slide1.xml":            `<p:sld><a:t>Episode guide</a:t><a:t>Season 1</a:t></p:sld>`,
		"ppt/slides/_rels/slide1.xml.rels": `<a:t>ignored</a:t>`,
	}
	for name, body := range slides {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	text, err := ExtractText(buf.Bytes(), "", "https://example.com/deck.pptx")
	require.NoError(t, err)
	assert.Equal(t, "Episode guide Season 1", text)
}

func TestExtractTextPPTXSlideOrder(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, n := range []string{"10", "2", "1"} {
		w, err := zw.Create("ppt/slides/slide" + n + ".xml")
		require.NoError(t, err)
		_, err = w.Write([]byte("<p:sld><a:t>Slide " + n + "</a:t></p:sld>"))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	text, err := parsePPTX(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "Slide 1\n\nSlide 2\n\nSlide 10", text)
}

func TestExtractTextXLSX(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Episodes")
	require.NoError(t, err)
	row := sheet.AddRow()
	row.AddCell().SetString("1")
	row.AddCell().SetString("The Beginning")

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	text, err := ExtractText(buf.Bytes(), "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "")
	require.NoError(t, err)
	assert.Equal(t, "## Sheet: Episodes\n1\tThe Beginning", text)
}

func TestExtractTextWorkbookWithExcelize(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Kaito"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "Lead"))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	text, err := ExtractText(buf.Bytes(), "", "https://example.com/cast.xlsm")
	require.NoError(t, err)
	assert.Equal(t, "## Sheet: Sheet1\nKaito\tLead", text)
}

func TestExtractTextODSUnsupported(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("content.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte("<office:document-content/>"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = ExtractText(buf.Bytes(), "application/vnd.oasis.opendocument.spreadsheet", "https://example.com/list.ods")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported content type")
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "", normalizeText(" \n\t\n "))
	assert.Equal(t, "a b\n\nc", normalizeText("\n\n a   b \n \n\n c \n\n"))
	assert.Equal(t, "a\nb", normalizeText("a\r\nb"))
}
