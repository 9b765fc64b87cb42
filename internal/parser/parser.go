package parser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"mime"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

type Format string

const (
	FormatHTML     Format = "html"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
	FormatPDF      Format = "pdf"
	FormatDOCX     Format = "docx"
	FormatPPTX     Format = "pptx"
	FormatXLSX     Format = "xlsx"
	FormatXLSM     Format = "xlsm"
)

var mediaTypes = map[string]Format{
	"text/html":             FormatHTML,
	"application/xhtml+xml": FormatHTML,
	"text/markdown":         FormatMarkdown,
	"text/x-markdown":       FormatMarkdown,
	"text/plain":            FormatText,
	"application/pdf":       FormatPDF,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   FormatDOCX,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": FormatPPTX,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         FormatXLSX,
	"application/vnd.ms-excel.sheet.macroEnabled.12":                            FormatXLSM,
}

var extensions = map[string]Format{
	".html":     FormatHTML,
	".htm":      FormatHTML,
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".txt":      FormatText,
	".pdf":      FormatPDF,
	".docx":     FormatDOCX,
	".pptx":     FormatPPTX,
	".xlsx":     FormatXLSX,
	".xlsm":     FormatXLSM,
}

// DetectFormat picks a format from the Content-Type header, then the URL
// extension, then the body itself.
func DetectFormat(contentType, rawURL string, body []byte) (Format, error) {
	mediaType := ""
	if contentType != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		if err == nil {
			mediaType = strings.ToLower(mt)
		}
	}

	// plain text servers often label markdown as text/plain
	if f, ok := extensionFormat(rawURL); ok && (mediaType == "" || mediaType == "application/octet-stream" ||
		(mediaType == "text/plain" && f == FormatMarkdown)) {
		return f, nil
	}
	if f, ok := mediaTypes[mediaType]; ok {
		return f, nil
	}
	if mediaType == "" || mediaType == "application/octet-stream" {
		sniffed, _, _ := mime.ParseMediaType(http.DetectContentType(body))
		if f, ok := mediaTypes[sniffed]; ok {
			return f, nil
		}
	}
	if strings.HasPrefix(mediaType, "text/") {
		return FormatText, nil
	}
	return "", fmt.Errorf("unsupported content type: %q", contentType)
}

func extensionFormat(rawURL string) (Format, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	f, ok := extensions[strings.ToLower(path.Ext(u.Path))]
	return f, ok
}

// ExtractText returns the visible text of body. The result may be empty.
func ExtractText(body []byte, contentType, rawURL string) (string, error) {
	format, err := DetectFormat(contentType, rawURL, body)
	if err != nil {
		return "", err
	}
	switch format {
	case FormatHTML:
		return htmlToText(body)
	case FormatMarkdown:
		return markdownToText(body)
	case FormatText:
		return normalizeText(string(body)), nil
	case FormatPDF:
		return parsePDF(body)
	case FormatDOCX:
		return parseDOCX(body)
	case FormatPPTX:
		return parsePPTX(body)
	case FormatXLSX:
		return parseXLSX(body)
	case FormatXLSM:
		return parseWorkbook(body)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

const (
	hiddenSelector    = "head, script, style, noscript, template, svg, iframe"
	paragraphSelector = "p, div, section, article, header, footer, main, aside, nav, blockquote, pre, table, ul, ol, dl, h1, h2, h3, h4, h5, h6"
	lineSelector      = "li, tr, dt, dd, td, th"
)

func htmlToText(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %v", err)
	}
	doc.Find(hiddenSelector).Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find(lineSelector).Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" \n")
	})
	doc.Find(paragraphSelector).Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n\n")
	})
	return normalizeText(doc.Text()), nil
}

func markdownToText(body []byte) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var buf bytes.Buffer
	if err := md.Convert(body, &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %v", err)
	}
	return htmlToText(buf.Bytes())
}

// normalizeText collapses whitespace inside lines and runs of blank lines
// into a single paragraph break.
func normalizeText(s string) string {
	var out []string
	blank := false
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blank = len(out) > 0
			continue
		}
		if blank {
			out = append(out, "")
			blank = false
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func parsePDF(body []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %v", err)
	}

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to read pdf page %d: %v", i, err)
		}
		if t := normalizeText(pageText); t != "" {
			pages = append(pages, t)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

var (
	docxParagraphRe = regexp.MustCompile(`(?s)<w:p[ >].*?</w:p>`)
	docxRunRe       = regexp.MustCompile(`(?s)<w:t(?: [^>]*)?>(.*?)</w:t>`)
	pptxSlideRe     = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	pptxRunRe       = regexp.MustCompile(`(?s)<a:t(?: [^>]*)?>(.*?)</a:t>`)
)

func parseDOCX(body []byte) (string, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", fmt.Errorf("failed to open docx: %v", err)
	}
	defer r.Close()

	content := r.Editable().GetContent()
	var paragraphs []string
	for _, p := range docxParagraphRe.FindAllString(content, -1) {
		if t := extractRuns(p, docxRunRe, ""); t != "" {
			paragraphs = append(paragraphs, t)
		}
	}
	return strings.Join(paragraphs, "\n\n"), nil
}

func parsePPTX(body []byte) (string, error) {
	f, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", fmt.Errorf("failed to open pptx: %v", err)
	}

	type slide struct {
		num  int
		file *zip.File
	}
	var files []slide
	for _, file := range f.File {
		m := pptxSlideRe.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		files = append(files, slide{num: num, file: file})
	}
	// zip entry order is not slide order
	sort.Slice(files, func(i, j int) bool { return files[i].num < files[j].num })

	var slides []string
	for _, s := range files {
		rc, err := s.file.Open()
		if err != nil {
			continue
		}
		var buf bytes.Buffer
		_, err = buf.ReadFrom(rc)
		rc.Close()
		if err != nil {
			continue
		}
		if t := extractRuns(buf.String(), pptxRunRe, " "); t != "" {
			slides = append(slides, t)
		}
	}
	return strings.Join(slides, "\n\n"), nil
}

// extractRuns joins the text of every run matched by re
func extractRuns(xmlContent string, re *regexp.Regexp, sep string) string {
	var parts []string
	for _, m := range re.FindAllStringSubmatch(xmlContent, -1) {
		parts = append(parts, html.UnescapeString(m[1]))
	}
	return strings.Join(strings.Fields(strings.Join(parts, sep)), " ")
}

func parseXLSX(body []byte) (string, error) {
	f, err := xlsx.OpenBinary(body)
	if err != nil {
		// excelize reads some workbooks xlsx rejects
		if text, werr := parseWorkbook(body); werr == nil {
			return text, nil
		}
		return "", fmt.Errorf("failed to open xlsx: %v", err)
	}

	var sheets []string
	for _, sheet := range f.Sheets {
		var rows [][]string
		for _, row := range sheet.Rows {
			var cells []string
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			rows = append(rows, cells)
		}
		if t := sheetText(sheet.Name, rows); t != "" {
			sheets = append(sheets, t)
		}
	}
	return strings.Join(sheets, "\n\n"), nil
}

// parseWorkbook reads any OOXML workbook with excelize, including macro-enabled ones
func parseWorkbook(body []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to open workbook: %v", err)
	}
	defer f.Close()

	var sheets []string
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		if t := sheetText(sheetName, rows); t != "" {
			sheets = append(sheets, t)
		}
	}
	return strings.Join(sheets, "\n\n"), nil
}

func sheetText(name string, rows [][]string) string {
	var text strings.Builder
	for _, row := range rows {
		line := strings.TrimSpace(strings.Join(row, "\t"))
		if line == "" {
			continue
		}
		text.WriteString(line)
		text.WriteString("\n")
	}
	if text.Len() == 0 {
		return ""
	}
	return fmt.Sprintf("## Sheet: %s\n%s", name, strings.TrimRight(text.String(), "\n"))
}
