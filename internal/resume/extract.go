// Package resume provides best-effort contact and text extraction from
// uploaded résumés.
package resume

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Supported MIME types.
const (
	MimePDF   = "application/pdf"
	MimeDOCX  = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeWord  = "application/msword"
	MimeText  = "text/plain"
	maxDocXML = 8 << 20
)

// ErrUnsupportedFormat is returned for MIME types the extractor does not read.
var ErrUnsupportedFormat = errors.New("unsupported resume format")

var (
	nameRegex  = regexp.MustCompile(`(?m)^([A-Z][a-z]+\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`)
	emailRegex = regexp.MustCompile(`[\w.-]+@[\w.-]+\.\w+`)
	phoneRegex = regexp.MustCompile(`(?:\+?\d{1,3}[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)

	// nonPrintable matches everything outside printable ASCII and newline.
	nonPrintable = regexp.MustCompile(`[^\x20-\x7E\n]`)
	xmlTag       = regexp.MustCompile(`<[^>]*>`)
	paragraphEnd = regexp.MustCompile(`</w:p>`)
	blankRuns    = regexp.MustCompile(`[ \t]{2,}`)
)

// Extracted is the result of reading a résumé. Absent fields are "".
type Extracted struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Text  string `json:"text"`
}

// Extract reads text and contact fields from data. Only the MIME type can
// make it fail; malformed content yields whatever text could be scraped.
func Extract(data []byte, mimeType string) (Extracted, error) {
	var text string
	switch normalizeMime(mimeType) {
	case MimePDF, MimeWord:
		text = scrapePrintable(data)
	case MimeDOCX:
		text = docxText(data)
	case MimeText:
		text = strings.ToValidUTF8(string(data), " ")
	default:
		return Extracted{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, mimeType)
	}

	out := ExtractFields(text)
	out.Text = text
	return out, nil
}

// ExtractFields applies the contact regexes to already extracted text.
func ExtractFields(text string) Extracted {
	var out Extracted
	if m := nameRegex.FindStringSubmatch(text); m != nil {
		out.Name = strings.TrimSpace(m[1])
	}
	out.Email = strings.TrimSpace(emailRegex.FindString(text))
	out.Phone = strings.TrimSpace(phoneRegex.FindString(text))
	return out
}

// MimeFromFilename guesses a supported MIME type from a file extension.
func MimeFromFilename(name string) string {
	switch {
	case hasSuffixFold(name, ".pdf"):
		return MimePDF
	case hasSuffixFold(name, ".docx"):
		return MimeDOCX
	case hasSuffixFold(name, ".doc"):
		return MimeWord
	case hasSuffixFold(name, ".txt"):
		return MimeText
	}
	return ""
}

func normalizeMime(m string) string {
	if mt, _, err := mime.ParseMediaType(m); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(m))
}

func scrapePrintable(data []byte) string {
	return nonPrintable.ReplaceAllString(strings.ToValidUTF8(string(data), " "), " ")
}

// docxText pulls the text runs out of word/document.xml. Anything that is not
// a readable zip falls back to a printable scrape.
func docxText(data []byte) string {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return scrapePrintable(data)
	}
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			break
		}
		raw, err := io.ReadAll(io.LimitReader(rc, maxDocXML))
		_ = rc.Close()
		if err != nil || !utf8.Valid(raw) {
			break
		}
		s := paragraphEnd.ReplaceAllString(string(raw), "\n")
		s = xmlTag.ReplaceAllString(s, " ")
		s = unescapeXML(s)
		s = blankRuns.ReplaceAllString(s, " ")
		lines := strings.Split(s, "\n")
		for i := range lines {
			lines[i] = strings.TrimSpace(lines[i])
		}
		return strings.TrimSpace(strings.Join(lines, "\n"))
	}
	return scrapePrintable(data)
}

var xmlEntities = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'")

func unescapeXML(s string) string {
	return xmlEntities.Replace(s)
}

func hasSuffixFold(s, suffix string) bool {
	return len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix)
}
