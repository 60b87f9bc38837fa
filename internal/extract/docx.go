package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	docxDefaultMainPart = "word/document.xml"
	contentTypesPart    = "[Content_Types].xml"
	docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
	wordprocessingNS    = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
)

// overrideRe matches one Override element of [Content_Types].xml regardless of attribute order.
var overrideRe = regexp.MustCompile(`<Override\s[^>]*>`)

var (
	partNameAttr    = regexp.MustCompile(`PartName="([^"]+)"`)
	contentTypeAttr = regexp.MustCompile(`ContentType="([^"]+)"`)
)

// docxMainPart returns the main document part named in [Content_Types].xml, or the
// conventional word/document.xml when the package does not declare one.
func docxMainPart(zr *zip.Reader) string {
	raw, err := readZipPart(zr, contentTypesPart)
	if err != nil {
		return docxDefaultMainPart
	}
	for _, override := range overrideRe.FindAllString(string(raw), -1) {
		ct := contentTypeAttr.FindStringSubmatch(override)
		pn := partNameAttr.FindStringSubmatch(override)
		if len(ct) > 1 && len(pn) > 1 && ct[1] == docxMainContentType {
			return strings.TrimPrefix(pn[1], "/")
		}
	}
	return docxDefaultMainPart
}

func readZipPart(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s not found", name)
}

// extractDOCX walks the main document XML and keeps the text of <w:t> runs.
// Each <w:p> becomes one line, <w:tab/> a tab and <w:br/> a line break.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}
	body, err := readZipPart(zr, docxMainPart(zr))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: %w", err)
	}

	dec := xml.NewDecoder(bytes.NewReader(body))
	var (
		out       strings.Builder
		paragraph strings.Builder
		inText    bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("extract DOCX: parse: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != wordprocessingNS {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				paragraph.WriteByte('\t')
			case "br", "cr":
				paragraph.WriteByte('\n')
			}
		case xml.EndElement:
			if t.Name.Space != wordprocessingNS {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if line := strings.TrimSpace(paragraph.String()); line != "" {
					if out.Len() > 0 {
						out.WriteByte('\n')
					}
					out.WriteString(line)
				}
				paragraph.Reset()
			}
		case xml.CharData:
			if inText {
				paragraph.Write(t)
			}
		}
	}
	return out.String(), nil
}
