package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const docxBody = "word/document.xml"

// extractDocx reads the body of a Word document. Paragraphs are separated
// by blank lines and table rows are rendered with " | " between cells.
func extractDocx(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open docx archive: %w", err)
	}
	var body *zip.File
	for _, f := range zr.File {
		if f.Name == docxBody {
			body = f
			break
		}
	}
	if body == nil {
		return "", errors.New("docx archive has no " + docxBody)
	}
	rc, err := body.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", docxBody, err)
	}
	defer rc.Close()

	var (
		paragraphs []string
		para       strings.Builder
		cell       []string
		row        []string
		inText     bool
		cellDepth  int
	)
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", docxBody, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab", "br", "cr":
				para.WriteByte(' ')
			case "p":
				para.Reset()
			case "tc":
				cellDepth++
				cell = cell[:0]
			case "tr":
				row = row[:0]
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				text := strings.Join(strings.Fields(para.String()), " ")
				if text == "" {
					continue
				}
				if cellDepth > 0 {
					cell = append(cell, text)
				} else {
					paragraphs = append(paragraphs, text)
				}
			case "tc":
				cellDepth--
				if c := strings.Join(cell, " "); c != "" {
					row = append(row, c)
				}
			case "tr":
				if len(row) > 0 {
					paragraphs = append(paragraphs, strings.Join(row, " | "))
				}
			}
		}
	}
	return strings.Join(paragraphs, "\n\n"), nil
}
