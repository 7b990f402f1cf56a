package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	rpdf "rsc.io/pdf"
)

// 10 MB is generous for guidance documents; anything bigger is a prospectus
// or annual report and not worth scanning.
const maxGuidancePDFBytes = 10 << 20

// ExtractPDFDeadline downloads a guidance PDF and scans its text for the
// earliest future deadline. Returns nil with no error when the document has
// no recognizable date.
func ExtractPDFDeadline(ctx context.Context, fetcher Fetcher, pdfURL string, now time.Time) (*time.Time, error) {
	doc, err := fetcher.Fetch(ctx, pdfURL)
	if err != nil {
		return nil, err
	}
	defer doc.Body.Close()

	content, err := io.ReadAll(io.LimitReader(doc.Body, maxGuidancePDFBytes))
	if err != nil {
		return nil, fmt.Errorf("reading pdf: %w", err)
	}

	text, err := extractPDFText(content)
	if err != nil {
		return nil, err
	}

	return FindDeadlineInText(strings.ToLower(text), now), nil
}

// extractPDFText pulls the text fragments from every page. The parser panics
// on some malformed PDFs in the wild, so the panic is converted to an error.
func extractPDFText(content []byte) (text string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("pdf parser panic: %v", recovered)
			text = ""
		}
	}()

	reader, err := rpdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	var builder strings.Builder
	for pageIndex := 1; pageIndex <= reader.NumPage(); pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		for _, fragment := range page.Content().Text {
			builder.WriteString(fragment.S)
			builder.WriteString(" ")
		}
		builder.WriteString("\n")
	}

	return builder.String(), nil
}
