package source

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"github.com/xhad/lectern/internal/models"
	"github.com/xhad/lectern/internal/textutil"
)

var doiPattern = regexp.MustCompile(`10\.\d{4,9}/[^\s<>"{}|\\^~\[\]` + "`" + `]+`)

type PDFOptions struct {
	// MaxPages bounds how much of the file is read; 0 reads everything.
	MaxPages int
	// MaxChars caps the indexed text.
	MaxChars int
}

// LoadPDF turns a local PDF into a record. The DOI found in the text, if
// any, becomes the id so a later API ingest of the same paper overwrites it.
func LoadPDF(path string, opts PDFOptions) (models.DocumentRecord, error) {
	if opts.MaxChars == 0 {
		opts.MaxChars = 8000
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return models.DocumentRecord{}, fmt.Errorf("failed to resolve path: %w", err)
	}

	raw, err := extractText(abs, opts.MaxPages)
	if err != nil {
		return models.DocumentRecord{}, fmt.Errorf("failed to read PDF %s: %w", abs, err)
	}
	if strings.TrimSpace(raw) == "" {
		return models.DocumentRecord{}, fmt.Errorf("no text extracted from %s", abs)
	}

	doi := findDOI(raw)
	title := titleFromText(raw)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	}

	fileURL := "file://" + filepath.ToSlash(abs)
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(fileURL)).String()
	link := fileURL
	if doi != "" {
		doi = "https://doi.org/" + doi
		id = doi
		link = doi
	}

	return models.DocumentRecord{
		ID:    id,
		Title: title,
		Text:  textutil.Truncate(textutil.SanitizeUTF8(textutil.CollapseSpace(raw)), opts.MaxChars),
		Metadata: models.Metadata{
			"title": models.StringValue(title),
			"doi":   models.StringValue(doi),
			"year":  models.IntValue(0),
			"url":   models.StringValue(link),
		},
	}, nil
}

func extractText(path string, maxPages int) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if maxPages <= 0 || maxPages > r.NumPage() {
		maxPages = r.NumPage()
	}

	var builder strings.Builder
	for i := 1; i <= maxPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		builder.WriteString(text)
		builder.WriteString("\n")
	}
	return builder.String(), nil
}

func findDOI(text string) string {
	for _, match := range doiPattern.FindAllString(text, -1) {
		match = strings.TrimRight(match, ".,;:)")
		slash := strings.Index(match, "/")
		if len(match) >= 10 && slash > 0 && slash < len(match)-1 {
			return match
		}
	}
	return ""
}

// titleFromText takes the first substantial line that does not look like a
// running header.
func titleFromText(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) <= 20 {
			continue
		}
		lower := strings.ToLower(line)
		if strings.Contains(lower, "journal") || strings.Contains(lower, "copyright") {
			continue
		}
		return line
	}
	return ""
}
