package source

import (
	"log"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/xhad/lectern/internal/textutil"
)

// cleanText strips any markup a provider left in an abstract (JATS tags,
// entities) and collapses whitespace.
func cleanText(content string) string {
	if strings.ContainsAny(content, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
		if err != nil {
			log.Printf("Warning: failed to parse abstract markup: %v", err)
		} else {
			content = doc.Text()
		}
	}
	return textutil.SanitizeUTF8(textutil.CollapseSpace(content))
}

// recordID returns the provider id, or a stable name-based UUID derived
// from the DOI or title when the provider sent none.
func recordID(id, doi, title string) string {
	if id != "" {
		return id
	}
	key := doi
	if key == "" {
		key = title
	}
	if key == "" {
		return ""
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}
