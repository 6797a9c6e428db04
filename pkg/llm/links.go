package llm

import (
	"net/url"

	"github.com/xhad/lectern/internal/models"
)

const (
	OmniSearchURL  = "https://omni.scholarsportal.info/search?q="
	JSTORSearchURL = "https://www.jstor.org/action/doBasicSearch?Query="
)

// LibraryLinks builds the OMNI (primary) and JSTOR (secondary) search URLs
// for a title or question.
func LibraryLinks(query string) models.Links {
	encoded := url.QueryEscape(query)
	return models.Links{
		Primary:   OmniSearchURL + encoded,
		Secondary: JSTORSearchURL + encoded,
	}
}
