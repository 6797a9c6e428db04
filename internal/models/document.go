package models

import "strings"

// DocumentRecord is the normalized shape every source produces.
type DocumentRecord struct {
	ID       string
	Title    string
	Text     string
	Metadata Metadata
}

// RetrievalHit is a single nearest-neighbour match returned by the index.
type RetrievalHit struct {
	ID       string
	Document string
	Metadata Metadata
	// Distance is nil when the backend cannot report one.
	Distance *float64
}

// Title returns the hit's title metadata, falling back to its id.
func (h RetrievalHit) Title() string {
	if t := h.Metadata.String("title"); t != "" {
		return t
	}
	return h.ID
}

// SourceURL returns the DOI or URL the hit was ingested with.
func (h RetrievalHit) SourceURL() string {
	if doi := h.Metadata.String("doi"); doi != "" {
		return doi
	}
	return h.Metadata.String("url")
}

// Links holds the two library search URLs derived from a title or question.
type Links struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
}

var idReplacer = strings.NewReplacer("/", "_", ":", "_")

// SanitizeID turns a provider id such as "https://openalex.org/W1" into a
// storage-safe key by replacing path and scheme separators.
func SanitizeID(id string) string {
	return idReplacer.Replace(id)
}
