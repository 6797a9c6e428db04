package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/xhad/lectern/internal/models"
	"github.com/xhad/lectern/internal/types"
)

const (
	OpenAlexBaseURL = "https://api.openalex.org"
	openAlexName    = "openalex"
)

type OpenAlexConfig struct {
	BaseURL  string
	Concepts []string
	// Mailto opts into OpenAlex's polite pool.
	Mailto     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// OpenAlex searches OpenAlex works restricted to a set of concepts.
type OpenAlex struct {
	config OpenAlexConfig
	client *http.Client
}

var _ types.Source = (*OpenAlex)(nil)

type openAlexResponse struct {
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	ID                    string        `json:"id"`
	Title                 string        `json:"title"`
	DOI                   string        `json:"doi"`
	PublicationYear       int           `json:"publication_year"`
	AbstractInvertedIndex InvertedIndex `json:"abstract_inverted_index"`
	Abstract              string        `json:"abstract"`
}

func NewOpenAlex(config OpenAlexConfig) *OpenAlex {
	if config.BaseURL == "" {
		config.BaseURL = OpenAlexBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	return &OpenAlex{config: config, client: client}
}

func (o *OpenAlex) Name() string {
	return openAlexName
}

// Fetch performs a single search request and normalizes every work it
// returns. Works without a usable identifier are skipped.
func (o *OpenAlex) Fetch(ctx context.Context, query string, maxResults int) ([]models.DocumentRecord, error) {
	reqURL := o.searchURL(query, maxResults)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &FetchError{Source: openAlexName, Query: query, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, &FetchError{Source: openAlexName, Query: query, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &FetchError{
			Source:     openAlexName,
			Query:      query,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: %s", ErrUnexpectedStatus, strings.TrimSpace(string(body))),
		}
	}

	var data openAlexResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, &FetchError{Source: openAlexName, Query: query, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	records := make([]models.DocumentRecord, 0, len(data.Results))
	for _, work := range data.Results {
		record, ok := work.toRecord()
		if !ok {
			log.Printf("Skipping OpenAlex work without id, DOI or title")
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// searchURL keeps ':' and '|' literal in the filter, the form OpenAlex
// documents for OR-ed concept filters.
func (o *OpenAlex) searchURL(query string, perPage int) string {
	concepts := make([]string, len(o.config.Concepts))
	for i, c := range o.config.Concepts {
		concepts[i] = "https://openalex.org/" + c
	}

	params := []string{
		"search=" + escapeQuery(query),
		"per-page=" + strconv.Itoa(perPage),
	}
	if len(concepts) > 0 {
		params = append(params, "filter="+escapeQuery("concepts.id:"+strings.Join(concepts, "|")))
	}
	if o.config.Mailto != "" {
		params = append(params, "mailto="+escapeQuery(o.config.Mailto))
	}

	return strings.TrimRight(o.config.BaseURL, "/") + "/works?" + strings.Join(params, "&")
}

var literalReplacer = strings.NewReplacer("%3A", ":", "%7C", "|")

func escapeQuery(s string) string {
	return literalReplacer.Replace(url.QueryEscape(s))
}

func (w openAlexWork) toRecord() (models.DocumentRecord, bool) {
	id := recordID(w.ID, w.DOI, w.Title)
	if id == "" {
		return models.DocumentRecord{}, false
	}

	abstract := w.Abstract
	if len(w.AbstractInvertedIndex) > 0 {
		abstract = w.AbstractInvertedIndex.Text()
	}

	link := w.DOI
	if link == "" {
		link = id
	}

	return models.DocumentRecord{
		ID:    id,
		Title: w.Title,
		Text:  cleanText(abstract),
		Metadata: models.Metadata{
			"title": models.StringValue(w.Title),
			"doi":   models.StringValue(w.DOI),
			"year":  models.IntValue(int64(w.PublicationYear)),
			"url":   models.StringValue(link),
		},
	}, true
}
