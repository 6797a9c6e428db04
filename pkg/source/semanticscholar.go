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
	SemanticScholarBaseURL = "https://api.semanticscholar.org/graph/v1"
	semanticScholarName    = "semanticscholar"
	semanticScholarFields  = "title,abstract,year,doi,url,externalIds"
)

type SemanticScholarConfig struct {
	BaseURL string
	APIKey  string
	// Keywords are appended to every query since the search endpoint has
	// no subject filter.
	Keywords   string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type SemanticScholar struct {
	config SemanticScholarConfig
	client *http.Client
}

var _ types.Source = (*SemanticScholar)(nil)

type s2SearchResponse struct {
	Data []s2Paper `json:"data"`
}

type s2Paper struct {
	PaperID     string `json:"paperId"`
	Title       string `json:"title"`
	Abstract    string `json:"abstract"`
	Year        int    `json:"year"`
	URL         string `json:"url"`
	ExternalIDs struct {
		DOI string `json:"DOI"`
	} `json:"externalIds"`
}

func NewSemanticScholar(config SemanticScholarConfig) *SemanticScholar {
	if config.BaseURL == "" {
		config.BaseURL = SemanticScholarBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	return &SemanticScholar{config: config, client: client}
}

func (s *SemanticScholar) Name() string {
	return semanticScholarName
}

func (s *SemanticScholar) Fetch(ctx context.Context, query string, maxResults int) ([]models.DocumentRecord, error) {
	q := query
	if s.config.Keywords != "" {
		q = strings.TrimSpace(query + " " + s.config.Keywords)
	}

	params := url.Values{}
	params.Set("query", q)
	params.Set("limit", strconv.Itoa(maxResults))
	params.Set("fields", semanticScholarFields)
	reqURL := strings.TrimRight(s.config.BaseURL, "/") + "/paper/search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &FetchError{Source: semanticScholarName, Query: query, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if s.config.APIKey != "" {
		req.Header.Set("x-api-key", s.config.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &FetchError{Source: semanticScholarName, Query: query, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &FetchError{
			Source:     semanticScholarName,
			Query:      query,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: %s", ErrUnexpectedStatus, strings.TrimSpace(string(body))),
		}
	}

	var data s2SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, &FetchError{Source: semanticScholarName, Query: query, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	records := make([]models.DocumentRecord, 0, len(data.Data))
	for _, paper := range data.Data {
		id := recordID(paper.PaperID, paper.ExternalIDs.DOI, paper.Title)
		if id == "" {
			log.Printf("Skipping Semantic Scholar paper without id, DOI or title")
			continue
		}

		link := paper.URL
		if link == "" {
			link = paper.ExternalIDs.DOI
		}

		records = append(records, models.DocumentRecord{
			ID:    id,
			Title: paper.Title,
			Text:  cleanText(paper.Abstract),
			Metadata: models.Metadata{
				"title": models.StringValue(paper.Title),
				"doi":   models.StringValue(paper.ExternalIDs.DOI),
				"year":  models.IntValue(int64(paper.Year)),
				"url":   models.StringValue(link),
			},
		})
	}
	return records, nil
}
