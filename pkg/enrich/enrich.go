package enrich

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xhad/lectern/internal/models"
	"github.com/xhad/lectern/internal/types"
)

const (
	UnpaywallBaseURL       = "https://api.unpaywall.org/v2"
	SemanticScholarBaseURL = "https://api.semanticscholar.org/graph/v1"

	// FreePDFKey is the metadata field an enrichment hit is stored under.
	FreePDFKey = "free_pdf"
)

type Config struct {
	UnpaywallBaseURL string
	S2BaseURL        string
	// Email identifies the caller to Unpaywall.
	Email string
	// Timeout bounds each provider call on its own.
	Timeout     time.Duration
	Concurrency int
	HTTPClient  *http.Client
	Verbose     bool
}

// Enricher attaches open-access PDF links to result metadata. Provider
// failures only ever mean "no link".
type Enricher struct {
	config Config
	client *http.Client
}

var _ types.Enricher = (*Enricher)(nil)

func NewWithConfig(config Config) *Enricher {
	if config.UnpaywallBaseURL == "" {
		config.UnpaywallBaseURL = UnpaywallBaseURL
	}
	if config.S2BaseURL == "" {
		config.S2BaseURL = SemanticScholarBaseURL
	}
	if config.Email == "" {
		config.Email = "lectern@research.app"
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 8
	}
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Enricher{config: config, client: client}
}

// Enrich returns a copy of sources in the same order, with free_pdf set
// where a link was found. Nil entries stay nil. Entries are looked up
// concurrently.
func (e *Enricher) Enrich(ctx context.Context, sources []models.Metadata) []models.Metadata {
	out := make([]models.Metadata, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Concurrency)

	for i, src := range sources {
		if src == nil {
			continue
		}
		g.Go(func() error {
			enriched := src.Clone()
			if pdf := e.Lookup(gctx, src); pdf != "" {
				enriched[FreePDFKey] = models.StringValue(pdf)
			}
			out[i] = enriched
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// Lookup runs the provider cascade for one entry: Unpaywall by DOI, then
// Semantic Scholar by DOI, then Semantic Scholar by title.
func (e *Enricher) Lookup(ctx context.Context, meta models.Metadata) string {
	if doi, ok := DOI(meta); ok {
		if pdf := e.unpaywall(ctx, doi); pdf != "" {
			return pdf
		}
		if pdf := e.s2ByDOI(ctx, doi); pdf != "" {
			return pdf
		}
	}

	if title := meta.String("title"); title != "" {
		return e.s2ByTitle(ctx, title)
	}
	return ""
}

var doiPrefixes = []string{
	"https://doi.org/",
	"http://doi.org/",
	"https://dx.doi.org/",
	"http://dx.doi.org/",
}

// DOI extracts a bare DOI from the doi field, or the url field when doi is
// empty. Only values that are bare "10." identifiers or doi.org URLs count.
func DOI(meta models.Metadata) (string, bool) {
	candidate := meta.String("doi")
	if candidate == "" {
		candidate = meta.String("url")
	}
	if !strings.Contains(candidate, "doi.org") && !strings.HasPrefix(candidate, "10.") {
		return "", false
	}
	for _, prefix := range doiPrefixes {
		candidate = strings.TrimPrefix(candidate, prefix)
	}
	if candidate == "" {
		return "", false
	}
	return candidate, true
}

type oaLocation struct {
	URLForPDF string `json:"url_for_pdf"`
}

type unpaywallResponse struct {
	BestOALocation *oaLocation  `json:"best_oa_location"`
	OALocations    []oaLocation `json:"oa_locations"`
}

func (e *Enricher) unpaywall(ctx context.Context, doi string) string {
	endpoint := strings.TrimRight(e.config.UnpaywallBaseURL, "/") + "/" + url.PathEscape(doi) +
		"?email=" + url.QueryEscape(e.config.Email)

	var data unpaywallResponse
	if !e.getJSON(ctx, endpoint, &data) {
		return ""
	}
	if data.BestOALocation != nil && data.BestOALocation.URLForPDF != "" {
		e.debugf("Unpaywall: found PDF for DOI %s", doi)
		return data.BestOALocation.URLForPDF
	}
	for _, loc := range data.OALocations {
		if loc.URLForPDF != "" {
			e.debugf("Unpaywall: found PDF for DOI %s", doi)
			return loc.URLForPDF
		}
	}
	return ""
}

type s2OpenAccess struct {
	OpenAccessPDF *struct {
		URL string `json:"url"`
	} `json:"openAccessPdf"`
}

func (o s2OpenAccess) url() string {
	if o.OpenAccessPDF == nil {
		return ""
	}
	return o.OpenAccessPDF.URL
}

func (e *Enricher) s2ByDOI(ctx context.Context, doi string) string {
	endpoint := strings.TrimRight(e.config.S2BaseURL, "/") + "/paper/DOI:" + url.PathEscape(doi) +
		"?fields=openAccessPdf"

	var data s2OpenAccess
	if !e.getJSON(ctx, endpoint, &data) {
		return ""
	}
	if pdf := data.url(); pdf != "" {
		e.debugf("Semantic Scholar: found PDF for DOI %s", doi)
		return pdf
	}
	return ""
}

func (e *Enricher) s2ByTitle(ctx context.Context, title string) string {
	params := url.Values{}
	params.Set("query", title)
	params.Set("fields", "openAccessPdf")
	params.Set("limit", "1")
	endpoint := strings.TrimRight(e.config.S2BaseURL, "/") + "/paper/search?" + params.Encode()

	var data struct {
		Data []s2OpenAccess `json:"data"`
	}
	if !e.getJSON(ctx, endpoint, &data) || len(data.Data) == 0 {
		return ""
	}
	if pdf := data.Data[0].url(); pdf != "" {
		e.debugf("Semantic Scholar: found PDF for title %q", title)
		return pdf
	}
	return ""
}

// getJSON issues a GET bounded by the per-call timeout. Any failure,
// including a non-200 status, reports false.
func (e *Enricher) getJSON(ctx context.Context, endpoint string, out any) bool {
	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		e.debugf("PDF lookup request failed for %s: %v", endpoint, err)
		return false
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		e.debugf("PDF lookup failed for %s: %v", endpoint, err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		e.debugf("PDF lookup got status %d for %s", resp.StatusCode, endpoint)
		return false
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		e.debugf("PDF lookup returned malformed JSON for %s: %v", endpoint, err)
		return false
	}
	return true
}

func (e *Enricher) debugf(format string, args ...any) {
	if e.config.Verbose {
		log.Printf(format, args...)
	}
}
