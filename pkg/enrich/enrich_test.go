package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/lectern/internal/models"
)

// fakeProviders serves both Unpaywall (/unpaywall) and Semantic Scholar
// (/s2) and records every request path in arrival order.
type fakeProviders struct {
	mu       sync.Mutex
	requests []string

	unpaywall map[string]string // DOI -> JSON body
	s2DOI     map[string]string
	s2Title   map[string]string
	delay     time.Duration
}

func (f *fakeProviders) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		f.mu.Lock()
		f.requests = append(f.requests, path+"?"+r.URL.RawQuery)
		f.mu.Unlock()

		if f.delay > 0 {
			select {
			case <-time.After(f.delay):
			case <-r.Context().Done():
				return
			}
		}

		var body string
		var ok bool
		switch {
		case strings.HasPrefix(path, "/unpaywall/"):
			assert.Equal(t, "tester@example.org", r.URL.Query().Get("email"))
			body, ok = f.unpaywall[strings.TrimPrefix(path, "/unpaywall/")]
		case strings.HasPrefix(path, "/s2/paper/DOI:"):
			assert.Equal(t, "openAccessPdf", r.URL.Query().Get("fields"))
			body, ok = f.s2DOI[strings.TrimPrefix(path, "/s2/paper/DOI:")]
		case path == "/s2/paper/search":
			assert.Equal(t, "1", r.URL.Query().Get("limit"))
			body, ok = f.s2Title[r.URL.Query().Get("query")]
		}
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	})
}

func (f *fakeProviders) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func newTestEnricher(t *testing.T, fake *fakeProviders, timeout time.Duration) *Enricher {
	t.Helper()
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)
	return NewWithConfig(Config{
		UnpaywallBaseURL: server.URL + "/unpaywall",
		S2BaseURL:        server.URL + "/s2",
		Email:            "tester@example.org",
		Timeout:          timeout,
		Concurrency:      4,
	})
}

func meta(kv ...string) models.Metadata {
	m := models.Metadata{}
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = models.StringValue(kv[i+1])
	}
	return m
}

func TestEnrichPreservesOrderAndNil(t *testing.T) {
	fake := &fakeProviders{
		unpaywall: map[string]string{
			"10.1/x": `{"best_oa_location": {"url_for_pdf": "https://oa.example/x.pdf"}}`,
		},
		s2Title: map[string]string{
			"Untitled Theology": `{"data": [{"openAccessPdf": {"url": "https://s2.example/t.pdf"}}]}`,
		},
	}
	e := newTestEnricher(t, fake, time.Second)

	input := []models.Metadata{
		nil,
		meta("title", "With DOI", "doi", "10.1/x"),
		meta("title", "Untitled Theology"),
	}
	out := e.Enrich(context.Background(), input)

	require.Len(t, out, 3)
	assert.Nil(t, out[0])
	assert.Equal(t, "https://oa.example/x.pdf", out[1].String(FreePDFKey))
	assert.Equal(t, "With DOI", out[1].String("title"))
	assert.Equal(t, "https://s2.example/t.pdf", out[2].String(FreePDFKey))

	// Inputs are not modified.
	_, touched := input[1][FreePDFKey]
	assert.False(t, touched)
}

func TestDOILookupPrecedesTitleSearch(t *testing.T) {
	fake := &fakeProviders{
		s2Title: map[string]string{
			"T": `{"data": [{"openAccessPdf": {"url": "https://s2.example/by-title.pdf"}}]}`,
		},
	}
	e := newTestEnricher(t, fake, time.Second)

	pdf := e.Lookup(context.Background(), meta("title", "T", "doi", "10.1/x"))
	assert.Equal(t, "https://s2.example/by-title.pdf", pdf)

	calls := fake.calls()
	require.Len(t, calls, 3)
	assert.True(t, strings.HasPrefix(calls[0], "/unpaywall/10.1/x?"), calls[0])
	assert.True(t, strings.HasPrefix(calls[1], "/s2/paper/DOI:10.1/x?"), calls[1])
	assert.True(t, strings.HasPrefix(calls[2], "/s2/paper/search?"), calls[2])
}

func TestCascadeStopsAtFirstHit(t *testing.T) {
	fake := &fakeProviders{
		unpaywall: map[string]string{
			"10.2/y": `{"best_oa_location": null, "oa_locations": [{"url_for_pdf": null}, {"url_for_pdf": "https://oa.example/second.pdf"}]}`,
		},
		s2DOI: map[string]string{
			"10.2/y": `{"openAccessPdf": {"url": "https://s2.example/never.pdf"}}`,
		},
	}
	e := newTestEnricher(t, fake, time.Second)

	pdf := e.Lookup(context.Background(), meta("title", "Y", "doi", "https://doi.org/10.2/y"))
	assert.Equal(t, "https://oa.example/second.pdf", pdf)
	assert.Len(t, fake.calls(), 1)
}

func TestSemanticScholarDOIFallback(t *testing.T) {
	fake := &fakeProviders{
		unpaywall: map[string]string{"10.3/z": `{"best_oa_location": {"url_for_pdf": ""}}`},
		s2DOI:     map[string]string{"10.3/z": `{"openAccessPdf": {"url": "https://s2.example/z.pdf"}}`},
	}
	e := newTestEnricher(t, fake, time.Second)

	// DOI taken from the url field when doi is empty.
	pdf := e.Lookup(context.Background(), meta("doi", "", "url", "http://doi.org/10.3/z"))
	assert.Equal(t, "https://s2.example/z.pdf", pdf)
}

func TestNothingFound(t *testing.T) {
	fake := &fakeProviders{}
	e := newTestEnricher(t, fake, time.Second)

	out := e.Enrich(context.Background(), []models.Metadata{
		meta("title", "Nowhere", "doi", "10.9/none"),
		meta("url", "https://openalex.org/W9"),
		{},
	})
	require.Len(t, out, 3)
	for _, m := range out {
		require.NotNil(t, m)
		_, ok := m[FreePDFKey]
		assert.False(t, ok)
	}
}

func TestTimeoutDegradesToNotFound(t *testing.T) {
	fake := &fakeProviders{
		delay:     500 * time.Millisecond,
		unpaywall: map[string]string{"10.1/slow": `{"best_oa_location": {"url_for_pdf": "https://late.pdf"}}`},
	}
	e := newTestEnricher(t, fake, 20*time.Millisecond)

	start := time.Now()
	out := e.Enrich(context.Background(), []models.Metadata{
		meta("title", "Slow", "doi", "10.1/slow"),
		meta("title", "Slow Too"),
	})
	elapsed := time.Since(start)

	require.Len(t, out, 2)
	assert.Empty(t, out[0].String(FreePDFKey))
	assert.Empty(t, out[1].String(FreePDFKey))
	// Three sequential lookups at most for the slowest entry.
	assert.Less(t, elapsed, 400*time.Millisecond)
}

func TestMalformedResponsesAreMisses(t *testing.T) {
	fake := &fakeProviders{
		unpaywall: map[string]string{"10.4/bad": `not json`},
		s2DOI:     map[string]string{"10.4/bad": `{"openAccessPdf": null}`},
		s2Title:   map[string]string{"Bad": `{"data": []}`},
	}
	e := newTestEnricher(t, fake, time.Second)

	assert.Empty(t, e.Lookup(context.Background(), meta("title", "Bad", "doi", "10.4/bad")))
}

func TestDOI(t *testing.T) {
	tests := []struct {
		name     string
		meta     models.Metadata
		expected string
		ok       bool
	}{
		{"bare", meta("doi", "10.1/x"), "10.1/x", true},
		{"https url", meta("doi", "https://doi.org/10.1/x"), "10.1/x", true},
		{"dx url", meta("doi", "http://dx.doi.org/10.1/x"), "10.1/x", true},
		{"from url field", meta("url", "https://doi.org/10.5/u"), "10.5/u", true},
		{"openalex url", meta("url", "https://openalex.org/W1"), "", false},
		{"empty", models.Metadata{}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doi, ok := DOI(tt.meta)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, doi)
		})
	}
}
