package llm_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/xhad/lectern/internal/models"
	"github.com/xhad/lectern/internal/types"
	"github.com/xhad/lectern/pkg/llm"
)

type fakeModel struct {
	response *llms.ContentResponse
	err      error
	chunks   []string

	prompt  string
	options llms.CallOptions
	calls   int
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.calls++
	for _, opt := range options {
		opt(&m.options)
	}
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				m.prompt += text.Text
			}
		}
	}
	if m.options.StreamingFunc != nil {
		for _, c := range m.chunks {
			if err := m.options.StreamingFunc(ctx, []byte(c)); err != nil {
				return nil, err
			}
		}
	}
	return m.response, m.err
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

type usageCall struct {
	key    string
	tokens int
}

type fakeGate struct {
	mu        sync.Mutex
	allowance types.Allowance
	checkErr  error
	recordErr error
	checks    int
	records   []usageCall
}

func (g *fakeGate) CheckAllowed() (types.Allowance, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checks++
	return g.allowance, g.checkErr
}

func (g *fakeGate) Record(key string, tokens int) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.records = append(g.records, usageCall{key, tokens})
	return float64(tokens) / 1_000_000, g.recordErr
}

func sampleHits() []models.RetrievalHit {
	d1, d2, d3, d4 := 0.1, 0.2, 0.3, 0.4
	return []models.RetrievalHit{
		{
			ID:       "W1",
			Document: strings.Repeat("a", 2000),
			Metadata: models.Metadata{
				"title":    models.StringValue("Grace and Nature"),
				"doi":      models.StringValue("https://doi.org/10.1/grace"),
				"free_pdf": models.StringValue("https://example.org/grace.pdf"),
			},
			Distance: &d1,
		},
		{
			ID:       "W2",
			Document: "The covenant of works.",
			Metadata: models.Metadata{
				"title": models.StringValue("Covenant Theology"),
				"url":   models.StringValue("https://openalex.org/W2"),
			},
			Distance: &d2,
		},
		{
			ID:       "W3",
			Document: "Third.",
			Metadata: models.Metadata{"title": models.StringValue("Third Source")},
			Distance: &d3,
		},
		{
			ID:       "W4",
			Document: "Fourth.",
			Metadata: models.Metadata{"title": models.StringValue("Fourth Source")},
			Distance: &d4,
		},
	}
}

func TestNewWithConfig(t *testing.T) {
	composer, err := llm.NewWithConfig(llm.ChatConfig{Mode: llm.ModeAPI, Provider: llm.ProviderOpenAI})
	require.NoError(t, err)
	// No key: placeholder answers instead of an error.
	assert.False(t, composer.Generative())

	composer, err = llm.NewWithConfig(llm.ChatConfig{Mode: llm.ModeLocal, APIKey: "sk-test"})
	require.NoError(t, err)
	assert.False(t, composer.Generative())

	composer, err = llm.NewWithConfig(llm.ChatConfig{Mode: llm.ModeAPI, APIKey: "sk-test"})
	require.NoError(t, err)
	assert.True(t, composer.Generative())

	tooHot := 3.0
	_, err = llm.NewWithConfig(llm.ChatConfig{Temperature: &tooHot})
	assert.Error(t, err)

	_, err = llm.NewWithConfig(llm.ChatConfig{Mode: llm.ModeAPI, Provider: "anthropic", APIKey: "x"})
	assert.Error(t, err)
}

func TestPlaceholderAnswer(t *testing.T) {
	composer := llm.NewComposer(nil, llm.ChatConfig{})
	hits := sampleHits()

	answer := composer.Generate(context.Background(), "What is grace?", hits)

	assert.Contains(t, answer, "- [Grace and Nature](https://doi.org/10.1/grace)\n  "+strings.Repeat("a", 300)+"...")
	assert.Contains(t, answer, "- [Covenant Theology](https://openalex.org/W2)\n  The covenant of works....")
	assert.Contains(t, answer, "- [Third Source]()")
	assert.NotContains(t, answer, "Fourth Source")
	assert.Contains(t, answer, "**Have you considered?**")
	assert.Contains(t, answer, "[Grace and Nature]("+llm.LibraryLinks("Grace and Nature").Primary+") (OMNI)")
	assert.Contains(t, answer, "[Covenant Theology]("+llm.LibraryLinks("Covenant Theology").Secondary+") (JSTOR)")
	assert.NotContains(t, answer, llm.LibraryLinks("Third Source").Primary)
}

func TestPlaceholderIsDeterministic(t *testing.T) {
	composer := llm.NewComposer(nil, llm.ChatConfig{})
	hits := sampleHits()

	first := composer.Generate(context.Background(), "q", hits)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, composer.Generate(context.Background(), "q", hits))
	}
}

func TestPlaceholderWithoutHits(t *testing.T) {
	gate := &fakeGate{}
	composer := llm.NewComposer(nil, llm.ChatConfig{Gate: gate})

	answer := composer.Generate(context.Background(), "doctrine of God", nil)
	assert.Contains(t, answer, "No sources found.")
	assert.Contains(t, answer, "**Have you considered?**")
	assert.Contains(t, answer, llm.LibraryLinks("doctrine of God").Primary)
	// Placeholder mode never touches the budget.
	assert.Zero(t, gate.checks)
}

func TestGenerativeAnswer(t *testing.T) {
	model := &fakeModel{
		response: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
			Content: "  Grace perfects nature [OMNI](https://omni...).  \n",
			GenerationInfo: map[string]any{
				"PromptTokens":     1200,
				"CompletionTokens": 80,
			},
		}}},
	}
	gate := &fakeGate{allowance: types.Allowance{Allowed: true, Remaining: 4}}
	composer := llm.NewComposer(model, llm.ChatConfig{Model: "gpt-3.5-turbo", Gate: gate})

	answer := composer.Generate(context.Background(), "What is grace?", sampleHits())

	assert.Equal(t, "Grace perfects nature [OMNI](https://omni...).", answer)
	assert.Equal(t, 1, gate.checks)
	assert.Equal(t, []usageCall{
		{"gpt-3.5-turbo-input", 1200},
		{"gpt-3.5-turbo-output", 80},
	}, gate.records)

	assert.Equal(t, 512, model.options.MaxTokens)
	assert.Equal(t, 0.2, model.options.Temperature)
	assert.Contains(t, model.prompt, "USER QUESTION: What is grace?")
	assert.Contains(t, model.prompt, "Have you considered?")
	assert.Contains(t, model.prompt, "Free PDF: https://example.org/grace.pdf")
	assert.Contains(t, model.prompt, "Free PDF: Not available")
	assert.Contains(t, model.prompt, "OMNI Link: "+llm.LibraryLinks("Grace and Nature").Primary)
	// Excerpts are capped.
	assert.Contains(t, model.prompt, strings.Repeat("a", 1500))
	assert.NotContains(t, model.prompt, strings.Repeat("a", 1501))
}

func TestGenerativeHonoursZeroTemperature(t *testing.T) {
	model := &fakeModel{response: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "ok"}}}}
	zero := 0.0
	composer := llm.NewComposer(model, llm.ChatConfig{Temperature: &zero})

	composer.Generate(context.Background(), "What is grace?", sampleHits())

	assert.Equal(t, 0.0, model.options.Temperature)
}

func TestGenerativeBudgetExceeded(t *testing.T) {
	model := &fakeModel{}
	gate := &fakeGate{allowance: types.Allowance{
		Allowed: false,
		Message: "Monthly usage limit ($5.00) reached. Service will resume on November 1, 2026.",
	}}
	composer := llm.NewComposer(model, llm.ChatConfig{Gate: gate})

	answer := composer.Generate(context.Background(), "q", sampleHits())
	assert.Equal(t, gate.allowance.Message, answer)
	assert.Zero(t, model.calls)
	assert.Empty(t, gate.records)
}

func TestGenerativeBackendFailure(t *testing.T) {
	model := &fakeModel{err: errors.New("connection refused")}
	gate := &fakeGate{allowance: types.Allowance{Allowed: true}}
	composer := llm.NewComposer(model, llm.ChatConfig{Gate: gate})

	answer := composer.Generate(context.Background(), "q", sampleHits())
	assert.Equal(t, "Error calling OpenAI: connection refused", answer)
	assert.Empty(t, gate.records)

	empty := llm.NewComposer(&fakeModel{response: &llms.ContentResponse{}}, llm.ChatConfig{})
	assert.Contains(t, empty.Generate(context.Background(), "q", nil), "no response from model")
}

func TestUsageRecordFailureDoesNotChangeAnswer(t *testing.T) {
	model := &fakeModel{
		response: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
			Content:        "answer",
			GenerationInfo: map[string]any{"PromptTokens": 1, "CompletionTokens": 1},
		}}},
	}
	gate := &fakeGate{allowance: types.Allowance{Allowed: true}, recordErr: errors.New("disk full")}
	composer := llm.NewComposer(model, llm.ChatConfig{Gate: gate})

	assert.Equal(t, "answer", composer.Generate(context.Background(), "q", nil))
}

func TestGenerateStream(t *testing.T) {
	model := &fakeModel{
		chunks:   []string{"Grace ", "perfects ", "nature."},
		response: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "Grace perfects nature."}}},
	}
	composer := llm.NewComposer(model, llm.ChatConfig{})

	var got []string
	answer := composer.GenerateStream(context.Background(), "q", sampleHits(), func(chunk string) {
		got = append(got, chunk)
	})
	assert.Equal(t, "Grace perfects nature.", answer)
	assert.Equal(t, []string{"Grace ", "perfects ", "nature."}, got)

	placeholder := llm.NewComposer(nil, llm.ChatConfig{})
	got = nil
	answer = placeholder.GenerateStream(context.Background(), "q", nil, func(chunk string) {
		got = append(got, chunk)
	})
	assert.Equal(t, []string{answer}, got)
}

func TestLibraryLinks(t *testing.T) {
	links := llm.LibraryLinks("Grace & Nature / Aquinas")
	assert.Equal(t, "https://omni.scholarsportal.info/search?q=Grace+%26+Nature+%2F+Aquinas", links.Primary)
	assert.Equal(t, "https://www.jstor.org/action/doBasicSearch?Query=Grace+%26+Nature+%2F+Aquinas", links.Secondary)
}

func TestBuildPromptBlocks(t *testing.T) {
	hits := sampleHits()[1:2]
	prompt := llm.BuildPrompt("How?", hits, 10)

	block := "Source: Covenant Theology\n" +
		"Original URL: https://openalex.org/W2\n" +
		"OMNI Link: " + llm.LibraryLinks("Covenant Theology").Primary + "\n" +
		"JSTOR Link: " + llm.LibraryLinks("Covenant Theology").Secondary + "\n" +
		"Free PDF: Not available\n" +
		"The covena"
	assert.Contains(t, prompt, block)
}
