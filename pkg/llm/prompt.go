package llm

import (
	"fmt"
	"strings"

	"github.com/xhad/lectern/internal/models"
	"github.com/xhad/lectern/internal/textutil"
)

const (
	notAvailable       = "Not available"
	placeholderSources = 3
	placeholderExcerpt = 300
	relatedHeading     = "**Have you considered?**"
	noSourcesLine      = "No sources found."
)

const promptTemplate = `You are Lectern, a research assistant for theology, philosophy and biblical studies. Always answer the user's question before recommending any reading.

CONTEXT FROM RETRIEVED SOURCES:
%s

USER QUESTION: %s

INSTRUCTIONS:
1. Answer the question that was actually asked first. Be concise, draw on the context above and set out where scholars disagree.
2. When the question connects a concept to specific passages, explain the connection itself rather than summarising each passage.
3. Cite sources inline using the OMNI Link and JSTOR Link given for each source, never the Original URL.
4. Write every citation as a markdown link containing the full URL, starting with https://.
5. Use several sources when the context allows it.
6. If a source lists a Free PDF URL, include it in the Sources section. If it says "Not available", leave the Free PDF link out for that source.
7. Finish with a "Have you considered?" section suggesting ONE closely related topic, resource or line of research.

FORMAT YOUR RESPONSE AS:
[Your answer with inline citations]

**Sources:**
- [Source Title](OMNI Link) | [JSTOR](JSTOR Link) | [Free PDF](Free PDF URL)

**Have you considered?** [One related direction]

Use the real URLs from the context above; never leave placeholder text in links.`

// BuildPrompt renders one block per hit followed by the answering
// instructions. Each excerpt is capped at excerptChars characters.
func BuildPrompt(question string, hits []models.RetrievalHit, excerptChars int) string {
	blocks := make([]string, 0, len(hits))
	for _, hit := range hits {
		blocks = append(blocks, contextBlock(hit, excerptChars))
	}
	return fmt.Sprintf(promptTemplate, strings.Join(blocks, "\n\n"), question)
}

func contextBlock(hit models.RetrievalHit, excerptChars int) string {
	title := hit.Title()

	original := hit.SourceURL()
	if original == "" {
		original = "N/A"
	}

	var links models.Links
	if title != "" {
		links = LibraryLinks(title)
	}

	freePDF := hit.Metadata.String("free_pdf")
	if freePDF == "" {
		freePDF = notAvailable
	}

	return fmt.Sprintf("Source: %s\nOriginal URL: %s\nOMNI Link: %s\nJSTOR Link: %s\nFree PDF: %s\n%s",
		title, original, links.Primary, links.Secondary, freePDF,
		textutil.Truncate(hit.Document, excerptChars))
}

// placeholderAnswer lists the top hits and their library links without
// calling a model. Output depends only on its inputs.
func placeholderAnswer(question string, hits []models.RetrievalHit) string {
	top := hits
	if len(top) > placeholderSources {
		top = top[:placeholderSources]
	}

	var sb strings.Builder
	sb.WriteString("Based on the available research, here are relevant sources for your query:\n\n")

	if len(top) == 0 {
		sb.WriteString(noSourcesLine)
	}
	for i, hit := range top {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "- [%s](%s)\n  %s...", hit.Title(), hit.SourceURL(),
			textutil.Truncate(hit.Document, placeholderExcerpt))
	}

	sb.WriteString("\n\n")
	sb.WriteString(relatedHeading)

	related := top
	if len(related) > 2 {
		related = related[:2]
	}
	if len(related) == 0 {
		// Nothing retrieved: point at a library search for the question itself.
		links := LibraryLinks(question)
		fmt.Fprintf(&sb, "\n- [%s](%s) (OMNI)\n- [%s](%s) (JSTOR)", question, links.Primary, question, links.Secondary)
	}
	for _, hit := range related {
		title := hit.Title()
		links := LibraryLinks(title)
		fmt.Fprintf(&sb, "\n- [%s](%s) (OMNI)\n- [%s](%s) (JSTOR)", title, links.Primary, title, links.Secondary)
	}

	return sb.String()
}
