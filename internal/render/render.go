// Package render converts backend responses and classified failures
// into conversation turns. Every function here is a pure mapping of its
// input; no state, no I/O.
package render

import (
	"fmt"
	"strings"
	"time"

	"CampusChat/internal/api"
	"CampusChat/internal/session"
)

// maxQueryVariants caps how many expanded search queries get displayed.
const maxQueryVariants = 3

// Answer maps a validated chat response to an assistant turn.
func Answer(resp *api.ChatResponse) session.Turn {
	var b strings.Builder
	b.WriteString(resp.Answer)

	if len(resp.Sources) > 0 {
		b.WriteString("\n\nSources:")
		for i, src := range resp.Sources {
			b.WriteString(fmt.Sprintf("\n  %d. %s (%s)", i+1, src.Title, Percent(src.Similarity)))
			if src.SourceURL != "" {
				b.WriteString("\n     " + src.SourceURL)
			}
		}
	}

	if resp.Confidence != nil {
		b.WriteString(fmt.Sprintf("\n\nConfidence: %s (%.2f)", Band(*resp.Confidence), *resp.Confidence))
	}

	if len(resp.SearchQueries) > 0 {
		b.WriteString("\n\nQueries tried:")
		for i, q := range resp.SearchQueries {
			if i >= maxQueryVariants {
				break
			}
			b.WriteString(fmt.Sprintf("\n  %d. %s", i+1, q))
		}
	}

	turn := session.Turn{
		Role:       session.RoleAssistant,
		Text:       b.String(),
		Timestamp:  time.Now(),
		Confidence: resp.Confidence,
	}
	for _, src := range resp.Sources {
		turn.Sources = append(turn.Sources, session.SourceRef{
			Title:      src.Title,
			URL:        src.SourceURL,
			Similarity: src.Similarity,
		})
	}
	if resp.RetrievalMethod != "" {
		turn.Diagnostics = map[string]string{"retrieval_method": resp.RetrievalMethod}
	}
	return turn
}

// SearchResults maps a search response to a single assistant turn
// listing the ranked documents in the backend's order.
func SearchResults(query string, resp *api.SearchResponse) session.Turn {
	if len(resp.Documents) == 0 {
		return session.Turn{
			Role:      session.RoleAssistant,
			Text:      fmt.Sprintf("No results for %q.", query),
			Timestamp: time.Now(),
		}
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Top results for %q:", query))
	for i, doc := range resp.Documents {
		b.WriteString(fmt.Sprintf("\n  %d. %s — %s", i+1, doc.Title, Percent(doc.Similarity)))
		if doc.SourceURL != "" {
			b.WriteString("\n     " + doc.SourceURL)
		}
	}

	turn := session.Turn{
		Role:      session.RoleAssistant,
		Text:      b.String(),
		Timestamp: time.Now(),
	}
	for _, doc := range resp.Documents {
		turn.Sources = append(turn.Sources, session.SourceRef{
			Title:      doc.Title,
			URL:        doc.SourceURL,
			Similarity: doc.Similarity,
		})
	}
	return turn
}

// Failure maps a classified dispatch error to a generic assistant turn.
// The classification lands in the turn's diagnostics, never in the text
// shown to the user.
func Failure(err error) session.Turn {
	de := api.AsDispatchError(err)

	var text string
	switch de.Kind {
	case api.KindTimeout:
		text = "That took too long to answer. Please try again."
	case api.KindNetworkUnreachable:
		text = "I can't reach the campus knowledge base right now. Please try again in a moment."
	default:
		text = "Sorry, something went wrong answering that. Please try again."
	}

	diag := map[string]string{"error_kind": de.Kind.String()}
	if de.Status != 0 {
		diag["status"] = fmt.Sprintf("%d", de.Status)
	}
	if de.Detail != "" {
		diag["detail"] = de.Detail
	}

	return session.Turn{
		Role:        session.RoleAssistant,
		Text:        text,
		Timestamp:   time.Now(),
		Diagnostics: diag,
	}
}

// Band classifies a confidence score. The thresholds are strict
// greater-than: exactly 0.7 is medium and exactly 0.4 is low.
func Band(confidence float64) string {
	switch {
	case confidence > 0.7:
		return "high"
	case confidence > 0.4:
		return "medium"
	default:
		return "low"
	}
}

// Percent formats a [0,1] score as a percentage with one decimal place.
func Percent(score float64) string {
	return fmt.Sprintf("%.1f%%", score*100)
}
