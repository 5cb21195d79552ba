package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/hybridrag/internal/search"
)

// FormatSearchResults formats results as markdown.
func FormatSearchResults(query string, results []search.Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d result", len(results))
	if len(results) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range results {
		formatResult(&sb, i+1, r)
	}
	return sb.String()
}

func formatResult(sb *strings.Builder, num int, r search.Result) {
	fmt.Fprintf(sb, "### %d. %s (score: %.2f)\n", num, SourceOf(r.ID), r.Score)
	fmt.Fprintf(sb, "*%s* · vector %.2f · lexical %.2f\n\n", matchReason(r), r.VectorScore, r.LexicalScore)
	for _, line := range strings.Split(r.Content, "\n") {
		sb.WriteString("> ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

// SourceOf returns the document part of a passage id ("dir/a.txt#3-abcd1234"
// yields "dir/a.txt"). Ids without a '#' are returned unchanged.
func SourceOf(id string) string {
	src, _, found := strings.Cut(id, "#")
	if !found {
		return id
	}
	return src
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, lo, hi int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < lo {
		return lo
	}
	if limit > hi {
		return hi
	}
	return limit
}

// ToSearchResultOutput converts a result to the structured output format.
func ToSearchResultOutput(r search.Result) SearchResultOutput {
	out := SearchResultOutput{
		ID:           r.ID,
		Content:      r.Content,
		Score:        r.Score,
		VectorScore:  r.VectorScore,
		LexicalScore: r.LexicalScore,
		MatchReason:  matchReason(r),
	}
	if src := SourceOf(r.ID); src != r.ID {
		out.Source = src
	}
	return out
}

// matchReason explains which signals contributed.
func matchReason(r search.Result) string {
	switch {
	case r.VectorScore > 0 && r.LexicalScore > 0:
		return "matched by keyword and semantic search"
	case r.LexicalScore > 0:
		return "keyword match"
	case r.VectorScore > 0:
		return "semantic match"
	default:
		return "weak match"
	}
}
