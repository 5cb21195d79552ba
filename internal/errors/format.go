package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

func asHybrid(err error) *HybridError {
	var he *HybridError
	if errors.As(err, &he) {
		return he
	}
	return Wrap(ErrCodeInternal, err)
}

// FormatForCLI renders err for terminal output:
//
//	Error: top_k must be at least 1
//	  Hint: pass --top-k 1 or larger
//	  Code: ERR_405_INVALID_TOP_K
//
// Fatal errors are labelled "Fatal:" instead.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}
	he := asHybrid(err)

	label := "Error"
	if IsFatal(he) {
		label = "Fatal"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s\n", label, he.Message)
	if len(he.Details) > 0 {
		keys := make([]string, 0, len(he.Details))
		for k := range he.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "  %s: %s\n", k, he.Details[k])
		}
	}
	if he.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", he.Suggestion)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", he.Code)
	return sb.String()
}

type jsonError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Severity   string            `json:"severity"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	Retryable  bool              `json:"retryable"`
}

// FormatJSON renders err as a single JSON object, for commands run with
// --json.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}
	he := asHybrid(err)

	je := jsonError{
		Code:       he.Code,
		Message:    he.Message,
		Category:   string(he.Category),
		Severity:   string(he.Severity),
		Details:    he.Details,
		Suggestion: he.Suggestion,
		Retryable:  he.Retryable,
	}
	if he.Cause != nil {
		je.Cause = he.Cause.Error()
	}
	return json.Marshal(je)
}

// LogAttrs returns slog attributes describing err.
func LogAttrs(err error) []slog.Attr {
	if err == nil {
		return nil
	}
	var he *HybridError
	if !errors.As(err, &he) {
		return []slog.Attr{slog.String("error", err.Error())}
	}

	attrs := []slog.Attr{
		slog.String("error_code", he.Code),
		slog.String("error", he.Message),
		slog.String("category", string(he.Category)),
		slog.Bool("retryable", he.Retryable),
	}
	if he.Cause != nil {
		attrs = append(attrs, slog.String("cause", he.Cause.Error()))
	}
	return attrs
}
