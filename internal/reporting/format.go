package reporting

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spboyer/arena/internal/models"
)

// Format is an output format for a run report.
type Format string

const (
	FormatText     Format = "default"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatJUnit    Format = "junit"
)

// Formats lists the accepted format names.
var Formats = []Format{FormatText, FormatJSON, FormatMarkdown, FormatHTML, FormatJUnit}

// ParseFormat converts a flag value into a Format. "text" and "" mean FormatText.
func ParseFormat(s string) (Format, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" || v == "text" {
		return FormatText, nil
	}
	for _, f := range Formats {
		if string(f) == v {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown format %q (want one of %v)", s, Formats)
}

// Extension is the file extension used when a report of this format is saved.
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return ".json"
	case FormatMarkdown:
		return ".md"
	case FormatHTML:
		return ".html"
	case FormatJUnit:
		return ".xml"
	default:
		return ".txt"
	}
}

// Render produces the report for outcome in format f.
func Render(outcome *models.RunOutcome, f Format) ([]byte, error) {
	switch f {
	case FormatText:
		return []byte(FormatSummaryReport(outcome)), nil
	case FormatJSON:
		data, err := json.MarshalIndent(outcome, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshaling outcome: %w", err)
		}
		return append(data, '\n'), nil
	case FormatMarkdown:
		return []byte(RenderMarkdown(outcome)), nil
	case FormatHTML:
		return RenderHTML(outcome)
	case FormatJUnit:
		return MarshalJUnit(outcome)
	default:
		return nil, fmt.Errorf("unknown format %q", f)
	}
}
