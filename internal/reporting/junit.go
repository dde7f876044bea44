// Package reporting renders run outcomes as text, Markdown, HTML and JUnit XML.
package reporting

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/spboyer/arena/internal/models"
)

// JUnit XML schema types

// JUnitTestSuites is the top-level container.
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Time       float64          `xml:"time,attr"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite maps to one run.
type JUnitTestSuite struct {
	XMLName    xml.Name        `xml:"testsuite"`
	Name       string          `xml:"name,attr"`
	Tests      int             `xml:"tests,attr"`
	Failures   int             `xml:"failures,attr"`
	Errors     int             `xml:"errors,attr"`
	Time       float64         `xml:"time,attr"`
	Timestamp  string          `xml:"timestamp,attr"`
	Properties []JUnitProperty `xml:"properties>property,omitempty"`
	TestCases  []JUnitTestCase `xml:"testcase"`
}

// JUnitTestCase maps to one test case of the run.
type JUnitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
	Error     *JUnitError   `xml:"error,omitempty"`
}

// JUnitFailure is a test case whose outputs were not all scored.
type JUnitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

// JUnitError is a test case whose generation call failed.
type JUnitError struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

// JUnitProperty is a key-value metadata entry.
type JUnitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// ConvertToJUnit converts a run outcome to JUnit XML. A test case errors when
// its generation call failed and fails when any of its outputs is unscored.
func ConvertToJUnit(outcome *models.RunOutcome) *JUnitTestSuites {
	durationSec := float64(outcome.DurationMs) / 1000.0
	name := outcome.Name
	if name == "" {
		name = "arena"
	}

	suite := JUnitTestSuite{
		Name:      name,
		Tests:     len(outcome.Results),
		Time:      durationSec,
		Timestamp: outcome.Timestamp.Format(time.RFC3339),
		Properties: []JUnitProperty{
			{Name: "run_id", Value: outcome.RunID},
			{Name: "strategy", Value: string(outcome.Strategy)},
			{Name: "engine", Value: outcome.Engine},
		},
	}
	for _, m := range outcome.Summary.Models {
		suite.Properties = append(suite.Properties, JUnitProperty{
			Name:  "average_score." + m.ModelID,
			Value: fmt.Sprintf("%.4f", m.AverageScore),
		})
	}

	reasons := failureReasons(outcome.Failures)
	perCase := 0.0
	if n := len(outcome.Results); n > 0 {
		perCase = durationSec / float64(n)
	}

	for i := range outcome.Results {
		r := &outcome.Results[i]
		tc := JUnitTestCase{Name: r.ID, Classname: name, Time: perCase}

		switch {
		case len(r.ModelOutputs) == 0:
			tc.Error = &JUnitError{
				Message: orDefault(reasons[failureKey{models.PhaseGenerating, i}], "no outputs were generated"),
				Type:    "GenerationFailure",
			}
			suite.Errors++
		case !r.FullyScored():
			tc.Failure = &JUnitFailure{
				Message: orDefault(reasons[failureKey{models.PhaseEvaluating, i}], "some outputs were not scored"),
				Type:    "EvaluationFailure",
				Body:    formatOutputScores(r.ModelOutputs),
			}
			suite.Failures++
		}

		suite.TestCases = append(suite.TestCases, tc)
	}

	return &JUnitTestSuites{
		Tests:      suite.Tests,
		Failures:   suite.Failures,
		Errors:     suite.Errors,
		Time:       durationSec,
		TestSuites: []JUnitTestSuite{suite},
	}
}

type failureKey struct {
	phase models.Phase
	index int
}

func failureReasons(failures []models.CallFailure) map[failureKey]string {
	out := make(map[failureKey]string, len(failures))
	for _, f := range failures {
		out[failureKey{f.Phase, f.Index}] = f.Reason
	}
	return out
}

func formatOutputScores(outputs []models.ModelOutput) string {
	var b strings.Builder
	for _, o := range outputs {
		if o.Scored() {
			fmt.Fprintf(&b, "[SCORED] %s: %.2f\n", o.ModelID, o.AverageScore())
		} else {
			fmt.Fprintf(&b, "[UNSCORED] %s\n", o.ModelID)
		}
	}
	return b.String()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// MarshalJUnit returns the JUnit XML document for outcome.
func MarshalJUnit(outcome *models.RunOutcome) ([]byte, error) {
	data, err := xml.MarshalIndent(ConvertToJUnit(outcome), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling JUnit XML: %w", err)
	}
	return append([]byte(xml.Header), data...), nil
}
