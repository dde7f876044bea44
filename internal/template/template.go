// Package template expands {{ }} placeholders in test case prompts.
package template

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/spboyer/arena/internal/models"
)

// Context holds all variables available for template resolution.
type Context struct {
	RunName          string
	TestCaseID       string
	UseCase          string
	ScenarioCategory string

	// Vars are the user-defined variables of the run file.
	Vars map[string]string
}

// Render resolves template expressions in the given string.
// Uses Go's text/template syntax: {{.TestCaseID}}, {{.Vars.product}}.
// Returns the input unchanged if it contains no template delimiters.
func Render(tmpl string, ctx *Context) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	t, err := template.New("").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("template: parse: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("template: render: %w", err)
	}

	return buf.String(), nil
}

// RenderTestCases returns copies of testCases with Input and Context rendered.
func RenderTestCases(runName string, testCases []models.TestCase, vars map[string]string) ([]models.TestCase, error) {
	out := make([]models.TestCase, len(testCases))
	for i, tc := range testCases {
		ctx := &Context{
			RunName:          runName,
			TestCaseID:       tc.ID,
			UseCase:          tc.UseCase,
			ScenarioCategory: tc.ScenarioCategory,
			Vars:             vars,
		}

		input, err := Render(tc.Input, ctx)
		if err != nil {
			return nil, fmt.Errorf("test case %q input: %w", tc.ID, err)
		}
		context, err := Render(tc.Context, ctx)
		if err != nil {
			return nil, fmt.Errorf("test case %q context: %w", tc.ID, err)
		}

		tc.Input = input
		tc.Context = context
		out[i] = tc
	}
	return out, nil
}
