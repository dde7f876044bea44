// Package wizard lets an operator pick the test cases and strategy of a run
// interactively before it starts.
package wizard

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-runewidth"
	"github.com/spboyer/arena/internal/models"
	"golang.org/x/term"
)

// labelWidth caps the width of a test case label in the picker.
const labelWidth = 72

// ErrNothingSelected is returned when the operator deselects every test case.
var ErrNothingSelected = errors.New("no test cases selected")

// Selection is what the operator picked.
type Selection struct {
	TestCaseIDs []string
	Strategy    models.Strategy
}

// IsInteractive reports whether f is attached to a terminal.
func IsInteractive(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// Pick shows a multi-select of test cases, all selected up front, followed by
// a strategy select defaulting to current.
func Pick(in io.Reader, out io.Writer, testCases []models.TestCase, current models.Strategy) (*Selection, error) {
	if len(testCases) == 0 {
		return nil, errors.New("there are no test cases to pick from")
	}

	ids := make([]string, len(testCases))
	for i, tc := range testCases {
		ids[i] = tc.ID
	}
	strategy := string(current)
	if strategy == "" {
		strategy = string(models.StrategyRandomSelection)
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Test cases").
				Description("Space toggles a test case, enter confirms").
				Options(Options(testCases)...).
				Value(&ids).
				Validate(func(s []string) error {
					if len(s) == 0 {
						return ErrNothingSelected
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Model assignment strategy").
				Options(
					huh.NewOption("random selection (models may repeat)", string(models.StrategyRandomSelection)),
					huh.NewOption("unique model per assistant", string(models.StrategyUniqueModel)),
				).
				Value(&strategy),
		),
	).
		WithInput(in).
		WithOutput(out)

	// Use accessible mode for non-TTY input (e.g., tests, piped input).
	if f, ok := in.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		form = form.WithAccessible(true)
	}

	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("test case picker failed: %w", err)
	}

	parsed, err := models.ParseStrategy(strategy)
	if err != nil {
		return nil, err
	}
	return &Selection{TestCaseIDs: ids, Strategy: parsed}, nil
}

// Options builds one picker option per test case, all preselected.
func Options(testCases []models.TestCase) []huh.Option[string] {
	opts := make([]huh.Option[string], len(testCases))
	for i, tc := range testCases {
		opts[i] = huh.NewOption(Label(tc), tc.ID).Selected(true)
	}
	return opts
}

// Label is the one-line description of a test case shown in the picker.
func Label(tc models.TestCase) string {
	input := strings.Join(strings.Fields(tc.Input), " ")
	label := tc.ID + "  " + input
	if tc.UseCase != "" {
		label = fmt.Sprintf("%s  [%s]  %s", tc.ID, tc.UseCase, input)
	}
	return runewidth.Truncate(label, labelWidth, "…")
}

// Apply keeps the picked test cases, in their original order.
func Apply(testCases []models.TestCase, sel *Selection) ([]models.TestCase, error) {
	if sel == nil {
		return testCases, nil
	}

	picked := make(map[string]bool, len(sel.TestCaseIDs))
	for _, id := range sel.TestCaseIDs {
		picked[id] = true
	}

	var out []models.TestCase
	for _, tc := range testCases {
		if picked[tc.ID] {
			out = append(out, tc)
		}
	}
	if len(out) == 0 {
		return nil, ErrNothingSelected
	}
	return out, nil
}
