package orchestration

import (
	"fmt"
	"path/filepath"

	"github.com/spboyer/arena/internal/models"
)

// FilterTestCases returns the test cases whose ID, use case or scenario
// category matches at least one of the glob patterns. No patterns returns
// testCases unchanged.
func FilterTestCases(testCases []models.TestCase, patterns []string) ([]models.TestCase, error) {
	if len(patterns) == 0 {
		return testCases, nil
	}

	matched := []models.TestCase{}
	for _, tc := range testCases {
		ok, err := matchesAny(tc, patterns)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, tc)
		}
	}
	return matched, nil
}

func matchesAny(tc models.TestCase, patterns []string) (bool, error) {
	fields := []string{tc.ID, tc.UseCase, tc.ScenarioCategory}

	for _, p := range patterns {
		for _, field := range fields {
			if field == "" {
				continue
			}
			ok, err := filepath.Match(p, field)
			if err != nil {
				return false, fmt.Errorf("invalid test case filter %q: %w", p, err)
			}
			if ok {
				return true, nil
			}
		}
	}
	return false, nil
}
