// Package dataset loads test cases from CSV files.
package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/spboyer/arena/internal/models"
)

// Row represents a single CSV row with column name to value mapping.
type Row map[string]string

// columnAliases maps accepted header names onto test case fields.
var columnAliases = map[string]string{
	"id":                "id",
	"test_case_id":      "id",
	"input":             "input",
	"prompt":            "input",
	"context":           "context",
	"scenario_category": "scenario_category",
	"category":          "scenario_category",
	"use_case":          "use_case",
}

// LoadCSV reads a CSV file and returns rows as maps of column to value.
// The first row is treated as headers. Header names are trimmed and lowercased.
func LoadCSV(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv: open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv: parse %s: %w", path, err)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("csv: %s is empty (no header row)", path)
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}

	rows := make([]Row, 0, len(records)-1)
	for i, record := range records[1:] {
		if len(record) != len(headers) {
			return nil, fmt.Errorf("csv: row %d has %d columns, expected %d", i+2, len(record), len(headers))
		}
		row := make(Row, len(headers))
		for j, h := range headers {
			row[h] = record[j]
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// LoadTestCases reads test cases from a CSV file. An input (or prompt)
// column is required; rows without an id are named row-<line>.
func LoadTestCases(path string) ([]models.TestCase, error) {
	rows, err := LoadCSV(path)
	if err != nil {
		return nil, err
	}
	return ToTestCases(rows)
}

// ToTestCases maps CSV rows onto test cases. Unknown columns are ignored.
func ToTestCases(rows []Row) ([]models.TestCase, error) {
	testCases := make([]models.TestCase, 0, len(rows))

	for i, row := range rows {
		fields := map[string]string{}
		for col, v := range row {
			if field, ok := columnAliases[col]; ok && fields[field] == "" {
				fields[field] = strings.TrimSpace(v)
			}
		}

		line := i + 2
		if i == 0 && !hasInputColumn(row) {
			return nil, fmt.Errorf("csv: no input or prompt column")
		}
		if fields["input"] == "" {
			return nil, fmt.Errorf("csv: row %d has an empty input", line)
		}

		id := fields["id"]
		if id == "" {
			id = fmt.Sprintf("row-%d", line)
		}

		testCases = append(testCases, models.TestCase{
			ID:               id,
			Input:            fields["input"],
			Context:          fields["context"],
			ScenarioCategory: fields["scenario_category"],
			UseCase:          fields["use_case"],
		})
	}

	return testCases, nil
}

func hasInputColumn(row Row) bool {
	for col := range row {
		if columnAliases[col] == "input" {
			return true
		}
	}
	return false
}
