package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Write stores doc as <name>-report.json and its summary as
// <name>-summary.json under dir, creating dir if needed. It returns the
// paths written.
func Write(dir string, doc *Document) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}

	reportPath := filepath.Join(dir, doc.Summary.Name+"-report.json")
	if err := writeJSON(reportPath, doc); err != nil {
		return nil, err
	}

	summaryPath := filepath.Join(dir, doc.Summary.Name+"-summary.json")
	if err := writeJSON(summaryPath, doc.Summary); err != nil {
		return []string{reportPath}, err
	}

	return []string{reportPath, summaryPath}, nil
}

// Load reads a report previously written by Write.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	return &doc, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
