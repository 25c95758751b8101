// Package rulesets provides the built-in metadata applied to documents that
// carry no sidecar .meta.json: the conventions every spec, plan, tasks and
// README file in an example project is expected to follow.
package rulesets

import (
	"path/filepath"
	"regexp"
	"strings"

	m "github.com/brock-run/spec-driven-development/metadata"
)

func section(target string, sev m.Severity, msg string) m.SectionRule {
	return m.SectionRule{RuleBase: m.RuleBase{Target: target, Severity: sev, Message: msg}}
}

func pattern(target, expr string, sev m.Severity, msg string, n int) m.PatternRule {
	return m.MustPatternRule(m.KindContentPattern, target, expr, sev, msg, n)
}

func format(target, expr string, sev m.Severity, msg string, n int) m.PatternRule {
	return m.MustPatternRule(m.KindFormatPattern, target, expr, sev, msg, n)
}

var (
	specRules = []m.Rule{
		format("title", `(?m)^#[ \t]+\S`, m.SeverityError, "Missing document title (# heading)", 1),
		format("functional requirements", `FR-\d+\.\d+`, m.SeverityError, "Missing functional requirements (FR-X.X format)", 1),
		format("technical requirements", `TR-\d+\.\d+`, m.SeverityError, "Missing technical requirements (TR-X.X format)", 1),
		pattern("SHALL statements", `\bSHALL\b`, m.SeverityWarning, "Few SHALL statements, consider more specific requirements", 5),
		pattern("EARS format", `WHEN.*THEN.*SHALL`, m.SeverityWarning, "Use EARS format (WHEN ... THEN ... SHALL) for acceptance criteria", 1),
	}

	planRules = []m.Rule{
		section("Architecture Overview", m.SeverityWarning, "Missing recommended section: Architecture Overview"),
		section("Technology Stack", m.SeverityWarning, "Missing recommended section: Technology Stack"),
		section("Database Design", m.SeverityWarning, "Missing recommended section: Database Design"),
		section("Security Architecture", m.SeverityWarning, "Missing recommended section: Security Architecture"),
		format("code blocks", "```", m.SeverityWarning, "Plan should include code examples or diagrams", 4),
	}

	tasksRules = []m.Rule{
		format("task checkboxes", `- \[ \] \d+\.`, m.SeverityError, "Missing properly formatted tasks (- [ ] X. format)", 1),
		format("requirement references", `_Requirements?: [A-Z]+-\d+\.\d+`, m.SeverityError, "Missing requirement references (_Requirements: XX-X.X_)", 1),
		format("sub-tasks", `- \[ \] \d+\.\d+`, m.SeverityWarning, "Include sub-tasks for complex features", 2),
	}

	readmeRules = []m.Rule{
		section("Project Context", m.SeverityWarning, "Missing recommended section: Project Context"),
		section("Business Requirements", m.SeverityWarning, "Missing recommended section: Business Requirements"),
		section("Technical Constraints", m.SeverityWarning, "Missing recommended section: Technical Constraints"),
		section("SDD Workflow Files", m.SeverityWarning, "Missing recommended section: SDD Workflow Files"),
		section("Validation Results", m.SeverityWarning, "Missing validation results section"),
	}
)

// For returns the built-in metadata for docType, or nil when none exists.
func For(docType m.DocumentType) *m.Metadata {
	tmpl := m.Template{
		Name:    "builtin-" + string(docType),
		Version: "1.0.0",
		Type:    docType,
	}

	switch docType {
	case m.DocumentTypeSpec:
		return &m.Metadata{
			Template: tmpl,
			Sections: []m.Section{
				{Name: "Overview", Required: true},
				{Name: "Functional Requirements", Required: true},
				{Name: "Technical Requirements", Required: true},
			},
			Rules: append([]m.Rule{}, specRules...),
		}
	case m.DocumentTypePlan:
		return &m.Metadata{Template: tmpl, Rules: append([]m.Rule{}, planRules...)}
	case m.DocumentTypeTasks:
		return &m.Metadata{Template: tmpl, Rules: append([]m.Rule{}, tasksRules...)}
	case m.DocumentTypeReadme:
		return &m.Metadata{Template: tmpl, Rules: append([]m.Rule{}, readmeRules...)}
	default:
		return nil
	}
}

// TypeForFile maps a conventional file name to its document type.
func TypeForFile(name string) (m.DocumentType, bool) {
	switch strings.ToLower(filepath.Base(name)) {
	case "spec.md":
		return m.DocumentTypeSpec, true
	case "plan.md":
		return m.DocumentTypePlan, true
	case "tasks.md":
		return m.DocumentTypeTasks, true
	case "readme.md":
		return m.DocumentTypeReadme, true
	default:
		return "", false
	}
}

// ForFile returns the built-in metadata for a conventional file name.
func ForFile(name string) (*m.Metadata, bool) {
	t, ok := TypeForFile(name)
	if !ok {
		return nil, false
	}
	return For(t), true
}

// Phrase builds a content rule requiring the literal phrase, optionally
// ignoring case.
func Phrase(phrase string, ignoreCase bool, sev m.Severity, msg string) m.PatternRule {
	expr := regexp.QuoteMeta(phrase)
	if ignoreCase {
		expr = "(?i)" + expr
	}
	return m.MustPatternRule(m.KindContentPattern, phrase, expr, sev, msg, 1)
}

// ExamplesIndex is the metadata for the README at the root of an examples tree.
func ExamplesIndex() *m.Metadata {
	return &m.Metadata{
		Template: m.Template{Name: "builtin-examples-index", Version: "1.0.0", Type: m.DocumentTypeReadme},
		Sections: []m.Section{
			{Name: "Example Specifications and Workflows", Required: true},
			{Name: "Directory Structure", Required: true},
			{Name: "How to Use These Examples", Required: true},
		},
	}
}
