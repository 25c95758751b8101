// Package metadata describes the structural expectations attached to a
// document: which sections and placeholders it must carry and which
// declarative rules its text must satisfy.
package metadata

import (
	"fmt"
	"regexp"
	"strings"
)

// DocumentType identifies the kind of document being validated.
type DocumentType string

const (
	// DocumentTypeSpec identifies a specification document.
	DocumentTypeSpec DocumentType = "spec"
	// DocumentTypePlan identifies a technical plan document.
	DocumentTypePlan DocumentType = "plan"
	// DocumentTypeTasks identifies an implementation tasks document.
	DocumentTypeTasks DocumentType = "tasks"
	// DocumentTypeReadme identifies a README or guide document.
	DocumentTypeReadme DocumentType = "readme"
)

// DocumentTypes lists every recognized document type.
var DocumentTypes = []DocumentType{DocumentTypeSpec, DocumentTypePlan, DocumentTypeTasks, DocumentTypeReadme}

// ParseDocumentType converts s to a DocumentType, rejecting unknown values.
func ParseDocumentType(s string) (DocumentType, error) {
	t := DocumentType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range DocumentTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown document type %q (want one of spec, plan, tasks, readme)", s)
}

// Severity controls whether a violation fails the document.
type Severity string

const (
	// SeverityError violations fail the document.
	SeverityError Severity = "error"
	// SeverityWarning violations are advisory.
	SeverityWarning Severity = "warning"
)

// ParseSeverity converts s to a Severity. An empty string yields def.
func ParseSeverity(s string, def Severity) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return def, nil
	case "error":
		return SeverityError, nil
	case "warning", "warn":
		return SeverityWarning, nil
	default:
		return "", fmt.Errorf("unknown severity %q (want error or warning)", s)
	}
}

// Kind names a rule kind.
type Kind string

// Rule kinds.
const (
	KindRequiredSection     Kind = "required_section"
	KindRequiredPlaceholder Kind = "required_placeholder"
	KindContentPattern      Kind = "content_check"
	KindFormatPattern       Kind = "format_check"
)

// Rule is a declarative check. The set of implementations is closed:
// SectionRule, PlaceholderRule and PatternRule.
type Rule interface {
	Kind() Kind
	Base() RuleBase
	isRule()
}

// RuleBase holds the fields every rule carries.
type RuleBase struct {
	Target   string   `json:"target"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message,omitempty"`
}

// SectionRule requires a heading whose text matches Target.
type SectionRule struct {
	RuleBase
	// Prefix allows headings that merely start with Target ("APIs" for "API").
	Prefix bool `json:"prefix,omitempty"`
}

// Kind implements Rule.
func (SectionRule) Kind() Kind { return KindRequiredSection }

// Base implements Rule.
func (r SectionRule) Base() RuleBase { return r.RuleBase }

func (SectionRule) isRule() {}

// PlaceholderRule requires the literal token [Target] in the text.
type PlaceholderRule struct {
	RuleBase
}

// Kind implements Rule.
func (PlaceholderRule) Kind() Kind { return KindRequiredPlaceholder }

// Base implements Rule.
func (r PlaceholderRule) Base() RuleBase { return r.RuleBase }

func (PlaceholderRule) isRule() {}

// PatternRule requires Pattern to match somewhere in the text at least
// MinMatches times. ContentPattern and FormatPattern behave identically.
type PatternRule struct {
	RuleBase
	PatternKind Kind
	Pattern     *regexp.Regexp
	MinMatches  int
}

// Kind implements Rule.
func (r PatternRule) Kind() Kind { return r.PatternKind }

// Base implements Rule.
func (r PatternRule) Base() RuleBase { return r.RuleBase }

func (PatternRule) isRule() {}

// NewSectionRule builds a SectionRule.
func NewSectionRule(target string, sev Severity, message string) (SectionRule, error) {
	if strings.TrimSpace(target) == "" {
		return SectionRule{}, fmt.Errorf("%s rule: target is required", KindRequiredSection)
	}
	return SectionRule{RuleBase: RuleBase{Target: target, Severity: sev, Message: message}}, nil
}

// NewPlaceholderRule builds a PlaceholderRule.
func NewPlaceholderRule(target string, sev Severity, message string) (PlaceholderRule, error) {
	if strings.TrimSpace(target) == "" {
		return PlaceholderRule{}, fmt.Errorf("%s rule: target is required", KindRequiredPlaceholder)
	}
	return PlaceholderRule{RuleBase: RuleBase{Target: target, Severity: sev, Message: message}}, nil
}

// NewPatternRule compiles pattern and builds a PatternRule of the given kind.
// minMatches below 1 is treated as 1.
func NewPatternRule(kind Kind, target, pattern string, sev Severity, message string, minMatches int) (PatternRule, error) {
	if kind != KindContentPattern && kind != KindFormatPattern {
		return PatternRule{}, fmt.Errorf("rule kind %q does not take a pattern", kind)
	}
	if pattern == "" {
		return PatternRule{}, fmt.Errorf("%s rule %q: pattern is required", kind, target)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return PatternRule{}, fmt.Errorf("%s rule %q: compile pattern: %w", kind, target, err)
	}
	if minMatches < 1 {
		minMatches = 1
	}
	return PatternRule{
		RuleBase:    RuleBase{Target: target, Severity: sev, Message: message},
		PatternKind: kind,
		Pattern:     re,
		MinMatches:  minMatches,
	}, nil
}

// MustPatternRule is NewPatternRule for static rule tables. It panics on error.
func MustPatternRule(kind Kind, target, pattern string, sev Severity, message string, minMatches int) PatternRule {
	r, err := NewPatternRule(kind, target, pattern, sev, message, minMatches)
	if err != nil {
		panic(err)
	}
	return r
}

// Section is an expected heading.
type Section struct {
	Name        string `json:"name"`
	Required    bool   `json:"required"`
	Prefix      bool   `json:"prefix,omitempty"`
	Description string `json:"description,omitempty"`
}

// Placeholder is an expected [name] token.
type Placeholder struct {
	Name        string `json:"name"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

// Template carries the descriptive block of a template's metadata.
type Template struct {
	Name        string       `json:"name"`
	Version     string       `json:"version"`
	Type        DocumentType `json:"type"`
	Domain      string       `json:"domain"`
	Complexity  string       `json:"complexity"`
	Audience    string       `json:"audience"`
	Description string       `json:"description"`
}

// Maintenance carries ownership details.
type Maintenance struct {
	Created    string `json:"created,omitempty"`
	Updated    string `json:"updated,omitempty"`
	Maintainer string `json:"maintainer,omitempty"`
	Status     string `json:"status,omitempty"`
}

// Metadata is the full set of structural expectations for one document.
type Metadata struct {
	Template     Template
	Sections     []Section
	Placeholders []Placeholder
	Rules        []Rule
	Maintenance  Maintenance
}

// Type returns the document type.
func (m *Metadata) Type() DocumentType {
	if m == nil {
		return ""
	}
	return m.Template.Type
}

// Merge returns a new Metadata holding base's expectations followed by
// extra's. Template and Maintenance come from extra when set.
func Merge(base, extra *Metadata) *Metadata {
	switch {
	case base == nil && extra == nil:
		return nil
	case base == nil:
		return extra
	case extra == nil:
		return base
	}

	out := &Metadata{
		Template:    base.Template,
		Maintenance: base.Maintenance,
	}
	if extra.Template.Type != "" {
		out.Template = extra.Template
	}
	if extra.Maintenance != (Maintenance{}) {
		out.Maintenance = extra.Maintenance
	}
	out.Sections = append(append([]Section{}, base.Sections...), extra.Sections...)
	out.Placeholders = append(append([]Placeholder{}, base.Placeholders...), extra.Placeholders...)
	out.Rules = append(append([]Rule{}, base.Rules...), extra.Rules...)
	return out
}
