// Package validation checks a document's text against its metadata.
// It reports every missing section, placeholder and unmatched rule rather
// than stopping at the first, so callers can render complete feedback.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/brock-run/spec-driven-development/metadata"
)

// ErrUnreadable marks a document whose source text could not be obtained.
var ErrUnreadable = errors.New("document unreadable")

// Result contains the outcome of validating one document.
type Result struct {
	DocumentID   string                `json:"document_id"`
	DocumentType metadata.DocumentType `json:"document_type,omitempty"`
	Passed       bool                  `json:"passed"`
	Errors       []string              `json:"errors"`
	Warnings     []string              `json:"warnings"`
	// Misconfigured holds diagnostics about the metadata itself. They fail
	// the document so a broken rule cannot report a false pass.
	Misconfigured []string `json:"misconfigured,omitempty"`
}

// ValidationResult is an alias for Result.
type ValidationResult = Result //revive:disable-line

func newResult(id string, docType metadata.DocumentType) *Result {
	return &Result{
		DocumentID:   id,
		DocumentType: docType,
		Errors:       []string{},
		Warnings:     []string{},
	}
}

func (r *Result) add(sev metadata.Severity, msg string) {
	if sev == metadata.SeverityWarning {
		r.Warnings = append(r.Warnings, msg)
		return
	}
	r.Errors = append(r.Errors, msg)
}

func (r *Result) finish() *Result {
	r.Passed = len(r.Errors) == 0 && len(r.Misconfigured) == 0
	return r
}

// Validate checks text against meta. Sections are checked first, then
// placeholders, then rules in declaration order.
func Validate(text string, meta *metadata.Metadata) *Result {
	return ValidateDocument("", text, meta)
}

// ValidateDocument is Validate with the document id stamped on the result.
func ValidateDocument(id, text string, meta *metadata.Metadata) *Result {
	if meta == nil {
		r := newResult(id, "")
		r.Warnings = append(r.Warnings, "No metadata for document; structural checks skipped")
		return r.finish()
	}

	r := newResult(id, meta.Type())

	for _, sec := range meta.Sections {
		if !sec.Required {
			continue
		}
		if !HasHeading(text, sec.Name, sec.Prefix) {
			r.Errors = append(r.Errors, fmt.Sprintf("Required section '%s' not found", sec.Name))
		}
	}

	for _, ph := range meta.Placeholders {
		if !ph.Required {
			continue
		}
		if !HasPlaceholder(text, ph.Name) {
			r.Warnings = append(r.Warnings, fmt.Sprintf("Required placeholder '[%s]' not found", ph.Name))
		}
	}

	for _, rule := range meta.Rules {
		applyRule(r, text, rule)
	}

	return r.finish()
}

func applyRule(r *Result, text string, rule metadata.Rule) {
	base := rule.Base()
	sev := base.Severity
	if sev == "" {
		sev = metadata.SeverityError
	}

	switch rl := rule.(type) {
	case metadata.SectionRule:
		if !HasHeading(text, rl.Target, rl.Prefix) {
			r.add(sev, messageOr(base, fmt.Sprintf("Required section '%s' not found", rl.Target)))
		}
	case metadata.PlaceholderRule:
		if !HasPlaceholder(text, rl.Target) {
			r.add(sev, messageOr(base, fmt.Sprintf("Required placeholder '[%s]' not found", rl.Target)))
		}
	case metadata.PatternRule:
		if rl.Pattern == nil {
			r.Misconfigured = append(r.Misconfigured,
				fmt.Sprintf("Rule misconfigured: %s rule '%s' has no pattern", rl.Kind(), rl.Target))
			return
		}
		want := rl.MinMatches
		if want < 1 {
			want = 1
		}
		found := len(rl.Pattern.FindAllStringIndex(text, want))
		if found < want {
			def := fmt.Sprintf("Pattern for '%s' not found", rl.Target)
			if want > 1 {
				def = fmt.Sprintf("Pattern for '%s' matched %d times, want at least %d", rl.Target, found, want)
			}
			r.add(sev, messageOr(base, def))
		}
	default:
		r.Misconfigured = append(r.Misconfigured, fmt.Sprintf("Rule misconfigured: unsupported rule type %T", rule))
	}
}

func messageOr(base metadata.RuleBase, def string) string {
	if base.Message != "" {
		return base.Message
	}
	return def
}

type headingKey struct {
	name   string
	prefix bool
}

// headingPatterns caches compiled heading patterns by name and prefix mode.
var headingPatterns sync.Map

// HasHeading reports whether text contains a 1-6 level '#' heading whose
// text starts with name, case-insensitively. The '#' run may be indented by
// up to three spaces. Unless prefix is set the name must be followed by the
// end of the line or a non-word character, so "API" does not match "APIs".
func HasHeading(text, name string, prefix bool) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	return headingPattern(name, prefix).MatchString(text)
}

func headingPattern(name string, prefix bool) *regexp.Regexp {
	key := headingKey{name: name, prefix: prefix}
	if re, ok := headingPatterns.Load(key); ok {
		return re.(*regexp.Regexp)
	}
	pattern := `(?im)^[ \t]{0,3}#{1,6}[ \t]+` + regexp.QuoteMeta(name)
	if !prefix {
		pattern += `(?:[^\p{L}\p{N}_]|$)`
	}
	re, _ := headingPatterns.LoadOrStore(key, regexp.MustCompile(pattern))
	return re.(*regexp.Regexp)
}

// HasPlaceholder reports whether the literal token [name] appears in text.
func HasPlaceholder(text, name string) bool {
	return strings.Contains(text, "["+name+"]")
}

// Unreadable builds the failed result for a document whose text could not be read.
func Unreadable(id string, err error) *Result {
	if !errors.Is(err, ErrUnreadable) {
		err = fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	r := newResult(id, "")
	r.Errors = append(r.Errors, err.Error())
	return r.finish()
}

// FromFindings builds a result from findings produced outside Validate, such
// as layout or subprocess checks.
func FromFindings(id string, errs, warnings []string) *Result {
	r := newResult(id, "")
	r.Errors = append(r.Errors, errs...)
	r.Warnings = append(r.Warnings, warnings...)
	return r.finish()
}

// Invalid builds the failed result for a document whose metadata is malformed.
func Invalid(id string, err error) *Result {
	r := newResult(id, "")
	r.Misconfigured = append(r.Misconfigured, err.Error())
	return r.finish()
}

// FormatFeedback renders a failed result as markdown feedback.
func (r *Result) FormatFeedback() string {
	if r.Passed {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Validation Failed\n\n")
	if r.DocumentID != "" {
		sb.WriteString(fmt.Sprintf("Document: `%s`\n\n", r.DocumentID))
	}

	if len(r.Misconfigured) > 0 {
		sb.WriteString("### Configuration Problems\n\n")
		for _, m := range r.Misconfigured {
			sb.WriteString(fmt.Sprintf("- %s\n", m))
		}
		sb.WriteString("\n")
	}

	if len(r.Errors) > 0 {
		sb.WriteString("### Errors\n\n")
		for _, e := range r.Errors {
			sb.WriteString(fmt.Sprintf("- %s\n", e))
		}
		sb.WriteString("\n")
	}

	if len(r.Warnings) > 0 {
		sb.WriteString("### Warnings\n\n")
		for _, w := range r.Warnings {
			sb.WriteString(fmt.Sprintf("- %s\n", w))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
