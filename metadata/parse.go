package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ErrConfig is matched by every ConfigError.
var ErrConfig = errors.New("configuration error")

// ConfigError reports malformed or incomplete metadata. It lists every
// problem found rather than the first.
type ConfigError struct {
	Source   string
	Problems []string
}

func (e *ConfigError) Error() string {
	src := e.Source
	if src == "" {
		src = "metadata"
	}
	return fmt.Sprintf("configuration error in %s: %s", src, strings.Join(e.Problems, "; "))
}

// Is reports whether target is ErrConfig.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

func (e *ConfigError) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// Required top-level and template keys of the metadata schema.
var (
	requiredTopLevelKeys = []string{"template", "structure", "maintenance"}
	requiredTemplateKeys = []string{"name", "version", "type", "domain", "complexity", "audience", "description"}
)

type rawStructure struct {
	Sections     []Section     `json:"sections"`
	Placeholders []Placeholder `json:"placeholders"`
}

type rawValidation struct {
	Rules []rawRule `json:"rules"`
}

type rawRule struct {
	Type       string `json:"type"`
	Target     string `json:"target"`
	Pattern    string `json:"pattern"`
	Severity   string `json:"severity"`
	Message    string `json:"message"`
	MinMatches int    `json:"min_matches"`
	Prefix     bool   `json:"prefix"`
}

// LoadFile reads and parses a .meta.json file.
func LoadFile(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	return ParseSource(path, data)
}

// Parse parses metadata JSON.
func Parse(data []byte) (*Metadata, error) {
	return ParseSource("", data)
}

// ParseSource parses metadata JSON, naming source in any ConfigError.
func ParseSource(source string, data []byte) (*Metadata, error) {
	cerr := &ConfigError{Source: source}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		cerr.add("invalid JSON: %v", err)
		return nil, cerr
	}

	for _, key := range requiredTopLevelKeys {
		if _, ok := top[key]; !ok {
			cerr.add("missing required key '%s'", key)
		}
	}

	meta := &Metadata{}

	if raw, ok := top["template"]; ok {
		parseTemplate(raw, meta, cerr)
	}

	if raw, ok := top["structure"]; ok {
		var s rawStructure
		if err := json.Unmarshal(raw, &s); err != nil {
			cerr.add("invalid structure: %v", err)
		} else {
			for i, sec := range s.Sections {
				if strings.TrimSpace(sec.Name) == "" {
					cerr.add("section %d: name is required", i+1)
				}
			}
			for i, ph := range s.Placeholders {
				if strings.TrimSpace(ph.Name) == "" {
					cerr.add("placeholder %d: name is required", i+1)
				}
			}
			meta.Sections = s.Sections
			meta.Placeholders = s.Placeholders
		}
	}

	if raw, ok := top["validation"]; ok {
		var v rawValidation
		if err := json.Unmarshal(raw, &v); err != nil {
			cerr.add("invalid validation block: %v", err)
		} else {
			for i, rr := range v.Rules {
				rule, err := rr.build()
				if err != nil {
					cerr.add("rule %d: %v", i+1, err)
					continue
				}
				meta.Rules = append(meta.Rules, rule)
			}
		}
	}

	if raw, ok := top["maintenance"]; ok {
		if err := json.Unmarshal(raw, &meta.Maintenance); err != nil {
			cerr.add("invalid maintenance block: %v", err)
		}
	}

	if len(cerr.Problems) > 0 {
		return nil, cerr
	}
	return meta, nil
}

func parseTemplate(raw json.RawMessage, meta *Metadata, cerr *ConfigError) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		cerr.add("invalid template block: %v", err)
		return
	}

	values := make(map[string]string, len(fields))
	for _, key := range requiredTemplateKeys {
		v, ok := fields[key]
		if !ok {
			cerr.add("missing required template key '%s'", key)
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			cerr.add("template key '%s' must be a string", key)
			continue
		}
		values[key] = s
	}

	meta.Template = Template{
		Name:        values["name"],
		Version:     values["version"],
		Domain:      values["domain"],
		Complexity:  values["complexity"],
		Audience:    values["audience"],
		Description: values["description"],
	}

	if v, ok := values["version"]; ok {
		if err := ValidateVersion(v); err != nil {
			cerr.add("%v", err)
		}
	}
	if t, ok := values["type"]; ok {
		dt, err := ParseDocumentType(t)
		if err != nil {
			cerr.add("%v", err)
		}
		meta.Template.Type = dt
	}
}

// ValidateVersion checks that v is a plain MAJOR.MINOR.PATCH version.
func ValidateVersion(v string) error {
	sv, err := semver.StrictNewVersion(v)
	if err != nil || sv.Prerelease() != "" || sv.Metadata() != "" {
		return fmt.Errorf("invalid version format: %q (want MAJOR.MINOR.PATCH)", v)
	}
	return nil
}

func (rr rawRule) build() (Rule, error) {
	kind, err := parseKind(rr.Type)
	if err != nil {
		return nil, err
	}

	defSev := SeverityError
	if kind == KindContentPattern || kind == KindFormatPattern {
		defSev = SeverityWarning
	}
	sev, err := ParseSeverity(rr.Severity, defSev)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindRequiredSection:
		r, err := NewSectionRule(rr.Target, sev, rr.Message)
		if err != nil {
			return nil, err
		}
		r.Prefix = rr.Prefix
		return r, nil
	case KindRequiredPlaceholder:
		return NewPlaceholderRule(rr.Target, sev, rr.Message)
	default:
		return NewPatternRule(kind, rr.Target, rr.Pattern, sev, rr.Message, rr.MinMatches)
	}
}

func parseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "required_section":
		return KindRequiredSection, nil
	case "required_placeholder":
		return KindRequiredPlaceholder, nil
	case "content_check", "content_pattern":
		return KindContentPattern, nil
	case "format_check", "format_pattern":
		return KindFormatPattern, nil
	case "":
		return "", errors.New("rule type is required")
	default:
		return "", fmt.Errorf("unknown rule type %q", s)
	}
}
