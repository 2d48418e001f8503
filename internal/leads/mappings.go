package leads

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	jmes "github.com/jmespath/go-jmespath"
	"gopkg.in/yaml.v3"
)

// Mapping projects one summary field out of the raw organization document
// with a JMESPath expression. The document shape handed to expressions is
// {"org": <organization response body>}.
type Mapping struct {
	Name      string `yaml:"name"`
	Path      string `yaml:"path"`
	Transform string `yaml:"transform,omitempty"`
	Required  bool   `yaml:"required,omitempty"`
}

type mappingFile struct {
	Fields []Mapping `yaml:"fields"`
}

// DefaultMappings cover the dashboard columns when no mapping file is
// configured.
func DefaultMappings() []Mapping {
	return []Mapping{
		{Name: "company", Path: "org.name"},
		{Name: "status", Path: "org.status"},
		{Name: "lead_status", Path: `org.attributes[?key=='lead_status'].value | [0]`},
		{Name: "contact_email", Path: `org.attributes[?key=='contact_email'].value | [0]`},
		{Name: "invited", Path: `org.attributes[?key=='invitation_token_reference'].value | [0]`, Transform: "exists"},
	}
}

// LoadMappings parses the YAML mapping file; an empty path yields the
// defaults.
func LoadMappings(path string) ([]Mapping, error) {
	if path == "" {
		return DefaultMappings(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f mappingFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("yaml parse: %w", err)
	}
	if len(f.Fields) == 0 {
		return DefaultMappings(), nil
	}
	return f.Fields, nil
}

// ApplyMappings evaluates every mapping against the document. Missing
// optional fields are skipped; a missing required field is an error.
func ApplyMappings(mappings []Mapping, doc map[string]any) (map[string]any, error) {
	out := map[string]any{}
	for _, m := range mappings {
		val, err := jmes.Search(m.Path, doc)
		if err != nil {
			if m.Required {
				return nil, fmt.Errorf("mapping %s: %w", m.Name, err)
			}
			continue
		}
		if m.Transform != "" {
			val = applyTransform(m.Transform, val)
		}
		if val == nil {
			if m.Required {
				return nil, fmt.Errorf("mapping %s: no value", m.Name)
			}
			continue
		}
		out[m.Name] = val
	}
	return out, nil
}

func applyTransform(name string, v any) any {
	switch name {
	case "exists":
		return v != nil
	case "first":
		if arr, ok := v.([]any); ok {
			if len(arr) > 0 {
				return arr[0]
			}
			return nil
		}
		return v
	case "to_string":
		if v == nil {
			return nil
		}
		return fmt.Sprintf("%v", v)
	case "to_number":
		switch t := v.(type) {
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
			if err != nil {
				return 0.0
			}
			return f
		default:
			return v
		}
	default:
		return v
	}
}
