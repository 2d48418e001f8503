package leads

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orgDoc() map[string]any {
	return map[string]any{
		"org": map[string]any{
			"name":   "lead-acme",
			"status": "ACTIVE",
			"attributes": []any{
				map[string]any{"key": "lead_status", "value": "NEW"},
				map[string]any{"key": "contact_email", "value": "owner@acme.com"},
				map[string]any{"key": "employees", "value": "250"},
			},
		},
	}
}

func TestApplyDefaultMappings(t *testing.T) {
	fields, err := ApplyMappings(DefaultMappings(), orgDoc())
	require.NoError(t, err)
	assert.Equal(t, "lead-acme", fields["company"])
	assert.Equal(t, "ACTIVE", fields["status"])
	assert.Equal(t, "NEW", fields["lead_status"])
	assert.Equal(t, "owner@acme.com", fields["contact_email"])
	assert.Equal(t, false, fields["invited"])
}

func TestApplyMappingsRequired(t *testing.T) {
	mappings := []Mapping{{Name: "vat_id", Path: `org.attributes[?key=='vat_id'].value | [0]`, Required: true}}
	_, err := ApplyMappings(mappings, orgDoc())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vat_id")
}

func TestApplyMappingsTransforms(t *testing.T) {
	doc := orgDoc()
	mappings := []Mapping{
		{Name: "headcount", Path: `org.attributes[?key=='employees'].value | [0]`, Transform: "to_number"},
		{Name: "company", Path: "org.name", Transform: "to_string"},
		{Name: "has_email", Path: `org.attributes[?key=='contact_email'].value | [0]`, Transform: "exists"},
	}
	fields, err := ApplyMappings(mappings, doc)
	require.NoError(t, err)
	assert.Equal(t, 250.0, fields["headcount"])
	assert.Equal(t, "lead-acme", fields["company"])
	assert.Equal(t, true, fields["has_email"])
}

func TestLoadMappings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
fields:
  - name: company
    path: org.name
  - name: region
    path: org.attributes[?key=='region'].value | [0]
    required: true
`), 0o600))

	mappings, err := LoadMappings(path)
	require.NoError(t, err)
	require.Len(t, mappings, 2)
	assert.Equal(t, "company", mappings[0].Name)
	assert.True(t, mappings[1].Required)
}

func TestLoadMappingsDefaults(t *testing.T) {
	mappings, err := LoadMappings("")
	require.NoError(t, err)
	assert.Equal(t, DefaultMappings(), mappings)
}

func TestLoadMappingsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fields: [unterminated"), 0o600))
	_, err := LoadMappings(path)
	require.Error(t, err)
}
