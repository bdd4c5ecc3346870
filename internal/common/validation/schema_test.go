package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var contactSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"email", "name"},
	"properties": map[string]interface{}{
		"email": map[string]interface{}{"type": "string", "minLength": 3},
		"name":  map[string]interface{}{"type": "string", "minLength": 1},
	},
}

func TestSchema_Validate(t *testing.T) {
	schema := MustCompile(contactSchema)

	tests := []struct {
		name       string
		doc        interface{}
		valid      bool
		wantErrors int
		wantInSum  []string
	}{
		{
			name:  "valid",
			doc:   map[string]interface{}{"email": "a@x.com", "name": "A"},
			valid: true,
		},
		{
			name:       "missing fields",
			doc:        map[string]interface{}{},
			wantErrors: 2,
			wantInSum:  []string{"email", "name"},
		},
		{
			name:       "wrong type",
			doc:        map[string]interface{}{"email": 42, "name": "A"},
			wantErrors: 1,
			wantInSum:  []string{"email"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := schema.Validate(tt.doc)
			require.NotNil(t, result)
			assert.Equal(t, tt.valid, result.Valid)
			if tt.valid {
				assert.Empty(t, result.Errors)
				assert.Empty(t, result.Summary())
				return
			}
			assert.Len(t, result.Errors, tt.wantErrors)
			for _, want := range tt.wantInSum {
				assert.Contains(t, result.Summary(), want)
			}
		})
	}
}

func TestCompile_InvalidSchema(t *testing.T) {
	_, err := Compile(map[string]interface{}{"type": 12})
	assert.Error(t, err)

	assert.Panics(t, func() { MustCompile(map[string]interface{}{"type": 12}) })
}

func TestSummary_Nil(t *testing.T) {
	var r *ValidationResult
	assert.Equal(t, "", r.Summary())
}
