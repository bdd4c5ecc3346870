package models

// QuoteRequestSchema is the JSON schema every POST /send-quote body must satisfy.
// Line items are only required to be objects; their numeric fields are coerced
// leniently when the total is computed.
var QuoteRequestSchema = map[string]interface{}{
	"$schema":  "http://json-schema.org/draft-07/schema#",
	"type":     "object",
	"required": []interface{}{"name", "email", "phone", "products"},
	"properties": map[string]interface{}{
		"name": map[string]interface{}{
			"type":      "string",
			"minLength": 1,
			"maxLength": 200,
			"pattern":   `\S`,
		},
		"email": map[string]interface{}{
			"type":      "string",
			"format":    "email",
			"maxLength": 320,
		},
		"phone": map[string]interface{}{
			"type":      "string",
			"minLength": 1,
			"maxLength": 50,
			"pattern":   `\S`,
		},
		"company": map[string]interface{}{
			"type": []interface{}{"string", "null"},
		},
		"message": map[string]interface{}{
			"type": []interface{}{"string", "null"},
		},
		"products": map[string]interface{}{
			"type":     "array",
			"minItems": 1,
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"product": map[string]interface{}{
						"type": []interface{}{"object", "null"},
						"properties": map[string]interface{}{
							"name": map[string]interface{}{"type": []interface{}{"string", "null"}},
						},
					},
				},
			},
		},
	},
}
