package dedup

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("fingerprint-secret")

func decode(t *testing.T, s string) interface{} {
	t.Helper()
	var v interface{}
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

// ==========================
// Canonical Form Tests
// ==========================

func TestCanonicalize_SortsKeysAtEveryDepth(t *testing.T) {
	got, err := Canonicalize(decode(t, `{"b":1,"a":{"z":[3,{"y":true,"x":null}],"c":"<&>"}}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"c":"<&>","z":[3,{"x":null,"y":true}]},"b":1}`, string(got))
}

func TestCanonicalize_KeepsArrayOrder(t *testing.T) {
	a, err := Canonicalize(decode(t, `[1,2,3]`))
	require.NoError(t, err)
	b, err := Canonicalize(decode(t, `[3,2,1]`))
	require.NoError(t, err)
	assert.NotEqual(t, string(a), string(b))
}

func TestCanonicalize_OmitsRepeatedReferences(t *testing.T) {
	shared := map[string]interface{}{"k": "v"}
	body := map[string]interface{}{
		"first":  shared,
		"second": shared,
		"list":   []interface{}{shared},
	}
	got, err := Canonicalize(body)
	require.NoError(t, err)
	// "first" is written, the later references are dropped or nulled.
	assert.Equal(t, `{"first":{"k":"v"},"list":[null]}`, string(got))
}

func TestCanonicalize_SelfReferenceTerminates(t *testing.T) {
	body := map[string]interface{}{"name": "A"}
	body["self"] = body
	list := []interface{}{"x", nil}
	list[1] = list
	body["list"] = list

	got, err := Canonicalize(body)
	require.NoError(t, err)
	assert.Equal(t, `{"list":["x",null],"name":"A"}`, string(got))
}

func TestCanonicalize_EmptyContainersNotTreatedAsRepeats(t *testing.T) {
	body := map[string]interface{}{
		"a": []interface{}{},
		"b": []interface{}{},
		"c": map[string]interface{}{},
		"d": map[string]interface{}{},
	}
	got, err := Canonicalize(body)
	require.NoError(t, err)
	assert.Equal(t, `{"a":[],"b":[],"c":{},"d":{}}`, string(got))
}

// ==========================
// Fingerprint Tests
// ==========================

func TestFingerprint_Stability(t *testing.T) {
	tests := []struct {
		name  string
		a     string
		b     string
		equal bool
	}{
		{
			name:  "top level key order",
			a:     `{"name":"A","email":"a@x.com","phone":"1"}`,
			b:     `{"phone":"1","email":"a@x.com","name":"A"}`,
			equal: true,
		},
		{
			name:  "nested key order",
			a:     `{"products":[{"product":{"name":"P","price":10},"quantity":3}]}`,
			b:     `{"products":[{"quantity":3,"product":{"price":10,"name":"P"}}]}`,
			equal: true,
		},
		{
			name:  "number formatting",
			a:     `{"q":1.0}`,
			b:     `{"q":1}`,
			equal: true,
		},
		{
			name:  "different value",
			a:     `{"name":"A"}`,
			b:     `{"name":"B"}`,
			equal: false,
		},
		{
			name:  "different product order",
			a:     `{"products":[{"id":1},{"id":2}]}`,
			b:     `{"products":[{"id":2},{"id":1}]}`,
			equal: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fa, err := Fingerprint(testSecret, decode(t, tt.a))
			require.NoError(t, err)
			fb, err := Fingerprint(testSecret, decode(t, tt.b))
			require.NoError(t, err)

			assert.Len(t, fa, 64)
			if tt.equal {
				assert.Equal(t, fa, fb)
			} else {
				assert.NotEqual(t, fa, fb)
			}
		})
	}
}

func TestFingerprint_KeyedBySecret(t *testing.T) {
	body := decode(t, `{"name":"A"}`)
	a, err := Fingerprint([]byte("one"), body)
	require.NoError(t, err)
	b, err := Fingerprint([]byte("two"), body)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
