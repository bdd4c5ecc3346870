package dedup

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// Fingerprint returns the hex HMAC-SHA256 of the canonical form of body.
func Fingerprint(secret []byte, body interface{}) (string, error) {
	canonical, err := Canonicalize(body)
	if err != nil {
		return "", err
	}
	h := hmac.New(sha256.New, secret)
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Canonicalize renders body as JSON with object keys sorted at every depth and
// array order kept. A map or slice reached a second time is omitted: dropped
// when it is an object value, written as null when it is an array element.
// This keeps self-referencing structures finite.
func Canonicalize(body interface{}) ([]byte, error) {
	c := canonicalizer{seen: make(map[refKey]struct{})}
	c.isRepeated(body)
	var buf bytes.Buffer
	if err := c.write(&buf, body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type refKey struct {
	ptr  uintptr
	kind reflect.Kind
	len  int
}

type canonicalizer struct {
	seen map[refKey]struct{}
}

// visit reports whether v is a reference already written. Empty containers are
// never tracked because distinct empty values may share an address.
func (c *canonicalizer) visit(v reflect.Value) bool {
	if v.Len() == 0 {
		return false
	}
	key := refKey{ptr: v.Pointer(), kind: v.Kind(), len: v.Len()}
	if _, ok := c.seen[key]; ok {
		return true
	}
	c.seen[key] = struct{}{}
	return false
}

func (c *canonicalizer) isRepeated(v interface{}) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice:
		if rv.IsNil() {
			return false
		}
		return c.visit(rv)
	default:
		return false
	}
}

func (c *canonicalizer) write(buf *bytes.Buffer, v interface{}) error {
	switch x := v.(type) {
	case map[string]interface{}:
		return c.writeObject(buf, x)
	case []interface{}:
		return c.writeArray(buf, x)
	default:
		return writeScalar(buf, x)
	}
}

func (c *canonicalizer) writeObject(buf *bytes.Buffer, m map[string]interface{}) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	first := true
	for _, k := range keys {
		val := m[k]
		if c.isRepeated(val) {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		if err := writeScalar(buf, k); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := c.write(buf, val); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func (c *canonicalizer) writeArray(buf *bytes.Buffer, items []interface{}) error {
	buf.WriteByte('[')
	for i, item := range items {
		if i > 0 {
			buf.WriteByte(',')
		}
		if c.isRepeated(item) {
			buf.WriteString("null")
			continue
		}
		if err := c.write(buf, item); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func writeScalar(buf *bytes.Buffer, v interface{}) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("canonicalize value of type %T: %w", v, err)
	}
	// Encode appends a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}
