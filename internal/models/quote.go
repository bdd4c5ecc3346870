package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// QuoteRequest is the body of POST /send-quote. It lives only as long as its job.
type QuoteRequest struct {
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Phone    string     `json:"phone"`
	Company  string     `json:"company,omitempty"`
	Message  string     `json:"message,omitempty"`
	Products []LineItem `json:"products"`
}

type LineItem struct {
	Product    Product `json:"product"`
	Quantity   Number  `json:"quantity"`
	TotalPrice Number  `json:"totalPrice"`
}

type Product struct {
	Name  string `json:"name"`
	Price Number `json:"price"`
}

// Number is a lenient JSON number. Cart data arrives from a browser, so quantities
// and prices may be numbers, numeric strings, booleans or garbage. Anything that
// does not coerce to a finite number decodes to zero instead of failing the request.
type Number struct {
	Value float64
	// IsNumber is true only when the JSON value was a number literal.
	IsNumber bool
	// Present is false when the key was absent or null.
	Present bool
}

func (n *Number) UnmarshalJSON(b []byte) error {
	*n = Number{}
	var raw interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}
	if raw == nil {
		return nil
	}
	n.Present = true
	n.Value, n.IsNumber = Coerce(raw)
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Present {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// Coerce converts a decoded JSON value to a finite float64. The boolean reports
// whether v was already a JSON number.
func Coerce(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return finite(x), true
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		return finite(f), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return finite(f), false
	case bool:
		if x {
			return 1, false
		}
		return 0, false
	default:
		return 0, false
	}
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// Job is one accepted quote request waiting for background processing.
type Job struct {
	ID          string                 `json:"id"`
	Body        map[string]interface{} `json:"body"`
	Request     QuoteRequest           `json:"request"`
	Headers     map[string]string      `json:"headers,omitempty"`
	Fingerprint string                 `json:"fingerprint"`
	ReceivedAt  time.Time              `json:"receivedAt"`
	// BaseURL is the public origin download links are built on.
	BaseURL string `json:"baseUrl,omitempty"`
}
