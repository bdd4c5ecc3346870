package render

import (
	"math"
	"strconv"
	"strings"

	"quote-service/internal/models"
)

// ComputeTotal sums the line totals of items. A numeric totalPrice wins over
// quantity × price; anything non-numeric counts as zero. The result is finite
// and rounded to cents.
func ComputeTotal(items []models.LineItem) float64 {
	var sum float64
	for _, item := range items {
		sum += LineTotal(item)
	}
	return Round2(safe(sum))
}

// LineTotal is the contribution of a single item to the quote total.
func LineTotal(item models.LineItem) float64 {
	if item.TotalPrice.IsNumber {
		return safe(item.TotalPrice.Value)
	}
	return safe(item.Quantity.Value * item.Product.Price.Value)
}

func safe(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// Round2 rounds v to two decimal places, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// FormatAmount renders v without trailing zeros (30, 30.5, 30.25) using a
// space as thousands separator, the way amounts appear in subjects.
func FormatAmount(v float64) string {
	s := strconv.FormatFloat(Round2(v), 'f', -1, 64)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	b.WriteString(frac)
	return b.String()
}
