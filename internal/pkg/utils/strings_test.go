package utils

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 3, "hel"},
		{"hello", 0, ""},
		{"äöüß", 2, "äö"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Truncate(tt.in, tt.max))
	}
}

func TestTruncateError(t *testing.T) {
	assert.Equal(t, "", TruncateError(nil))
	long := errors.New(strings.Repeat("x", MaxErrorLength+50))
	assert.Len(t, TruncateError(long), MaxErrorLength)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "19.99 EUR", FormatAmount(1999, "eur"))
	assert.Equal(t, "0.05 USD", FormatAmount(5, "usd"))
	assert.Equal(t, "-1.00 EUR", FormatAmount(-100, "EUR"))
}
