package strings_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	strutil "stablegate/pkg/platform/strings"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name   string
		input  []string
		expect []string
	}{
		{
			name:   "nil slice passes through",
			input:  nil,
			expect: nil,
		},
		{
			name:   "empty slice passes through",
			input:  []string{},
			expect: []string{},
		},
		{
			name:   "whitespace trimmed",
			input:  []string{"  issuer ", "regulator\t"},
			expect: []string{"issuer", "regulator"},
		},
		{
			name:   "empties and blanks dropped",
			input:  []string{"", "  ", "issuer", ""},
			expect: []string{"issuer"},
		},
		{
			name:   "duplicates collapse to first occurrence",
			input:  []string{"issuer", "regulator", " issuer", "regulator"},
			expect: []string{"issuer", "regulator"},
		},
		{
			name:   "order preserved",
			input:  []string{"c", "a", "b", "a"},
			expect: []string{"c", "a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, strutil.DedupeAndTrim(tt.input))
		})
	}
}
