package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestByteCountSI(t *testing.T) {
	tests := []struct {
		name     string
		bytes    int64
		expected string
	}{
		{name: "bytes", bytes: 500, expected: "500 B"},
		{name: "kilobytes", bytes: 1500, expected: "1.5 kB"},
		{name: "upload limit", bytes: 10 * 1024 * 1024, expected: "10.5 MB"},
		{name: "gigabytes", bytes: 2_000_000_000, expected: "2.0 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ByteCountSI(tt.bytes))
		})
	}
}
