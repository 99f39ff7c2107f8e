package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMAC(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  MAC
		ok    bool
	}{
		{"colon separated", "aa:bb:cc:dd:ee:ff", "aa:bb:cc:dd:ee:ff", true},
		{"dash separated", "AA-BB-CC-DD-EE-FF", "aa:bb:cc:dd:ee:ff", true},
		{"uppercase normalized", "AA:BB:CC:DD:EE:FF", "aa:bb:cc:dd:ee:ff", true},
		{"surrounding whitespace", "  aa:bb:cc:dd:ee:ff ", "aa:bb:cc:dd:ee:ff", true},
		{"too short", "aa:bb:cc:dd:ee", "", false},
		{"too long", "aa:bb:cc:dd:ee:ff:00", "", false},
		{"non-hex", "zz:bb:cc:dd:ee:ff", "", false},
		{"ip address", "192.168.1.10", "", false},
		{"empty", "", "", false},
		{"mixed separators rejected by octet", "aa:bb-cc:dd:ee:ff", "aa:bb:cc:dd:ee:ff", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseMAC(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestIsValidMAC(t *testing.T) {
	assert.True(t, IsValidMAC("00:11:22:33:44:55"))
	assert.False(t, IsValidMAC("not-a-mac"))
}
