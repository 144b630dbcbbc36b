package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEVAFromID(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		expected string
	}{
		{name: "composite", id: "A=1@O=Köln Hbf@X=6958730@Y=50943029@U=80@L=8000207@B=1@p=1700000000@", expected: "8000207"},
		{name: "bare", id: "8000207", expected: "8000207"},
		{name: "bare with whitespace", id: " 8000085 ", expected: "8000085"},
		{name: "composite without L", id: "A=1@O=Köln Hbf@", expected: "A=1@O=Köln Hbf@"},
		{name: "empty L", id: "A=1@L=@", expected: "A=1@L=@"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EVAFromID(tt.id))
		})
	}
}

func TestNameFromID(t *testing.T) {
	assert.Equal(t, "Düsseldorf Hbf", NameFromID("A=1@O=Düsseldorf Hbf@L=8000085@"))
	assert.Equal(t, "8000085", NameFromID("8000085"))
}

func TestExtractKey(t *testing.T) {
	value, ok := ExtractKey("A=1@O=Köln Hbf@L=8000207@", "A")
	assert.True(t, ok)
	assert.Equal(t, "1", value)

	_, ok = ExtractKey("A=1@O=Köln Hbf@", "L")
	assert.False(t, ok)
}
