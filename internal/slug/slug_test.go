package slug

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMake(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{"simple", "Getting Things Done", "getting-things-done"},
		{"whitespace runs collapse", "hello   world", "hello-world"},
		{"subtitle removed", "Main Title: The Subtitle", "main-title"},
		{"only first segment kept", "Title: Part 1: Section A", "title"},
		{"leading the dropped", "The Power Broker", "power-broker"},
		{"leading a dropped", "A Wizard of Earthsea", "wizard-of-earthsea"},
		{"bare article kept", "The", "the"},
		{"punctuation stripped", "What's the Deal?!", "whats-the-deal"},
		{"diacritics folded", "Café Europa", "cafe-europa"},
		{"hyphens collapse", "Spy -- Catcher", "spy-catcher"},
		{"numbers kept", "1984", "1984"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Make(tt.title))
		})
	}
}

func TestMakeKeepSubtitle(t *testing.T) {
	assert.Equal(t, "main-title-the-subtitle", MakeKeepSubtitle("Main Title: The Subtitle"))
	assert.Equal(t, "getting-things-done", MakeKeepSubtitle("Getting Things Done"))
}

func TestMakeDeterministic(t *testing.T) {
	// The same title must slug identically regardless of source formatting.
	a := Make("Getting Things Done: The Art of Stress-Free Productivity")
	b := Make("Getting Things Done")
	assert.Equal(t, a, b)
}
