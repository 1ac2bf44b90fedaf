package tokens

import (
	"testing"

	"github.com/hayahq/haya/pkg/models"
)

func TestCount(t *testing.T) {
	c := NewSimpleCounter()
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"Hello World!", 3},
		{"Hello", 2},
		{"abcdefgh", 2},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := c.Count(tt.text); got != tt.want {
				t.Errorf("Count(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestCountMessages(t *testing.T) {
	c := NewSimpleCounter()
	msgs := []models.Message{
		{Role: models.RoleUser, Content: "Hello"},
		{Role: models.RoleAssistant, Content: "Hi there!"},
	}
	if got := c.CountMessages(msgs); got != 13 {
		t.Errorf("CountMessages = %d, want 13", got)
	}
	if got := c.CountMessages(nil); got != 0 {
		t.Errorf("CountMessages(nil) = %d, want 0", got)
	}
}

func TestCountMessage(t *testing.T) {
	c := NewSimpleCounter()
	msg := models.Message{Role: models.RoleUser, Content: "Hello"}
	if got := c.CountMessage(msg); got != 6 {
		t.Errorf("CountMessage = %d, want 6", got)
	}
}
