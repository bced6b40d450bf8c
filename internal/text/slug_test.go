package text

import "testing"

func TestSlug(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{
			name:   "lowercases and hyphenates",
			input:  "This circle is drawn.",
			maxLen: 40,
			want:   "this-circle-is-drawn",
		},
		{
			name:   "collapses punctuation runs",
			input:  "Let's go -- now!",
			maxLen: 40,
			want:   "let-s-go-now",
		},
		{
			name:   "truncates at word boundary",
			input:  "one two three four five",
			maxLen: 12,
			want:   "one-two",
		},
		{
			name:   "keeps digits",
			input:  "Shift 2 units",
			maxLen: 40,
			want:   "shift-2-units",
		},
		{
			name:   "drops non-ascii",
			input:  "héllo wörld",
			maxLen: 40,
			want:   "h-llo-w-rld",
		},
		{
			name:   "zero max keeps everything",
			input:  "a b c d e",
			maxLen: 0,
			want:   "a-b-c-d-e",
		},
		{
			name:   "empty input",
			input:  "!!!",
			maxLen: 10,
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Slug(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("Slug(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}
