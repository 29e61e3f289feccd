package segment

import (
	"reflect"
	"testing"
)

func TestLastSentenceEnd(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		skipComma bool
		minLength int
		want      int
	}{
		{name: "empty text", text: "", skipComma: true, minLength: 10, want: -1},
		{name: "below min length", text: "short.", skipComma: true, minLength: 10, want: -1},
		{name: "period at end", text: "Hello there world.", skipComma: true, minLength: 5, want: 17},
		{name: "last of several periods", text: "One. Two. Three went on", skipComma: true, minLength: 2, want: 8},
		{name: "cjk full stop", text: "今天天气很好。明天再说", skipComma: true, minLength: 2, want: 6},
		{name: "newline as boundary", text: "first line\nmore text here", skipComma: true, minLength: 4, want: 10},
		{name: "decimal point mid text", text: "the value 3.14 rounded", skipComma: true, minLength: 4, want: -1},
		{name: "trailing decimal deferred", text: "the value is 3.", skipComma: true, minLength: 4, want: -1},
		{name: "comma skipped by default", text: "well, that depends on it", skipComma: true, minLength: 4, want: -1},
		{name: "comma fallback", text: "well, that depends on it", skipComma: false, minLength: 4, want: 4},
		{name: "cjk comma fallback", text: "我想了想，还是不去了吧", skipComma: false, minLength: 2, want: 4},
		{name: "boundary before min length", text: "a. bcdefghijklmnop", skipComma: true, minLength: 10, want: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LastSentenceEnd(tt.text, tt.skipComma, tt.minLength)
			if got != tt.want {
				t.Fatalf("LastSentenceEnd(%q, %v, %d) = %d, want %d", tt.text, tt.skipComma, tt.minLength, got, tt.want)
			}
		})
	}
}

func TestSegmenterDecimalAcrossChunks(t *testing.T) {
	s := NewSegmenter(4, true)

	var got []string
	got = append(got, s.Feed("Hello world. The rate is 3.")...)
	got = append(got, s.Feed("14 today! ")...)

	want := []string{"Hello world.", "The rate is 3.14 today!"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Feed chunks = %q, want %q", got, want)
	}
}

func TestSegmenterFlushRemainder(t *testing.T) {
	s := NewSegmenter(4, true)

	if chunks := s.Feed("This is done. And a tail"); len(chunks) != 1 || chunks[0] != "This is done." {
		t.Fatalf("Feed() = %q, want [%q]", chunks, "This is done.")
	}
	if rest := s.Flush(); rest != "And a tail" {
		t.Fatalf("Flush() = %q, want %q", rest, "And a tail")
	}
	if rest := s.Flush(); rest != "" {
		t.Fatalf("second Flush() = %q, want empty", rest)
	}
}

func TestSegmenterCJKStream(t *testing.T) {
	s := NewSegmenter(2, true)

	if chunks := s.Feed("今天的天气真不错。我们出去"); len(chunks) != 1 || chunks[0] != "今天的天气真不错。" {
		t.Fatalf("Feed() = %q, want [%q]", chunks, "今天的天气真不错。")
	}
	if chunks := s.Feed("走走吧！"); len(chunks) != 1 || chunks[0] != "我们出去走走吧！" {
		t.Fatalf("Feed() = %q, want [%q]", chunks, "我们出去走走吧！")
	}
}
