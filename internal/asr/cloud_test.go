package asr

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSnippetTruncatesOnRuneBoundary(t *testing.T) {
	body := []byte(strings.Repeat("ошибка ", 60))
	got := snippet(body)
	if !utf8.ValidString(got) {
		t.Fatalf("snippet is not valid UTF-8: %q", got)
	}
	if !strings.HasSuffix(got, "...") || utf8.RuneCountInString(got) != 203 {
		t.Fatalf("snippet = %q (%d runes)", got, utf8.RuneCountInString(got))
	}

	if got := snippet([]byte(`{"error":{"message":"неверный ключ"}}`)); got != "неверный ключ" {
		t.Fatalf("api message = %q", got)
	}
	if got := snippet([]byte("bad \xff body")); !utf8.ValidString(got) {
		t.Fatalf("invalid bytes leaked: %q", got)
	}
}
