package tokenizer

import (
	"errors"
	"strings"
	"testing"
)

const sampleTokens = `<|startoftranscript|> 0
<|endoftext|> 1
<|nospeech|> 2
<|transcribe|> 3
<|notimestamps|> 4
<|en|> 5
<|de|> 6
▁hello 7
▁world 8
! 9
`

func mustTokenizer(t *testing.T, data string) *Tokenizer {
	t.Helper()
	entries, err := Parse(strings.NewReader(data))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	tok, err := New(entries)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return tok
}

func TestParse(t *testing.T) {
	entries, err := Parse(strings.NewReader(sampleTokens))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(entries) != 10 {
		t.Fatalf("expected 10 entries, got %d", len(entries))
	}
	if entries[7].Text != "▁hello" || entries[7].ID != 7 {
		t.Errorf("unexpected entry: %+v", entries[7])
	}
}

func TestParseTokenWithSpaces(t *testing.T) {
	entries, err := Parse(strings.NewReader("a b c 0\n<|endoftext|> 1\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if entries[0].Text != "a b c" {
		t.Errorf("expected token text to keep inner spaces, got %q", entries[0].Text)
	}
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"empty":      "",
		"missing id": "justoneword\n",
		"bad id":     "hello notanumber\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(data)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestNewRejectsSparseIDs(t *testing.T) {
	entries := []Entry{
		{ID: 0, Text: "<|startoftranscript|>"},
		{ID: 5, Text: "<|endoftext|>"},
	}
	if _, err := New(entries); err == nil {
		t.Error("expected error for id outside dense range")
	}
}

func TestNewRejectsDuplicateIDs(t *testing.T) {
	entries := []Entry{
		{ID: 0, Text: "<|startoftranscript|>"},
		{ID: 0, Text: "<|endoftext|>"},
	}
	if _, err := New(entries); err == nil {
		t.Error("expected error for duplicate id")
	}
}

func TestNewRequiresControlTokens(t *testing.T) {
	entries := []Entry{{ID: 0, Text: "hello"}, {ID: 1, Text: "world"}}
	if _, err := New(entries); err == nil {
		t.Error("expected error for missing start/end tokens")
	}
}

func TestControlTokenResolution(t *testing.T) {
	tok := mustTokenizer(t, sampleTokens)
	if tok.Start() != 0 {
		t.Errorf("Start() = %d, want 0", tok.Start())
	}
	if tok.End() != 1 {
		t.Errorf("End() = %d, want 1", tok.End())
	}
	if tok.NoSpeech() != 2 {
		t.Errorf("NoSpeech() = %d, want 2", tok.NoSpeech())
	}
	if !tok.IsControl(3) {
		t.Error("expected <|transcribe|> to be a control token")
	}
	if tok.IsControl(7) {
		t.Error("did not expect ▁hello to be a control token")
	}
}

func TestDecode(t *testing.T) {
	tok := mustTokenizer(t, sampleTokens)

	got := tok.Decode([]int{0, 5, 3, 4, 7, 8, 9, 1})
	if got != "hello world!" {
		t.Errorf("Decode = %q, want %q", got, "hello world!")
	}
}

func TestDecodeSkipsOutOfRange(t *testing.T) {
	tok := mustTokenizer(t, sampleTokens)
	if got := tok.Decode([]int{-1, 7, 99}); got != "hello" {
		t.Errorf("Decode = %q, want %q", got, "hello")
	}
}

func TestDecodeEmpty(t *testing.T) {
	tok := mustTokenizer(t, sampleTokens)
	if got := tok.Decode(nil); got != "" {
		t.Errorf("Decode(nil) = %q, want empty", got)
	}
}

func TestPrefixAuto(t *testing.T) {
	tok := mustTokenizer(t, sampleTokens)
	for _, lang := range []string{"", LanguageAuto} {
		ids, err := tok.Prefix(lang, false)
		if err != nil {
			t.Fatalf("Prefix(%q) failed: %v", lang, err)
		}
		if len(ids) != 1 || ids[0] != tok.Start() {
			t.Errorf("Prefix(%q) = %v, want [start]", lang, ids)
		}
	}
}

func TestPrefixConcreteLanguage(t *testing.T) {
	tok := mustTokenizer(t, sampleTokens)
	ids, err := tok.Prefix("en", false)
	if err != nil {
		t.Fatalf("Prefix failed: %v", err)
	}
	want := []int{0, 5, 3, 4}
	if len(ids) != len(want) {
		t.Fatalf("Prefix = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("Prefix = %v, want %v", ids, want)
		}
	}
}

func TestPrefixUnsupportedLanguage(t *testing.T) {
	tok := mustTokenizer(t, sampleTokens)
	_, err := tok.Prefix("xx", false)
	if !errors.Is(err, ErrUnsupportedLanguage) {
		t.Errorf("expected ErrUnsupportedLanguage, got %v", err)
	}
}

func TestPrefixUnsupportedLanguageFallback(t *testing.T) {
	tok := mustTokenizer(t, sampleTokens)
	ids, err := tok.Prefix("xx", true)
	if err != nil {
		t.Fatalf("Prefix with fallback failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != tok.Start() {
		t.Errorf("fallback prefix = %v, want [start]", ids)
	}
}

func TestLanguages(t *testing.T) {
	tok := mustTokenizer(t, sampleTokens)
	codes := tok.Languages()
	if len(codes) != 2 {
		t.Fatalf("Languages() = %v, want en and de", codes)
	}
	seen := map[string]bool{}
	for _, c := range codes {
		seen[c] = true
	}
	if !seen["en"] || !seen["de"] {
		t.Errorf("Languages() = %v, want en and de", codes)
	}
}
