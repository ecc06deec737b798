// Package tokenizer maps between decoder token ids and text using the
// vocabulary shipped next to the model graphs.
package tokenizer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrUnsupportedLanguage is returned when a requested language has no marker
// token in the loaded vocabulary.
var ErrUnsupportedLanguage = errors.New("tokenizer: unsupported language")

// LanguageAuto selects automatic language detection: the decoder is seeded
// without a language marker and picks one on its first step.
const LanguageAuto = "auto"

const (
	tokenStart        = "<|startoftranscript|>"
	tokenEnd          = "<|endoftext|>"
	tokenNoSpeech     = "<|nospeech|>"
	tokenNoCaptions   = "<|nocaptions|>"
	tokenTranscribe   = "<|transcribe|>"
	tokenNoTimestamps = "<|notimestamps|>"
)

// Entry is one vocabulary line: a token id and its surface text.
type Entry struct {
	ID   int
	Text string
}

// Parse reads a tokens file with one "text id" pair per line. Token text may
// contain spaces; the id is the field after the last space.
func Parse(r io.Reader) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Text()
		if strings.TrimSpace(raw) == "" {
			continue
		}
		cut := strings.LastIndexByte(raw, ' ')
		if cut < 0 {
			return nil, fmt.Errorf("tokens line %d: missing id field", line)
		}
		id, err := strconv.Atoi(strings.TrimSpace(raw[cut+1:]))
		if err != nil {
			return nil, fmt.Errorf("tokens line %d: bad id: %w", line, err)
		}
		entries = append(entries, Entry{ID: id, Text: raw[:cut]})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read tokens: %w", err)
	}
	if len(entries) == 0 {
		return nil, errors.New("tokens file is empty")
	}
	return entries, nil
}

// Tokenizer is an immutable bidirectional id<->text mapping with the control
// tokens resolved. No state is kept across Decode calls.
type Tokenizer struct {
	texts   []string
	control []bool
	langs   map[string]int

	start        int
	end          int
	noSpeech     int
	transcribe   int
	noTimestamps int
}

// New builds a tokenizer from vocabulary entries. Ids must form a dense
// [0, len) range with exactly one text per id.
func New(entries []Entry) (*Tokenizer, error) {
	t := &Tokenizer{
		texts:        make([]string, len(entries)),
		control:      make([]bool, len(entries)),
		langs:        make(map[string]int),
		start:        -1,
		end:          -1,
		noSpeech:     -1,
		transcribe:   -1,
		noTimestamps: -1,
	}
	seen := make([]bool, len(entries))
	for _, e := range entries {
		if e.ID < 0 || e.ID >= len(entries) {
			return nil, fmt.Errorf("token id %d outside dense range [0,%d)", e.ID, len(entries))
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("duplicate token id %d", e.ID)
		}
		seen[e.ID] = true
		t.texts[e.ID] = e.Text

		if !strings.HasPrefix(e.Text, "<|") || !strings.HasSuffix(e.Text, "|>") {
			continue
		}
		t.control[e.ID] = true
		switch e.Text {
		case tokenStart:
			t.start = e.ID
		case tokenEnd:
			t.end = e.ID
		case tokenNoSpeech, tokenNoCaptions:
			t.noSpeech = e.ID
		case tokenTranscribe:
			t.transcribe = e.ID
		case tokenNoTimestamps:
			t.noTimestamps = e.ID
		default:
			if code := e.Text[2 : len(e.Text)-2]; isLanguageCode(code) {
				t.langs[code] = e.ID
			}
		}
	}
	if t.start < 0 || t.end < 0 {
		return nil, errors.New("vocabulary is missing start/end control tokens")
	}
	return t, nil
}

func isLanguageCode(s string) bool {
	if len(s) < 2 || len(s) > 3 {
		return false
	}
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

// Size returns the vocabulary size.
func (t *Tokenizer) Size() int { return len(t.texts) }

// Start returns the start-of-transcript token id.
func (t *Tokenizer) Start() int { return t.start }

// End returns the end-of-sequence token id.
func (t *Tokenizer) End() int { return t.end }

// NoSpeech returns the no-speech marker id, or -1 if the vocabulary has none.
func (t *Tokenizer) NoSpeech() int { return t.noSpeech }

// IsControl reports whether id is a reserved control token.
func (t *Tokenizer) IsControl(id int) bool {
	return id >= 0 && id < len(t.control) && t.control[id]
}

// Decode concatenates token texts in order, applying the model's whitespace
// merge markers and dropping control tokens.
func (t *Tokenizer) Decode(ids []int) string {
	var b strings.Builder
	for _, id := range ids {
		if id < 0 || id >= len(t.texts) || t.control[id] {
			continue
		}
		text := t.texts[id]
		text = strings.ReplaceAll(text, "▁", " ") // sentencepiece word boundary
		text = strings.ReplaceAll(text, "Ġ", " ") // byte-level BPE space marker
		b.WriteString(text)
	}
	return strings.TrimSpace(b.String())
}

// Prefix returns the control-token seed for a recognition pass:
// start-of-transcript, then language marker and task tokens when a concrete
// language is requested. With LanguageAuto only the start token is emitted and
// the decoder's first step selects the language.
//
// An unknown language code fails with ErrUnsupportedLanguage unless
// fallbackAuto is set, in which case the auto seed is returned instead.
func (t *Tokenizer) Prefix(language string, fallbackAuto bool) ([]int, error) {
	if language == "" || language == LanguageAuto {
		return []int{t.start}, nil
	}
	langID, ok := t.langs[strings.ToLower(language)]
	if !ok {
		if fallbackAuto {
			return []int{t.start}, nil
		}
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)
	}
	ids := []int{t.start, langID}
	if t.transcribe >= 0 {
		ids = append(ids, t.transcribe)
	}
	if t.noTimestamps >= 0 {
		ids = append(ids, t.noTimestamps)
	}
	return ids, nil
}

// Languages lists the language codes present in the vocabulary.
func (t *Tokenizer) Languages() []string {
	codes := make([]string, 0, len(t.langs))
	for code := range t.langs {
		codes = append(codes, code)
	}
	return codes
}
