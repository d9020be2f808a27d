// Package sentence turns a growing text buffer into complete, speakable
// sentences, eagerly for a full text or incrementally with the unterminated
// remainder carried between calls.
package sentence

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Unit is one speakable sentence (or final remainder) cut from the input
// stream. Seq increases monotonically per emitted Unit within one Segmenter
// and is what downstream artifact names are derived from. Units are never
// mutated after emission.
type Unit struct {
	Text string
	Seq  int
}

// Segmenter cuts sentences out of an incrementally growing buffer. A
// sentence ends where one of `. ! ?` is immediately followed by whitespace;
// the punctuation stays with the sentence it ends. Anything after the last
// boundary is retained for the next Feed or for Flush.
//
// The zero value is not usable; call NewSegmenter.
type Segmenter struct {
	buf string
	seq int
}

// NewSegmenter returns an empty Segmenter.
func NewSegmenter() *Segmenter {
	return &Segmenter{}
}

// Feed appends chunk to the internal buffer and returns every complete
// sentence that became available, in order. Sentences that contain no letter
// after trimming are dropped without consuming a sequence number.
func (s *Segmenter) Feed(chunk string) []Unit {
	s.buf += chunk

	var units []Unit
	start := 0
	for i := 0; i < len(s.buf); {
		r, size := utf8.DecodeRuneInString(s.buf[i:])
		if isTerminal(r) {
			next, nsize := utf8.DecodeRuneInString(s.buf[i+size:])
			if nsize > 0 && unicode.IsSpace(next) {
				if u, ok := s.cut(s.buf[start : i+size]); ok {
					units = append(units, u)
				}
				start = i + size
			}
		}
		i += size
	}
	s.buf = s.buf[start:]
	return units
}

// Flush returns the trimmed remainder as a final Unit, if anything speakable
// is pending. The buffer is empty afterwards either way.
func (s *Segmenter) Flush() (Unit, bool) {
	rest := s.buf
	s.buf = ""
	return s.cut(rest)
}

// Pending reports whether unterminated text is buffered.
func (s *Segmenter) Pending() bool {
	return strings.TrimSpace(s.buf) != ""
}

// Split eagerly splits a complete text into its full sequence of sentences,
// remainder included.
func Split(text string) []Unit {
	seg := NewSegmenter()
	units := seg.Feed(text)
	if u, ok := seg.Flush(); ok {
		units = append(units, u)
	}
	return units
}

// cut trims raw and emits it as the next Unit if it is speakable.
func (s *Segmenter) cut(raw string) (Unit, bool) {
	text := strings.TrimSpace(raw)
	if !speakable(text) {
		return Unit{}, false
	}
	u := Unit{Text: text, Seq: s.seq}
	s.seq++
	return u, true
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// speakable requires at least one letter; bare numbers, bullets and
// punctuation runs produce no synthesis work.
func speakable(text string) bool {
	for _, r := range text {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
