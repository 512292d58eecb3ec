// Package llmseg turns a stream of LLM token chunks into playable
// sentence units, favoring time-to-first-sentence over prosody. It is
// the isolated, unit-testable core of the LLM pipeline stage.
package llmseg

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var englishEndMarks = map[rune]bool{'!': true, '?': true, '.': true, ',': true, ':': true, ';': true}

var chineseEndMarks = map[rune]bool{'，': true, '。': true, '！': true, '？': true, '：': true, '；': true, '、': true}

func isSentenceEndMark(r rune) bool {
	return englishEndMarks[r] || chineseEndMarks[r]
}

// Segmenter accumulates streamed text chunks and decides, chunk by
// chunk, when enough text has arrived to emit a playable sentence. It is
// not safe for concurrent use; one LLM answer owns one Segmenter.
type Segmenter struct {
	chunks        []string
	isFirstSentence bool
}

// New returns a Segmenter ready for the start of a new answer.
func New() *Segmenter {
	return &Segmenter{isFirstSentence: true}
}

// Feed appends one streamed chunk of token text and reports whether it
// completed a sentence. Each call finds the right-most punctuation mark
// in just this chunk (not the whole buffer), which keeps unsegmented
// tails intact for the next call while still allowing mid-chunk
// emission.
func (s *Segmenter) Feed(chunkContent string) (sentence string, ok bool) {
	if chunkContent == "" {
		return "", false
	}

	before, mark, remain := splitRightmostPunct(chunkContent)
	if before != "" {
		s.chunks = append(s.chunks, before)
	}
	if mark != 0 {
		s.chunks = append(s.chunks, string(mark))
	}

	candidate := preprocessSentenceText(s.chunks)
	if candidate == "" {
		s.chunks = append(s.chunks, remain)
		return "", false
	}

	if s.shouldEndSentence(candidate, mark) {
		s.chunks = resetChunks(remain)
		s.isFirstSentence = false
		return strings.TrimSpace(candidate), true
	}

	if remain != "" {
		s.chunks = append(s.chunks, remain)
	}
	return "", false
}

// Flush is called at end of stream. A non-empty buffer that is not
// solely a punctuation mark is emitted as the final sentence.
func (s *Segmenter) Flush() (sentence string, ok bool) {
	candidate := preprocessSentenceText(s.chunks)
	if candidate == "" {
		return "", false
	}
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" || isPunctuationOnly(trimmed) {
		return "", false
	}
	return trimmed, true
}

func (s *Segmenter) shouldEndSentence(sentence string, mark rune) bool {
	if sentence == "" || !isSentenceEndMark(mark) {
		return false
	}

	isChinese := chineseEndMarks[mark]

	if s.isFirstSentence {
		if isChinese {
			return utf8.RuneCountInString(sentence) > 2
		}
		return len(strings.Fields(sentence)) > 1
	}

	if isChinese {
		return utf8.RuneCountInString(sentence) > 4
	}

	words := len(strings.Fields(sentence))
	return words > 4 || (words > 2 && (mark == '.' || mark == '?' || mark == '!'))
}

// splitRightmostPunct scans s from the end for the first Unicode
// punctuation character and splits around it.
func splitRightmostPunct(s string) (before string, mark rune, after string) {
	runes := []rune(s)
	for i := len(runes) - 1; i >= 0; i-- {
		if unicode.IsPunct(runes[i]) {
			return string(runes[:i]), runes[i], string(runes[i+1:])
		}
	}
	return s, 0, ""
}

// preprocessSentenceText joins the buffered chunks and normalizes every
// intra-sentence '!', '?', '.' to ',' so only the trailing mark carries
// terminal punctuation into TTS.
func preprocessSentenceText(chunks []string) string {
	text := strings.Join(chunks, "")
	if text == "" {
		return ""
	}
	runes := []rune(text)
	mark := runes[len(runes)-1]
	content := string(runes[:len(runes)-1])
	content = strings.NewReplacer("!", ",", "?", ",", ".", ",").Replace(content)
	return content + string(mark)
}

func resetChunks(remain string) []string {
	if remain == "" {
		return nil
	}
	return []string{remain}
}

func isPunctuationOnly(s string) bool {
	r, size := utf8.DecodeRuneInString(s)
	if size != len(s) {
		return false
	}
	return isSentenceEndMark(r)
}
