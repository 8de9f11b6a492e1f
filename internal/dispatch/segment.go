package dispatch

import (
	"math/rand"
	"strings"
	"time"
	"unicode/utf8"
)

// segmentMarker is the explicit break the generator can emit to split a
// reply into separate outbound messages: a line containing only "---".
const segmentMarker = "---"

// SplitSegments breaks a reply into ordered outbound segments. Explicit
// marker lines win; without markers an overlong reply is split on sentence
// boundaries into chunks of at most maxChars runes. Short replies come back
// as a single segment.
func SplitSegments(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxChars <= 0 {
		maxChars = 350
	}

	if segments := splitOnMarker(text); len(segments) > 1 {
		return segments
	}

	if utf8.RuneCountInString(text) <= maxChars {
		return []string{text}
	}

	return splitOnSentences(text, maxChars)
}

func splitOnMarker(text string) []string {
	var segments []string
	var current []string

	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == segmentMarker {
			if seg := strings.TrimSpace(strings.Join(current, "\n")); seg != "" {
				segments = append(segments, seg)
			}
			current = current[:0]
			continue
		}
		current = append(current, line)
	}
	if seg := strings.TrimSpace(strings.Join(current, "\n")); seg != "" {
		segments = append(segments, seg)
	}
	return segments
}

// splitOnSentences greedily packs whole sentences into chunks of at most
// maxChars runes. A single sentence longer than maxChars becomes its own
// oversized chunk rather than being cut mid-sentence.
func splitOnSentences(text string, maxChars int) []string {
	sentences := splitSentences(text)

	var segments []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if seg := strings.TrimSpace(current.String()); seg != "" {
			segments = append(segments, seg)
		}
		current.Reset()
		currentLen = 0
	}

	for _, s := range sentences {
		sLen := utf8.RuneCountInString(s)
		if currentLen > 0 && currentLen+sLen+1 > maxChars {
			flush()
		}
		if currentLen > 0 {
			current.WriteString(" ")
			currentLen++
		}
		current.WriteString(s)
		currentLen += sLen
	}
	flush()

	return segments
}

func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			// Sentence ends when the terminator is followed by whitespace
			// or end of text (keeps "1.5" and "!!" together).
			if i+1 >= len(runes) {
				break
			}
			next := runes[i+1]
			if next == ' ' || next == '\n' || next == '\t' {
				if s := strings.TrimSpace(current.String()); s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
			}
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// pacingDelay computes the human-typing-cadence delay inserted before a
// segment: scaled by length plus bounded jitter, clamped to [min, max].
func pacingDelay(segment string, min, max time.Duration) time.Duration {
	chars := utf8.RuneCountInString(segment)
	d := time.Duration(chars) * 45 * time.Millisecond
	d += time.Duration(rand.Int63n(int64(800 * time.Millisecond)))

	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}
