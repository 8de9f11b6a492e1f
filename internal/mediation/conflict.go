// Package mediation scores conflict intensity in messages and decides when
// the assistant should switch from normal replies into active mediation.
package mediation

import (
	"strings"
	"unicode"
)

// MaxScore is the ceiling of the conflict scale.
const MaxScore = 10

// conflictKeywords are lexical conflict signals: absolutist language, blame
// language, and disengagement language.
var conflictKeywords = []string{
	"nunca", "sempre", "você só", "de novo", "toda vez",
	"não me escuta", "não liga", "não se importa",
	"culpa", "errado", "problema seu",
}

// negativeEmojis each add a heavy penalty when present.
var negativeEmojis = []string{"😡", "😤", "🙄", "😠", "💢", "😒"}

// Score rates a single message's conflict intensity on [0, MaxScore].
// Deterministic and total: any input, including the empty string, yields a
// defined score.
//
//	+2 per occurrence of a conflict keyword (case-insensitive substring)
//	+3 per occurrence of a negative emoji
//	+2 when the message exceeds 10 runes and over half its letters are uppercase
//	+1 when it contains two or more "!"
func Score(text string) int {
	score := 0
	lower := strings.ToLower(text)

	for _, kw := range conflictKeywords {
		score += 2 * strings.Count(lower, kw)
	}

	for _, e := range negativeEmojis {
		score += 3 * strings.Count(text, e)
	}

	if len([]rune(text)) > 10 {
		letters, uppers := 0, 0
		for _, r := range text {
			if unicode.IsLetter(r) {
				letters++
				if unicode.IsUpper(r) {
					uppers++
				}
			}
		}
		if letters > 0 && uppers*2 > letters {
			score += 2
		}
	}

	if strings.Count(text, "!") >= 2 {
		score++
	}

	if score > MaxScore {
		return MaxScore
	}
	return score
}
