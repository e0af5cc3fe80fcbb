package runner

import (
	"strings"
	"unicode"

	"github.com/knowledgeforge/forge/internal/forge"
)

// cjkLocales is the set of locales whose script the runner checks for
// directly, rather than via the English-stopword heuristic.
var cjkLocales = map[forge.Locale]bool{
	forge.LocaleZH: true,
	forge.LocaleJA: true,
	forge.LocaleKO: true,
}

// englishTells is a short list of high-frequency English function words
// that essentially never appear in correctly-localized text for the
// non-English locales this pipeline supports. A handful of matches in a
// substantial span of text is a reliable enough signal that the model
// answered in English despite the locale instruction, without needing a
// full language-identification model in the hot path.
var englishTells = []string{
	" the ", " and ", " is ", " are ", " with ", " this ", " that ",
	" has ", " have ", " was ", " were ", " you ", " your ", " which ",
}

const minCheckableLength = 24

// ViolatesLocale reports whether text looks like it ignored locale's
// language instruction. It is a heuristic, not a classifier: false
// negatives (missing a real violation) are preferable to false positives
// (retrying a correct non-English answer), since every retry costs a full
// model turn.
func ViolatesLocale(text string, locale forge.Locale) bool {
	if locale == forge.LocaleEN {
		return false
	}
	trimmed := strings.TrimSpace(text)
	if len([]rune(trimmed)) < minCheckableLength {
		return false
	}

	if cjkLocales[locale] {
		return !containsCJK(trimmed)
	}

	lower := " " + strings.ToLower(trimmed) + " "
	hits := 0
	for _, tell := range englishTells {
		if strings.Contains(lower, tell) {
			hits++
			if hits >= 3 {
				return true
			}
		}
	}
	return false
}

func containsCJK(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) ||
			unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r) {
			return true
		}
	}
	return false
}

// languageRetryNudge is the instruction appended when a violation is
// detected, worded to exploit the same primacy/recency framing as the
// system prompt's bookend (prompt.go).
func languageRetryNudge(locale forge.Locale) string {
	lang := locale.LanguageName()
	return "Your previous response was not in the required language (" + lang +
		"). Respond again, entirely in " + lang + "."
}
