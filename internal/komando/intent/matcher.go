package intent

import (
	"errors"
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"
)

// DefaultConfidenceThreshold is the minimum blended score for a match to be
// accepted. Below it the matcher reports ErrNoMatch rather than returning a
// low-confidence guess.
const DefaultConfidenceThreshold = 0.6

// keywordBoost is added to the phrase similarity once per declared keyword
// found in the text. Additive so that a paraphrase keeping the trigger verb
// ("sell") clears the threshold even when an entity mention matches no
// training phrase.
const keywordBoost = 0.1

// ErrNoMatch is returned by Match when no intent clears the confidence
// threshold. Callers resubmit revised text; the session stays where it was.
var ErrNoMatch = errors.New("intent: no match above confidence threshold")

// Match is a successful match result.
type Match struct {
	Key        string
	Confidence float64
}

// Matcher scores raw text against a catalog. The zero value uses
// DefaultConfidenceThreshold.
//
// Match is a pure function of (text, catalog, threshold): identical inputs
// always produce identical results, and ties are broken by catalog
// declaration order.
type Matcher struct {
	// Threshold overrides DefaultConfidenceThreshold when > 0.
	Threshold float64
}

// Match returns the best-scoring intent, or ErrNoMatch when the winner is
// below the threshold.
func (m Matcher) Match(text string, c *Catalog) (Match, error) {
	threshold := m.Threshold
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}

	normText := normalizePhrase(text)
	if normText == "" {
		return Match{}, ErrNoMatch
	}
	textWords := wordSet(normText)

	best := Match{Confidence: -1}
	for _, def := range c.Definitions() {
		score := scoreIntent(normText, textWords, def)
		// Strictly-greater keeps the first-declared intent on ties.
		if score > best.Confidence {
			best = Match{Key: def.Key, Confidence: score}
		}
	}

	if best.Confidence < threshold {
		return Match{}, ErrNoMatch
	}
	return best, nil
}

// scoreIntent takes the best per-phrase similarity and adds keywordBoost for
// each declared keyword present in the text, clamped to [0, 1].
func scoreIntent(normText string, textWords map[string]struct{}, def Definition) float64 {
	phraseSim := 0.0
	for _, phrase := range def.Phrases {
		if s := phraseSimilarity(normText, textWords, normalizePhrase(phrase)); s > phraseSim {
			phraseSim = s
		}
	}

	hits := 0
	for _, kw := range def.Keywords {
		if _, ok := textWords[normalizeWord(kw)]; ok {
			hits++
		}
	}

	return clamp01(phraseSim + keywordBoost*float64(hits))
}

// phraseSimilarity compares normalized input against one normalized training
// phrase. Exact match scores 1.0, containment 0.9; otherwise the better of a
// discounted word-overlap ratio and a discounted edit-distance ratio.
func phraseSimilarity(normText string, textWords map[string]struct{}, normPhrase string) float64 {
	if normPhrase == "" {
		return 0
	}
	if normText == normPhrase {
		return 1.0
	}

	best := 0.0
	if strings.Contains(normText, normPhrase) || strings.Contains(normPhrase, normText) {
		best = 0.9
	}

	phraseWords := wordSet(normPhrase)
	common := 0
	for w := range phraseWords {
		if _, ok := textWords[w]; ok {
			common++
		}
	}
	longer := len(textWords)
	if len(phraseWords) > longer {
		longer = len(phraseWords)
	}
	if longer > 0 {
		if s := 0.8 * float64(common) / float64(longer); s > best {
			best = s
		}
	}

	maxLen := len(normText)
	if len(normPhrase) > maxLen {
		maxLen = len(normPhrase)
	}
	if maxLen > 0 {
		d := levenshtein.ComputeDistance(normText, normPhrase)
		if s := 0.7 * (1.0 - float64(d)/float64(maxLen)); s > best {
			best = s
		}
	}

	return best
}

var digitRun = regexp.MustCompile(`^\d+(\.\d+)?$`)

// normalizePhrase lowercases, strips punctuation, maps numeric tokens to a
// shared placeholder, and singularizes, so "sell 5 chocolates" and "sell a
// chocolate" compare well.
func normalizePhrase(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:'\"()")
		if f == "" {
			continue
		}
		out = append(out, normalizeWord(f))
	}
	return strings.Join(out, " ")
}

func normalizeWord(w string) string {
	w = strings.ToLower(w)
	if digitRun.MatchString(w) {
		return "#"
	}
	if len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
		return strings.TrimSuffix(w, "s")
	}
	return w
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		set[w] = struct{}{}
	}
	return set
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
