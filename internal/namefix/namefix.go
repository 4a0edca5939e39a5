// Package namefix corrects misrecognized personal names in a transcript
// against a known name list.
package namefix

import (
	"errors"
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	DefaultThreshold = 0.8
	// phoneticSlack lowers the bar for candidates whose Double Metaphone
	// codes overlap the token's.
	phoneticSlack = 0.08
)

var (
	ErrEmptyText  = errors.New("text is empty")
	ErrEmptyNames = errors.New("name list is empty")
)

// particles are trailing Korean particles stripped before matching, longest
// first within each pass.
var particles = []string{"님", "께서", "과", "와", "은", "는", "이", "가", "을", "를"}

const punctuation = ".,;:!?“”\"'()[]{}"

type Match struct {
	Original    string  `json:"original"`
	Replacement string  `json:"replacement"`
	Rating      float64 `json:"rating"`
}

type Result struct {
	Text    string  `json:"correctedText"`
	Matches []Match `json:"matches"`
}

type name struct {
	value string
	codes []string
}

// Corrector is read-only after construction and safe for concurrent use.
type Corrector struct {
	names     []name
	threshold float64
}

func New(names []string, threshold float64) (*Corrector, error) {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	c := &Corrector{threshold: threshold}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		c.names = append(c.names, name{value: n, codes: metaphone(n)})
	}
	if len(c.names) == 0 {
		return nil, ErrEmptyNames
	}
	return c, nil
}

// Correct replaces tokens that resemble a known name. Whitespace within a
// line collapses to single spaces; line breaks are kept.
func (c *Corrector) Correct(text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, ErrEmptyText
	}
	res := Result{Matches: []Match{}}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		words := strings.Fields(line)
		for j, word := range words {
			clean := stripParticles(strings.Trim(word, punctuation))
			clean = strings.Map(dropPunctuation, clean)
			if clean == "" {
				continue
			}
			best, rating, ok := c.best(clean)
			if !ok || best == clean {
				continue
			}
			res.Matches = append(res.Matches, Match{Original: clean, Replacement: best, Rating: rating})
			words[j] = strings.Replace(word, clean, best, 1)
		}
		lines[i] = strings.Join(words, " ")
	}
	res.Text = strings.Join(lines, "\n")
	return res, nil
}

func (c *Corrector) best(token string) (string, float64, bool) {
	codes := metaphone(token)
	var (
		bestName  string
		bestScore float64
	)
	for _, n := range c.names {
		score := matchr.JaroWinkler(token, n.value, false)
		bar := c.threshold
		if overlaps(codes, n.codes) {
			bar -= phoneticSlack
		}
		if score >= bar && score > bestScore {
			bestName, bestScore = n.value, score
		}
	}
	return bestName, bestScore, bestName != ""
}

func stripParticles(word string) string {
	for pass := 0; pass < 2; pass++ {
		removed := false
		for _, p := range particles {
			if strings.HasSuffix(word, p) && len(word) > len(p) {
				word = strings.TrimSuffix(word, p)
				removed = true
				break
			}
		}
		if !removed {
			break
		}
	}
	return word
}

func dropPunctuation(r rune) rune {
	if strings.ContainsRune(punctuation, r) {
		return -1
	}
	return r
}

// metaphone returns the non-empty Double Metaphone codes of s. Hangul
// yields none, so the phonetic bonus only applies to romanized names.
func metaphone(s string) []string {
	p, a := matchr.DoubleMetaphone(strings.ToLower(s))
	var out []string
	if p != "" {
		out = append(out, p)
	}
	if a != "" && a != p {
		out = append(out, a)
	}
	return out
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
