package kb

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"WaDesk/internal/service/escalation"
)

// Entry is one knowledge-base question/answer pair.
type Entry struct {
	Question string `yaml:"question"`
	Answer   string `yaml:"answer"`
}

type kbFile struct {
	Entries []Entry `yaml:"entries"`
}

// Matcher scores customer messages against a static knowledge base with a
// token-overlap heuristic. The scoring formula and the threshold applied by
// the caller are product-tunable, not a contract.
type Matcher struct {
	entries []Entry
}

// Load reads the knowledge base from a YAML file.
func Load(path string) (*Matcher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading knowledge base: %w", err)
	}
	var file kbFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing knowledge base: %w", err)
	}
	return &Matcher{entries: file.Entries}, nil
}

// NewMatcher builds a matcher from in-memory entries.
func NewMatcher(entries []Entry) *Matcher {
	return &Matcher{entries: entries}
}

// FindMatch returns the best-scoring entry, or nil when the base is empty or
// nothing overlaps at all.
func (m *Matcher) FindMatch(_ context.Context, text string) (*escalation.Match, error) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil, nil
	}

	var best *escalation.Match
	for _, e := range m.entries {
		score := overlap(tokenize(e.Question), tokens)
		if score <= 0 {
			continue
		}
		if best == nil || score > best.Confidence {
			best = &escalation.Match{Response: e.Answer, Confidence: score}
		}
	}
	return best, nil
}

func tokenize(text string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:\"'()")
		if len(w) > 2 {
			out[w] = true
		}
	}
	return out
}

// overlap is the fraction of question tokens present in the message.
func overlap(question, message map[string]bool) float64 {
	if len(question) == 0 {
		return 0
	}
	hits := 0
	for w := range question {
		if message[w] {
			hits++
		}
	}
	return float64(hits) / float64(len(question))
}
