package memory

import (
	"regexp"
	"sort"
	"strings"
)

// Entity extraction is pattern-based. Each supported type is a compiled
// pattern; matches are counted across the caller's chunks with a couple of
// example contexts kept for each.

const maxEntityContexts = 2

type entityPattern struct {
	typ string
	re  *regexp.Regexp
}

var entityPatterns = []entityPattern{
	{"email", regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)},
	{"url", regexp.MustCompile(`https?://[^\s"')\]]+`)},
	{"money", regexp.MustCompile(`[$€£]\s?\d[\d,]*(?:\.\d+)?(?:\s?(?:million|billion|[mbk]))?`)},
	{"percent", regexp.MustCompile(`\d+(?:\.\d+)?%`)},
	{"date", regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b|\b(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]* \d{1,2},? \d{4}\b`)},
	{"term", regexp.MustCompile(`\b[A-Z][a-z]+(?: [A-Z][a-z]+)+\b`)},
}

func validEntityType(typ string) bool {
	for _, p := range entityPatterns {
		if p.typ == typ {
			return true
		}
	}
	return false
}

// extractEntities scans texts with every requested pattern. An empty types
// list means all types. limit of zero means unbounded.
func extractEntities(texts []string, types []string, minFreq, limit int) []Entity {
	wanted := make(map[string]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}

	type bucket struct {
		entity Entity
	}
	found := make(map[string]*bucket)

	for _, p := range entityPatterns {
		if len(types) > 0 && !wanted[p.typ] {
			continue
		}
		for _, text := range texts {
			for _, loc := range p.re.FindAllStringIndex(text, -1) {
				match := text[loc[0]:loc[1]]
				key := p.typ + "\x00" + strings.ToLower(match)
				b, ok := found[key]
				if !ok {
					b = &bucket{entity: Entity{Text: match, Type: p.typ}}
					found[key] = b
				}
				b.entity.Frequency++
				if len(b.entity.Contexts) < maxEntityContexts {
					b.entity.Contexts = append(b.entity.Contexts, contextAround(text, loc[0], loc[1]))
				}
			}
		}
	}

	out := make([]Entity, 0, len(found))
	for _, b := range found {
		if b.entity.Frequency >= minFreq {
			out = append(out, b.entity)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Text < out[j].Text
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// contextAround returns a short window of text surrounding a match.
func contextAround(text string, start, end int) string {
	const window = 40
	lo := start - window
	if lo < 0 {
		lo = 0
	}
	hi := end + window
	if hi > len(text) {
		hi = len(text)
	}
	return strings.TrimSpace(text[lo:hi])
}
