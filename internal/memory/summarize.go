package memory

import (
	"sort"
	"strings"
	"unicode"
)

// Summarization is deliberately heuristic: frequency-scored sentence
// selection over the caller's own decrypted chunks. No chunk text ever
// leaves the process for this operation.

var summaryStyles = map[string]int{
	"concise":  2,
	"detailed": 5,
	"bullets":  4,
}

func validStyle(style string) bool {
	_, ok := summaryStyles[style]
	return ok
}

// summarize selects the highest-scoring sentences across texts, preserving
// their original order in the summary. maxLength (runes) of zero means
// unbounded.
func summarize(texts []string, style string, maxLength int) (string, []string) {
	sentences := splitSentences(texts)
	if len(sentences) == 0 {
		return "", nil
	}

	freq := termFrequencies(sentences)
	type scored struct {
		index int
		text  string
		score float64
	}
	ranked := make([]scored, len(sentences))
	for i, sentence := range sentences {
		ranked[i] = scored{index: i, text: sentence, score: sentenceScore(sentence, freq)}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	take := summaryStyles[style]
	if take > len(ranked) {
		take = len(ranked)
	}
	picked := ranked[:take]
	sort.Slice(picked, func(i, j int) bool { return picked[i].index < picked[j].index })

	keyPoints := make([]string, 0, 3)
	for i := 0; i < len(ranked) && i < 3; i++ {
		keyPoints = append(keyPoints, ranked[i].text)
	}

	var summary string
	if style == "bullets" {
		lines := make([]string, len(picked))
		for i, p := range picked {
			lines[i] = "- " + p.text
		}
		summary = strings.Join(lines, "\n")
	} else {
		parts := make([]string, len(picked))
		for i, p := range picked {
			parts[i] = p.text
		}
		summary = strings.Join(parts, " ")
	}

	if maxLength > 0 {
		summary = truncateRunes(summary, maxLength)
	}
	return summary, keyPoints
}

func splitSentences(texts []string) []string {
	var out []string
	for _, text := range texts {
		start := 0
		runes := []rune(text)
		for i, r := range runes {
			if r == '.' || r == '!' || r == '?' || r == '\n' {
				if s := strings.TrimSpace(string(runes[start : i+1])); s != "" && s != "." {
					out = append(out, s)
				}
				start = i + 1
			}
		}
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func termFrequencies(sentences []string) map[string]int {
	freq := make(map[string]int)
	for _, s := range sentences {
		for _, term := range contentWords(s) {
			freq[term]++
		}
	}
	return freq
}

// sentenceScore is average corpus frequency of the sentence's content
// words, so sentences about recurring topics rise to the top.
func sentenceScore(sentence string, freq map[string]int) float64 {
	words := contentWords(sentence)
	if len(words) == 0 {
		return 0
	}
	total := 0
	for _, w := range words {
		total += freq[w]
	}
	return float64(total) / float64(len(words))
}

func contentWords(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) >= 3 {
			out = append(out, f)
		}
	}
	return out
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n]))
}
