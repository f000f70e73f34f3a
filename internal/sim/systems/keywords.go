package systems

import (
	"sort"
	"strings"

	"github.com/coregx/ahocorasick"
	"github.com/orsinium-labs/stopwords"

	"folioverse.ai/internal/sim/components"
	"folioverse.ai/internal/sim/ecs"
)

const maxTitleWords = 6

var englishStopwords = stopwords.MustGet("en")

// Tagger extracts keywords and a title from a finished conversation. The
// keyword vocabulary is the participants' interests and expertise, matched
// against the transcript with an Aho-Corasick automaton so multi-word terms
// ("voxel worlds") match without tokenizing.
type Tagger struct{}

// Keywords scans the chat log for vocabulary terms drawn from the
// participants' brains. Returned terms are lowercase, distinct, sorted.
func (Tagger) Keywords(w *ecs.World, sess *components.Session, logc *components.ChatLog) []string {
	if sess == nil || logc == nil || len(logc.Messages) == 0 {
		return nil
	}
	vocab := participantVocabulary(w, sess.Participants)
	if len(vocab) == 0 {
		return nil
	}

	ac, err := ahocorasick.NewBuilder().
		AddStrings(vocab).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil
	}

	var b strings.Builder
	for _, m := range logc.Messages {
		b.WriteString(strings.ToLower(m.Content))
		b.WriteByte('\n')
	}
	haystack := []byte(b.String())

	seen := map[string]struct{}{}
	for _, m := range ac.FindAllOverlapping(haystack) {
		if m.PatternID < len(vocab) {
			seen[vocab[m.PatternID]] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for kw := range seen {
		out = append(out, kw)
	}
	sort.Strings(out)
	return out
}

// Title derives a short title from the opening message: its first content
// words with stopwords removed, capped at six.
func (Tagger) Title(logc *components.ChatLog) string {
	if logc == nil || len(logc.Messages) == 0 {
		return ""
	}
	var kept []string
	for _, word := range strings.Fields(logc.Messages[0].Content) {
		clean := strings.Trim(word, ".,!?;:\"'()")
		if clean == "" {
			continue
		}
		if englishStopwords.Contains(strings.ToLower(clean)) {
			continue
		}
		kept = append(kept, clean)
		if len(kept) == maxTitleWords {
			break
		}
	}
	return strings.Join(kept, " ")
}

func participantVocabulary(w *ecs.World, participants []string) []string {
	seen := map[string]struct{}{}
	var vocab []string
	add := func(terms []string) {
		for _, t := range terms {
			t = strings.ToLower(strings.TrimSpace(t))
			if t == "" {
				continue
			}
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			vocab = append(vocab, t)
		}
	}
	for _, pid := range participants {
		e := w.Entity(pid)
		if e == nil {
			continue
		}
		brain, _ := e.Component(ecs.KindBrain).(*components.Brain)
		if brain == nil {
			continue
		}
		add(brain.Interests)
		add(brain.Expertise)
	}
	return vocab
}
