package collab

import (
	"regexp"
	"strings"
	"time"

	"github.com/openclaw/a2a/pkg/types/a2a"
)

// maxKeywords caps the tier-derived keyword set.
const maxKeywords = 48

var (
	collabPattern = regexp.MustCompile(`(?i)\b(collaborat\w*|partner\w*|team up|work together|joint\w*|co-?build|combine (?:our|forces))\b`)
	depthPattern  = regexp.MustCompile(`(?i)\b(specifically|in detail|architecture|trade-?offs?|implementation|deep\w*|concretely|under the hood)\b`)
	closePattern  = regexp.MustCompile(`(?i)\b(wrap(?:ping)? up|talk (?:later|soon)|goodbye|bye for now|signing off|that's all|nothing (?:else|more)|let'?s end|good ?night)\b`)

	threadPattern    = regexp.MustCompile(`(?i)(?:working on|building|exploring|focused on|interested in|researching|my project on)\s+([^.,;:!?\n]{3,100})`)
	candidatePattern = regexp.MustCompile(`(?i)(?:we could|we should|let'?s|collaborate on|partner on|team up on|together we could)\s+([^.,;:!?\n]{3,100})`)
	questionPattern  = regexp.MustCompile(`([^.!?\n]{3,140})\?`)

	wordPattern = regexp.MustCompile(`[a-z]{4,}`)
)

// BuildKeywords derives the heuristic keyword set from a tier's
// lead_with and discuss_freely topics: distinct lower-cased words of at
// least four characters, capped at 48 terms.
func BuildKeywords(topics ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range topics {
		for _, topic := range list {
			for _, word := range wordPattern.FindAllString(strings.ToLower(topic), -1) {
				if _, dup := seen[word]; dup {
					continue
				}
				seen[word] = struct{}{}
				out = append(out, word)
				if len(out) == maxKeywords {
					return out
				}
			}
		}
	}
	return out
}

// keywordScore scores text for keyword overlap: hits over
// max(|keywords|, 8).
func keywordScore(text string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	denom := len(keywords)
	if denom < 8 {
		denom = 8
	}
	return float64(hits) / float64(denom)
}

func extractMatches(pattern *regexp.Regexp, text string) []string {
	var out []string
	for _, m := range pattern.FindAllStringSubmatch(text, maxListItems) {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}

// heuristicUpdate derives a turn update from the raw inbound and
// cleaned outbound text when the reply carried no structured state.
func heuristicUpdate(state *a2a.CollabState, inbound, outbound string, keywords []string, now time.Time) {
	combined := inbound + "\n" + outbound

	score := keywordScore(combined, keywords)
	collab := collabPattern.MatchString(combined)
	depth := depthPattern.MatchString(combined)
	closing := closePattern.MatchString(combined)
	questions := strings.Contains(outbound, "?")

	delta := score * 0.45
	if collab {
		delta += 0.12
	}
	if depth {
		delta += 0.08
	}
	if questions {
		delta += 0.03
	} else {
		delta -= 0.03
	}
	state.OverlapScore = clampScore(state.OverlapScore + delta)

	state.ActiveThreads = mergeLists(state.ActiveThreads, extractMatches(threadPattern, combined))
	state.CandidateCollaborations = mergeLists(state.CandidateCollaborations, extractMatches(candidatePattern, combined))

	var asked []string
	for _, m := range questionPattern.FindAllStringSubmatch(outbound, maxListItems) {
		asked = append(asked, strings.TrimSpace(m[1])+"?")
	}
	state.OpenQuestions = mergeLists(state.OpenQuestions, asked)

	state.CloseSignal = state.CloseSignal || closing
	state.TurnCount++
	state.Phase = inferPhase(state)
	state.UpdatedAt = now
}

// inferPhase applies the phase ladder over the current counters.
func inferPhase(state *a2a.CollabState) a2a.Phase {
	switch {
	case state.TurnCount >= 5 && state.CloseSignal:
		return a2a.PhaseClose
	case state.TurnCount >= 5 && (len(state.CandidateCollaborations) > 0 || state.OverlapScore >= 0.65):
		return a2a.PhaseSynthesize
	case state.TurnCount >= 3 && state.OverlapScore >= 0.4:
		return a2a.PhaseDeepDive
	case state.TurnCount >= 1:
		return a2a.PhaseExplore
	default:
		return a2a.PhaseHandshake
	}
}
