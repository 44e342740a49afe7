package collab

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/openclaw/a2a/pkg/types/a2a"
)

// stateBlockPattern matches a <collab_state>{...}</collab_state>
// trailer. Non-greedy so that braces inside the JSON do not swallow
// trailing text.
var stateBlockPattern = regexp.MustCompile(`(?s)<collab_state>\s*(\{.*?\})\s*</collab_state>`)

// maxTurnCount bounds patched turn counts.
const maxTurnCount = 500

// maxListItems bounds every state list.
const maxListItems = 4

// maxItemLength bounds each list item.
const maxItemLength = 120

// ExtractStateBlock splits a reply into the visible text and the raw
// JSON of its collab_state trailer, if one is present. The last block
// in the text wins; the block is always removed from the cleaned text.
func ExtractStateBlock(text string) (cleaned string, rawJSON string, found bool) {
	matches := stateBlockPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return strings.TrimSpace(text), "", false
	}
	last := matches[len(matches)-1]
	rawJSON = text[last[2]:last[3]]
	cleaned = strings.TrimSpace(text[:last[0]] + text[last[1]:])
	return cleaned, rawJSON, true
}

// round2 rounds to two decimals.
func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// clampScore clamps to [0,1] and rounds to two decimals.
func clampScore(f float64) float64 {
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	return round2(f)
}

// sanitizeList trims, de-duplicates case-insensitively, caps item
// length and list size.
func sanitizeList(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, maxListItems)
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if len(item) > maxItemLength {
			item = strings.TrimSpace(item[:maxItemLength])
		}
		key := strings.ToLower(item)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
		if len(out) == maxListItems {
			break
		}
	}
	return out
}

// mergeLists appends additions to current, preserving insertion order
// under the same sanitisation rules.
func mergeLists(current, additions []string) []string {
	return sanitizeList(append(append([]string{}, current...), additions...))
}

// patchValue fetches the first present alias from the decoded patch.
func patchValue(raw map[string]any, aliases ...string) (any, bool) {
	for _, alias := range aliases {
		if v, ok := raw[alias]; ok {
			return v, true
		}
	}
	return nil, false
}

func coerceFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func coerceBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "1":
			return true, true
		case "false", "no", "0":
			return false, true
		}
	case float64:
		return b != 0, true
	}
	return false, false
}

func coerceStringList(v any) ([]string, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out, true
}

// applyPatch best-effort-applies a decoded collab_state patch. Any
// field that is absent, malformed, or fails validation leaves the
// current value unchanged. Returns whether the phase was validly
// patched (so the caller knows to run phase inference).
func applyPatch(state *a2a.CollabState, raw map[string]any, now time.Time) (phasePatched bool) {
	if v, ok := patchValue(raw, "phase"); ok {
		if s, ok := v.(string); ok {
			phase := a2a.Phase(s)
			if phase.Valid() {
				state.Phase = phase
				phasePatched = true
			}
		}
	}

	// The turn counter never decrements, patch or no patch.
	next := state.TurnCount + 1
	if v, ok := patchValue(raw, "turnCount", "turn_count"); ok {
		if f, ok := coerceFloat(v); ok {
			patched := int(f)
			if patched < 0 {
				patched = 0
			}
			if patched > maxTurnCount {
				patched = maxTurnCount
			}
			if patched > next {
				next = patched
			}
		}
	}
	state.TurnCount = next

	if v, ok := patchValue(raw, "overlapScore", "overlap_score"); ok {
		if f, ok := coerceFloat(v); ok {
			state.OverlapScore = clampScore(f)
		}
	}
	if v, ok := patchValue(raw, "confidence"); ok {
		if f, ok := coerceFloat(v); ok {
			state.Confidence = clampScore(f)
		}
	}

	if v, ok := patchValue(raw, "activeThreads", "active_threads"); ok {
		if list, ok := coerceStringList(v); ok {
			if cleaned := sanitizeList(list); len(cleaned) > 0 {
				state.ActiveThreads = cleaned
			}
		}
	}
	if v, ok := patchValue(raw, "candidateCollaborations", "candidate_collaborations"); ok {
		if list, ok := coerceStringList(v); ok {
			if cleaned := sanitizeList(list); len(cleaned) > 0 {
				state.CandidateCollaborations = cleaned
			}
		}
	}
	if v, ok := patchValue(raw, "openQuestions", "open_questions"); ok {
		if list, ok := coerceStringList(v); ok {
			if cleaned := sanitizeList(list); len(cleaned) > 0 {
				state.OpenQuestions = cleaned
			}
		}
	}

	if v, ok := patchValue(raw, "closeSignal", "close_signal", "shouldClose"); ok {
		if b, ok := coerceBool(v); ok {
			state.CloseSignal = b
		}
	}

	state.UpdatedAt = now
	return phasePatched
}
