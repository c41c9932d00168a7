// Package availability gates trigger activation and feature
// interaction on quest-token possession and interaction limits. It
// makes no mutating calls and appends no transactions; it only
// answers "can this happen right now".
package availability

import (
	"strings"

	"github.com/ironvale/sagaengine/catalog"
	"github.com/ironvale/sagaengine/core"
)

// HasToken reports whether held contains ref, compared
// case-insensitively, treating "@self" as always satisfied regardless
// of held's contents.
func HasToken(held map[string]bool, ref string) bool {
	if core.IsSelfRef(ref) {
		return true
	}
	key := core.NormalizeRef(ref)
	if held[key] {
		return true
	}
	for k, ok := range held {
		if ok && core.NormalizeRef(k) == key {
			return true
		}
	}
	return false
}

// MissingTokens returns the subset of required not present in held,
// preserving required's order, for surfacing to UI. An empty result
// means the gate passes.
func MissingTokens(required []string, held map[string]bool) []string {
	var missing []string
	for _, ref := range required {
		if !HasToken(held, ref) {
			missing = append(missing, ref)
		}
	}
	return missing
}

// TriggerGate reports whether an avatar holding held may activate a
// trigger that requires requiresQuestTokens.
func TriggerGate(requiresQuestTokens []string, held map[string]bool) (ok bool, missing []string) {
	missing = MissingTokens(requiresQuestTokens, held)
	return len(missing) == 0, missing
}

// FeatureGate reports whether an avatar may interact with a feature:
// the token gate must pass, and interactionCount must be under
// MaxInteractions when MaxInteractions > 0 (0 means unlimited).
// Cooldowns are deliberately not evaluated here — a caller wanting
// cooldown behavior reads last_interacted_at from SagaState itself.
func FeatureGate(interactable *catalog.Interactable, held map[string]bool, interactionCount int) (ok bool, missing []string, reason string) {
	if interactable == nil {
		return true, nil, ""
	}
	missing = MissingTokens(interactable.RequiresQuestTokens, held)
	if len(missing) > 0 {
		return false, missing, "Missing quest tokens: " + strings.Join(missing, ", ")
	}
	if interactable.MaxInteractions > 0 && interactionCount >= interactable.MaxInteractions {
		return false, nil, "max interactions reached"
	}
	return true, nil, ""
}
