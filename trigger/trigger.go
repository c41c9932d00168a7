// Package trigger expands a SagaArc's authored items — inline
// triggers and named trigger patterns — into the concrete, ordered
// list of triggers the saga state machine actually activates against.
package trigger

import (
	"fmt"
	"sort"

	"github.com/ironvale/sagaengine/catalog"
	"github.com/ironvale/sagaengine/core"
)

// Expanded is one concrete trigger ready for the interaction service,
// carrying the owning saga's ref alongside the catalog trigger shape.
type Expanded struct {
	SagaRef             string
	Ref                 string
	EnterRadius         float64
	RequiresQuestTokens []string
	GivesQuestTokens    []string
	// CompletionGrants are tokens awarded when this trigger is
	// completed (via CompleteTrigger), not when it merely activates.
	// Populated only for progression-enforced pattern triggers, where
	// it gates the next trigger in the chain.
	CompletionGrants []string
	Spawns           []catalog.CharacterSpawn
}

// CompletionToken names the quest token a progression-enforced pattern
// trigger yields on completion, consumed as the next trigger's gate.
func CompletionToken(sagaRef, triggerRef string) string {
	return fmt.Sprintf("%s_%s_Completed", sagaRef, triggerRef)
}

// FeatureTriggerRef names the implicit approach trigger appended when
// an arc's feature has a non-zero approach radius.
func FeatureTriggerRef(sagaRef string) string {
	return fmt.Sprintf("Feature_%s", sagaRef)
}

// Expand resolves arc's items against cat into the ordered trigger
// list the state machine consumes. Inline triggers pass through
// unchanged; pattern references are resolved and, when the pattern
// enforces progression, rewritten into an outermost-first completion
// chain. An implicit feature-approach trigger is appended last when
// the arc's feature has a positive approach radius.
func Expand(cat *catalog.Catalog, arc *catalog.SagaArc) ([]Expanded, error) {
	var out []Expanded

	for _, item := range arc.Items {
		switch {
		case item.InlineTrigger != nil:
			out = append(out, fromCatalogTrigger(arc.Ref, *item.InlineTrigger))
		case item.PatternRef != "":
			pattern, ok := cat.SagaTriggerPattern(item.PatternRef)
			if !ok {
				return nil, core.UnknownPatternRef(item.PatternRef)
			}
			out = append(out, expandPattern(arc.Ref, pattern)...)
		default:
			return nil, core.InvalidInput("saga arc item", fmt.Sprintf("arc %q has an item with neither an inline trigger nor a pattern reference", arc.Ref))
		}
	}

	if arc.SagaFeatureRef != "" {
		feature, ok := cat.SagaFeature(arc.SagaFeatureRef)
		if ok && feature.Interactable != nil && feature.Interactable.ApproachRadius > 0 {
			out = append(out, Expanded{
				SagaRef:     arc.Ref,
				Ref:         FeatureTriggerRef(arc.Ref),
				EnterRadius: feature.Interactable.ApproachRadius,
			})
		}
	}

	return out, nil
}

func fromCatalogTrigger(sagaRef string, t catalog.SagaTrigger) Expanded {
	return Expanded{
		SagaRef:             sagaRef,
		Ref:                 t.Ref,
		EnterRadius:         t.EnterRadius,
		RequiresQuestTokens: append([]string(nil), t.RequiresQuestTokens...),
		GivesQuestTokens:    append([]string(nil), t.GivesQuestTokens...),
		Spawns:              append([]catalog.CharacterSpawn(nil), t.Spawns...),
	}
}

// expandPattern resolves one pattern's triggers. Without progression
// enforcement, each trigger passes through as-is (order preserved).
// With it, triggers are sorted outermost (largest enter radius) first
// and chained: trigger k gains a requirement on trigger k-1's
// completion token, and every trigger gains its own completion token
// as an additional grant.
func expandPattern(sagaRef string, pattern *catalog.SagaTriggerPattern) []Expanded {
	triggers := make([]catalog.SagaTrigger, len(pattern.Triggers))
	copy(triggers, pattern.Triggers)

	if !pattern.EnforceProgression {
		out := make([]Expanded, len(triggers))
		for i, t := range triggers {
			out[i] = fromCatalogTrigger(sagaRef, t)
		}
		return out
	}

	sort.SliceStable(triggers, func(i, j int) bool {
		return triggers[i].EnterRadius > triggers[j].EnterRadius
	})

	out := make([]Expanded, len(triggers))
	for i, t := range triggers {
		exp := fromCatalogTrigger(sagaRef, t)
		if i > 0 {
			exp.RequiresQuestTokens = append(exp.RequiresQuestTokens, CompletionToken(sagaRef, triggers[i-1].Ref))
		}
		exp.CompletionGrants = append(exp.CompletionGrants, CompletionToken(sagaRef, t.Ref))
		out[i] = exp
	}
	return out
}
