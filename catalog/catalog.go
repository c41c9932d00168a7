package catalog

import (
	"fmt"
	"sync"

	"github.com/ironvale/sagaengine/core"
)

// Catalog is the immutable, process-lifetime content registry. It is
// safe for concurrent reads from many goroutines; there is no mutation
// API once Build() has produced one — see Builder.
type Catalog struct {
	entries map[Kind]map[string]any // normalized key -> entry
}

// Lookup resolves ref within kind, case-insensitively. "@self" is never
// present in the catalog and always misses here; callers that accept
// "@self" must check core.IsSelfRef before calling Lookup.
func (c *Catalog) Lookup(kind Kind, ref string) (any, bool) {
	byKind, ok := c.entries[kind]
	if !ok {
		return nil, false
	}
	entry, ok := byKind[core.NormalizeRef(ref)]
	return entry, ok
}

// Exists reports whether ref resolves within kind, or is "@self".
func (c *Catalog) Exists(kind Kind, ref string) bool {
	if core.IsSelfRef(ref) {
		return true
	}
	_, ok := c.Lookup(kind, ref)
	return ok
}

// Resolve is Lookup wrapped in the standard UnknownRef error, for call
// sites that want validation-style failure instead of a bool.
func (c *Catalog) Resolve(kind Kind, ref string) (any, error) {
	entry, ok := c.Lookup(kind, ref)
	if !ok {
		return nil, core.UnknownRef(string(kind), ref)
	}
	return entry, nil
}

func typedLookup[T any](c *Catalog, kind Kind, ref string) (*T, bool) {
	entry, ok := c.Lookup(kind, ref)
	if !ok {
		return nil, false
	}
	typed, ok := entry.(*T)
	if !ok {
		return nil, false
	}
	return typed, true
}

func (c *Catalog) QuestToken(ref string) (*QuestToken, bool) { return typedLookup[QuestToken](c, KindQuestToken, ref) }
func (c *Catalog) Item(kind Kind, ref string) (*Item, bool)  { return typedLookup[Item](c, kind, ref) }
func (c *Catalog) Character(ref string) (*Character, bool)   { return typedLookup[Character](c, KindCharacter, ref) }
func (c *Catalog) CharacterArchetype(ref string) (*CharacterArchetype, bool) {
	return typedLookup[CharacterArchetype](c, KindCharacterArchetype, ref)
}
func (c *Catalog) AvatarArchetype(ref string) (*AvatarArchetype, bool) {
	return typedLookup[AvatarArchetype](c, KindAvatarArchetype, ref)
}
func (c *Catalog) Affinity(ref string) (*Affinity, bool) { return typedLookup[Affinity](c, KindAffinity, ref) }
func (c *Catalog) CombatStance(ref string) (*CombatStance, bool) {
	return typedLookup[CombatStance](c, KindCombatStance, ref)
}
func (c *Catalog) DialogueTree(ref string) (*DialogueTree, bool) {
	return typedLookup[DialogueTree](c, KindDialogueTree, ref)
}
func (c *Catalog) Achievement(ref string) (*Achievement, bool) {
	return typedLookup[Achievement](c, KindAchievement, ref)
}
func (c *Catalog) Quest(ref string) (*Quest, bool)     { return typedLookup[Quest](c, KindQuest, ref) }
func (c *Catalog) Faction(ref string) (*Faction, bool) { return typedLookup[Faction](c, KindFaction, ref) }
func (c *Catalog) SagaFeature(ref string) (*SagaFeature, bool) {
	return typedLookup[SagaFeature](c, KindSagaFeature, ref)
}
func (c *Catalog) SagaArc(ref string) (*SagaArc, bool) { return typedLookup[SagaArc](c, KindSagaArc, ref) }
func (c *Catalog) SagaTriggerPattern(ref string) (*SagaTriggerPattern, bool) {
	return typedLookup[SagaTriggerPattern](c, KindSagaTriggerPattern, ref)
}

// Kinds returns every Kind present in the catalog, for validators and
// tooling that need to iterate the whole content set.
func (c *Catalog) Kinds() []Kind {
	kinds := make([]Kind, 0, len(c.entries))
	for k := range c.entries {
		kinds = append(kinds, k)
	}
	return kinds
}

// Refs returns every key registered under kind, in no particular order.
func (c *Catalog) Refs(kind Kind) []string {
	byKind := c.entries[kind]
	refs := make([]string, 0, len(byKind))
	for k := range byKind {
		refs = append(refs, k)
	}
	return refs
}

// All returns every entry registered under kind.
func (c *Catalog) All(kind Kind) []any {
	byKind := c.entries[kind]
	out := make([]any, 0, len(byKind))
	for _, v := range byKind {
		out = append(out, v)
	}
	return out
}

// Builder accumulates entries before producing an immutable Catalog.
// Mirrors the teacher's registry idiom (register-then-freeze) rather
// than exposing map mutation directly on Catalog.
type Builder struct {
	mu      sync.Mutex
	entries map[Kind]map[string]any
	errs    []error
}

// NewBuilder creates an empty catalog builder.
func NewBuilder() *Builder {
	return &Builder{entries: make(map[Kind]map[string]any)}
}

// Add registers one entry under kind keyed by ref. A duplicate
// (case-insensitive) key within the same kind is recorded as a
// build-time error, surfaced by Build().
func (b *Builder) Add(kind Kind, ref string, entry any) *Builder {
	b.mu.Lock()
	defer b.mu.Unlock()

	if core.IsSelfRef(ref) {
		b.errs = append(b.errs, fmt.Errorf("catalog: %q is a reserved reference and cannot be a %s key", core.SelfRef, kind))
		return b
	}

	key := core.NormalizeRef(ref)
	if b.entries[kind] == nil {
		b.entries[kind] = make(map[string]any)
	}
	if _, exists := b.entries[kind][key]; exists {
		b.errs = append(b.errs, fmt.Errorf("catalog: duplicate %s key %q", kind, ref))
		return b
	}
	b.entries[kind][key] = entry
	return b
}

// Build freezes the accumulated entries into a Catalog. Fails if any
// Add call recorded a duplicate-key or reserved-ref error.
func (b *Builder) Build() (*Catalog, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.errs) > 0 {
		msg := "catalog build failed:"
		for _, e := range b.errs {
			msg += " " + e.Error() + ";"
		}
		return nil, core.InvalidInput("catalog", msg)
	}

	frozen := make(map[Kind]map[string]any, len(b.entries))
	for kind, byKey := range b.entries {
		copied := make(map[string]any, len(byKey))
		for k, v := range byKey {
			copied[k] = v
		}
		frozen[kind] = copied
	}
	return &Catalog{entries: frozen}, nil
}
