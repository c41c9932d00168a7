package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// fileKinds maps a catalog source file name (without extension) to the
// Kind it populates. Authored content is one YAML file per kind, each
// holding a top-level sequence of entries in that kind's wire shape.
var fileKinds = map[string]Kind{
	"quest_tokens":          KindQuestToken,
	"equipment":             KindEquipment,
	"tools":                 KindTool,
	"spells":                KindSpell,
	"consumables":           KindConsumable,
	"building_materials":    KindBuildingMaterial,
	"characters":            KindCharacter,
	"character_archetypes":  KindCharacterArchetype,
	"avatar_archetypes":     KindAvatarArchetype,
	"affinities":            KindAffinity,
	"combat_stances":        KindCombatStance,
	"dialogue_trees":        KindDialogueTree,
	"achievements":          KindAchievement,
	"quests":                KindQuest,
	"factions":              KindFaction,
	"saga_features":         KindSagaFeature,
	"saga_arcs":             KindSagaArc,
	"saga_trigger_patterns": KindSagaTriggerPattern,
}

var structValidator = validator.New()

// arcItemDTO is the authored wire shape of a SagaArc's item list: each
// entry is either an inline trigger or a pattern reference, never both.
type arcItemDTO struct {
	Trigger    *SagaTrigger `yaml:"trigger"`
	PatternRef string       `yaml:"pattern_ref"`
}

type sagaArcDTO struct {
	Ref            string       `yaml:"ref" validate:"required"`
	Center         GPSPoint     `yaml:"center"`
	SagaFeatureRef string       `yaml:"saga_feature_ref"`
	Items          []arcItemDTO `yaml:"items"`
}

type dialogueTreeDTO struct {
	Ref         string          `yaml:"ref" validate:"required"`
	StartNodeID string          `yaml:"start_node_id" validate:"required"`
	Nodes       []*DialogueNode `yaml:"nodes" validate:"required,min=1"`
}

type questDTO struct {
	Ref        string        `yaml:"ref" validate:"required"`
	StartStage string        `yaml:"start_stage" validate:"required"`
	Stages     []*QuestStage `yaml:"stages" validate:"required,min=1"`
}

// LoadDir walks dir for the per-kind YAML files named in fileKinds
// (".yaml" or ".yml") and builds a Catalog from them. Unknown file
// names are ignored — this is a loader for the fixed kind set, not a
// generic directory importer.
func LoadDir(dir string) (*Catalog, error) {
	b := NewBuilder()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("catalog: read dir %s: %w", dir, err)
	}

	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		ext := filepath.Ext(de.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		base := strings.TrimSuffix(de.Name(), ext)
		kind, ok := fileKinds[base]
		if !ok {
			continue
		}
		path := filepath.Join(dir, de.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("catalog: read %s: %w", path, err)
		}
		if err := loadKindFile(b, kind, data); err != nil {
			return nil, fmt.Errorf("catalog: load %s: %w", path, err)
		}
	}

	return b.Build()
}

func loadKindFile(b *Builder, kind Kind, data []byte) error {
	switch kind {
	case KindSagaArc:
		var dtos []sagaArcDTO
		if err := yaml.Unmarshal(data, &dtos); err != nil {
			return err
		}
		for _, dto := range dtos {
			if err := structValidator.Struct(dto); err != nil {
				return fmt.Errorf("saga arc %s: %w", dto.Ref, err)
			}
			items := make([]ArcItem, 0, len(dto.Items))
			for _, it := range dto.Items {
				switch {
				case it.Trigger != nil && it.PatternRef != "":
					return fmt.Errorf("saga arc %s: item has both trigger and pattern_ref", dto.Ref)
				case it.Trigger != nil:
					items = append(items, ArcItem{InlineTrigger: it.Trigger})
				case it.PatternRef != "":
					items = append(items, ArcItem{PatternRef: it.PatternRef})
				default:
					return fmt.Errorf("saga arc %s: item has neither trigger nor pattern_ref", dto.Ref)
				}
			}
			arc := &SagaArc{Ref: dto.Ref, Center: dto.Center, SagaFeatureRef: dto.SagaFeatureRef, Items: items}
			b.Add(kind, dto.Ref, arc)
		}
	case KindDialogueTree:
		var dtos []dialogueTreeDTO
		if err := yaml.Unmarshal(data, &dtos); err != nil {
			return err
		}
		for _, dto := range dtos {
			if err := structValidator.Struct(dto); err != nil {
				return fmt.Errorf("dialogue tree %s: %w", dto.Ref, err)
			}
			nodes := make(map[string]*DialogueNode, len(dto.Nodes))
			for _, n := range dto.Nodes {
				nodes[n.NodeID] = n
			}
			tree := &DialogueTree{Ref: dto.Ref, StartNodeID: dto.StartNodeID, Nodes: nodes}
			b.Add(kind, dto.Ref, tree)
		}
	case KindQuest:
		var dtos []questDTO
		if err := yaml.Unmarshal(data, &dtos); err != nil {
			return err
		}
		for _, dto := range dtos {
			if err := structValidator.Struct(dto); err != nil {
				return fmt.Errorf("quest %s: %w", dto.Ref, err)
			}
			stages := make(map[string]*QuestStage, len(dto.Stages))
			for _, s := range dto.Stages {
				stages[s.StageID] = s
			}
			q := &Quest{Ref: dto.Ref, StartStage: dto.StartStage, Stages: stages}
			b.Add(kind, dto.Ref, q)
		}
	case KindEquipment, KindTool, KindSpell, KindConsumable, KindBuildingMaterial:
		var dtos []Item
		if err := yaml.Unmarshal(data, &dtos); err != nil {
			return err
		}
		for i := range dtos {
			dtos[i].Kind = kind
			if err := structValidator.Struct(dtos[i]); err != nil {
				return fmt.Errorf("%s %s: %w", kind, dtos[i].Ref, err)
			}
			b.Add(kind, dtos[i].Ref, &dtos[i])
		}
	case KindCharacter:
		return loadGeneric[Character](b, kind, data, func(c *Character) string { return c.Ref })
	case KindCharacterArchetype:
		return loadGeneric[CharacterArchetype](b, kind, data, func(c *CharacterArchetype) string { return c.Ref })
	case KindAvatarArchetype:
		return loadGeneric[AvatarArchetype](b, kind, data, func(c *AvatarArchetype) string { return c.Ref })
	case KindAffinity:
		return loadGeneric[Affinity](b, kind, data, func(c *Affinity) string { return c.Ref })
	case KindCombatStance:
		return loadGeneric[CombatStance](b, kind, data, func(c *CombatStance) string { return c.Ref })
	case KindAchievement:
		return loadGeneric[Achievement](b, kind, data, func(c *Achievement) string { return c.Ref })
	case KindFaction:
		return loadGeneric[Faction](b, kind, data, func(c *Faction) string { return c.Ref })
	case KindSagaFeature:
		return loadGeneric[SagaFeature](b, kind, data, func(c *SagaFeature) string { return c.Ref })
	case KindSagaTriggerPattern:
		return loadGeneric[SagaTriggerPattern](b, kind, data, func(c *SagaTriggerPattern) string { return c.Ref })
	case KindQuestToken:
		return loadGeneric[QuestToken](b, kind, data, func(c *QuestToken) string { return c.Ref })
	default:
		return fmt.Errorf("unhandled catalog kind %s", kind)
	}
	return nil
}

func loadGeneric[T any](b *Builder, kind Kind, data []byte, refOf func(*T) string) error {
	var dtos []T
	if err := yaml.Unmarshal(data, &dtos); err != nil {
		return err
	}
	for i := range dtos {
		if err := structValidator.Struct(&dtos[i]); err != nil {
			return fmt.Errorf("%s %s: %w", kind, refOf(&dtos[i]), err)
		}
		b.Add(kind, refOf(&dtos[i]), &dtos[i])
	}
	return nil
}
