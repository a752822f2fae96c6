package llm

import (
	"github.com/sells-group/qualify-cli/internal/apperr"
	"github.com/sells-group/qualify-cli/internal/model"
)

// DefaultUpgradeThreshold is the lead score above which balanced-tier stages
// are promoted to the premium model.
const DefaultUpgradeThreshold = 70

var stageModels = map[model.StageKind]map[model.Tier]string{
	model.KindTriage: {
		model.TierEconomy:  ModelGPT4oMini,
		model.TierBalanced: ModelHaiku,
		model.TierPremium:  ModelSonnet,
	},
	model.KindPreprocess: {
		model.TierEconomy:  ModelGPT4oMini,
		model.TierBalanced: ModelHaiku,
		model.TierPremium:  ModelSonnet,
	},
	model.KindAnalysis: {
		model.TierEconomy:  ModelHaiku,
		model.TierBalanced: ModelSonnet,
		model.TierPremium:  ModelOpus,
	},
	model.KindContext: {
		model.TierEconomy:  ModelGPT4oMini,
		model.TierBalanced: ModelHaiku,
		model.TierPremium:  ModelSonnet,
	},
}

// Signal carries optional input-value hints into model selection.
type Signal struct {
	LeadScore float64
}

// Selector maps (stage kind, tier, signal) to a model ID.
type Selector struct {
	table     map[model.StageKind]map[model.Tier]string
	threshold float64
}

// NewSelector creates a Selector with the built-in stage table. A threshold
// of zero or less uses DefaultUpgradeThreshold.
func NewSelector(threshold float64) *Selector {
	if threshold <= 0 {
		threshold = DefaultUpgradeThreshold
	}
	return &Selector{table: stageModels, threshold: threshold}
}

// Select returns the model for a stage. A nil signal disables the upgrade.
func (s *Selector) Select(kind model.StageKind, tier model.Tier, signal *Signal) (string, error) {
	tiers, ok := s.table[kind]
	if !ok {
		return "", apperr.NewConfigurationError("stage kind", string(kind))
	}
	if signal != nil && tier == model.TierBalanced && signal.LeadScore > s.threshold {
		tier = model.TierPremium
	}
	id, ok := tiers[tier]
	if !ok {
		return "", apperr.NewConfigurationError("tier", string(tier))
	}
	return id, nil
}
