package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/qualify-cli/internal/apperr"
	"github.com/sells-group/qualify-cli/internal/model"
)

func TestSelect(t *testing.T) {
	s := NewSelector(0)

	tests := []struct {
		name   string
		kind   model.StageKind
		tier   model.Tier
		signal *Signal
		want   string
	}{
		{"triage economy", model.KindTriage, model.TierEconomy, nil, ModelGPT4oMini},
		{"analysis balanced", model.KindAnalysis, model.TierBalanced, nil, ModelSonnet},
		{"analysis premium", model.KindAnalysis, model.TierPremium, nil, ModelOpus},
		{"balanced upgrades above threshold", model.KindAnalysis, model.TierBalanced, &Signal{LeadScore: 71}, ModelOpus},
		{"threshold itself does not upgrade", model.KindAnalysis, model.TierBalanced, &Signal{LeadScore: 70}, ModelSonnet},
		{"economy never upgrades", model.KindAnalysis, model.TierEconomy, &Signal{LeadScore: 99}, ModelHaiku},
		{"preprocess balanced upgraded", model.KindPreprocess, model.TierBalanced, &Signal{LeadScore: 90}, ModelSonnet},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Select(tt.kind, tt.tier, tt.signal)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelect_Unknown(t *testing.T) {
	s := NewSelector(70)

	_, err := s.Select("summarize", model.TierEconomy, nil)
	assert.True(t, apperr.IsConfiguration(err))

	_, err = s.Select(model.KindTriage, "platinum", nil)
	assert.True(t, apperr.IsConfiguration(err))
}

func TestSelect_AllEntriesInRegistry(t *testing.T) {
	reg := DefaultRegistry()
	for kind, tiers := range stageModels {
		for tier, id := range tiers {
			_, err := reg.Lookup(id)
			assert.NoError(t, err, "%s/%s -> %s", kind, tier, id)
		}
	}
}

func TestRegistry_BackupsResolve(t *testing.T) {
	reg := DefaultRegistry()
	for id, d := range reg {
		assert.Equal(t, id, d.ID)
		if d.Backup != "" {
			_, err := reg.Lookup(d.Backup)
			assert.NoError(t, err, "backup of %s", id)
			assert.NotEqual(t, id, d.Backup)
		}
	}
}
