package model

// Depth is the requested thoroughness of acquisition and analysis.
type Depth string

const (
	DepthLight    Depth = "light"
	DepthDeep     Depth = "deep"
	DepthExtended Depth = "extended"
)

// Rank orders depths so richer data compares greater. Unknown depths rank 0.
func (d Depth) Rank() int {
	switch d {
	case DepthLight:
		return 1
	case DepthDeep:
		return 2
	case DepthExtended:
		return 3
	default:
		return 0
	}
}

// Valid reports whether d is one of the known depths.
func (d Depth) Valid() bool { return d.Rank() > 0 }

// Quality maps a depth to the data quality its scrape produces.
func (d Depth) Quality() DataQuality {
	switch d {
	case DepthDeep:
		return DataQualityStandard
	case DepthExtended:
		return DataQualityRich
	default:
		return DataQualityBasic
	}
}

// DefaultTier is the tier used when a request does not name one.
func (d Depth) DefaultTier() Tier {
	switch d {
	case DepthDeep:
		return TierBalanced
	case DepthExtended:
		return TierPremium
	default:
		return TierEconomy
	}
}

// ParseDepth converts a string into a Depth.
func ParseDepth(s string) (Depth, bool) {
	d := Depth(s)
	return d, d.Valid()
}

// Tier is a cost/quality bucket used to pick a model.
type Tier string

const (
	TierEconomy  Tier = "economy"
	TierBalanced Tier = "balanced"
	TierPremium  Tier = "premium"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierEconomy, TierBalanced, TierPremium:
		return true
	}
	return false
}

// Business is the company a profile is qualified against.
type Business struct {
	Name           string `json:"name" validate:"required"`
	Description    string `json:"description,omitempty"`
	TargetAudience string `json:"target_audience,omitempty"`
	Industry       string `json:"industry,omitempty"`
	Website        string `json:"website,omitempty"`
}

// Verdict is the terminal classification of an analysis run.
type Verdict string

const (
	VerdictSuccess   Verdict = "success"
	VerdictEarlyExit Verdict = "early_exit"
	VerdictError     Verdict = "error"
)

// StageKind is the closed set of workflow stage types.
type StageKind string

const (
	KindTriage     StageKind = "triage"
	KindPreprocess StageKind = "preprocess"
	KindAnalysis   StageKind = "analysis"
	KindContext    StageKind = "context"
)

// Valid reports whether k is a known stage kind.
func (k StageKind) Valid() bool {
	switch k {
	case KindTriage, KindPreprocess, KindAnalysis, KindContext:
		return true
	}
	return false
}
