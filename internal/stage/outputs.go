package stage

// Triage is the quick screen that decides whether deeper work is worth it.
type Triage struct {
	LeadScore      float64  `json:"lead_score"`
	DataRichness   float64  `json:"data_richness"`
	Niche          string   `json:"niche"`
	Recommendation string   `json:"recommendation"` // proceed | review | skip
	RedFlags       []string `json:"red_flags"`
	Reasoning      string   `json:"reasoning"`
}

// Preprocess condenses profile content ahead of the main analysis.
type Preprocess struct {
	Summary         string   `json:"summary"`
	Themes          []string `json:"themes"`
	AudienceSignals []string `json:"audience_signals"`
	ContentStyle    string   `json:"content_style"`
	BrandMentions   []string `json:"brand_mentions"`
}

// Analysis is the main qualification result. Deeper analyses fill more of
// the optional fields.
type Analysis struct {
	FitScore        float64  `json:"fit_score"`
	Qualification   string   `json:"qualification"` // qualified | maybe | unqualified
	Summary         string   `json:"summary"`
	Strengths       []string `json:"strengths"`
	Risks           []string `json:"risks"`
	AudienceMatch   string   `json:"audience_match,omitempty"`
	OutreachAngle   string   `json:"outreach_angle,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
	ContentPillars  []string `json:"content_pillars,omitempty"`
	CollabIdeas     []string `json:"collaboration_ideas,omitempty"`
}

// BusinessContext is the enriched description of the business a profile is
// qualified against.
type BusinessContext struct {
	Summary       string   `json:"summary"`
	IdealCustomer string   `json:"ideal_customer"`
	Industry      string   `json:"industry"`
	Keywords      []string `json:"keywords"`
	Exclusions    []string `json:"exclusions"`
}

const triageSchema = `{
  "type": "object",
  "required": ["lead_score", "data_richness", "recommendation"],
  "properties": {
    "lead_score": {"type": "number", "minimum": 0, "maximum": 100},
    "data_richness": {"type": "number", "minimum": 0, "maximum": 100},
    "niche": {"type": "string"},
    "recommendation": {"type": "string", "enum": ["proceed", "review", "skip"]},
    "red_flags": {"type": "array", "items": {"type": "string"}},
    "reasoning": {"type": "string"}
  }
}`

const preprocessSchema = `{
  "type": "object",
  "required": ["summary", "themes"],
  "properties": {
    "summary": {"type": "string", "minLength": 1},
    "themes": {"type": "array", "items": {"type": "string"}},
    "audience_signals": {"type": "array", "items": {"type": "string"}},
    "content_style": {"type": "string"},
    "brand_mentions": {"type": "array", "items": {"type": "string"}}
  }
}`

const analysisSchema = `{
  "type": "object",
  "required": ["fit_score", "qualification", "summary"],
  "properties": {
    "fit_score": {"type": "number", "minimum": 0, "maximum": 100},
    "qualification": {"type": "string", "enum": ["qualified", "maybe", "unqualified"]},
    "summary": {"type": "string", "minLength": 1},
    "strengths": {"type": "array", "items": {"type": "string"}},
    "risks": {"type": "array", "items": {"type": "string"}},
    "audience_match": {"type": "string"},
    "outreach_angle": {"type": "string"},
    "recommendations": {"type": "array", "items": {"type": "string"}},
    "content_pillars": {"type": "array", "items": {"type": "string"}},
    "collaboration_ideas": {"type": "array", "items": {"type": "string"}}
  }
}`

const contextSchema = `{
  "type": "object",
  "required": ["summary", "ideal_customer"],
  "properties": {
    "summary": {"type": "string", "minLength": 1},
    "ideal_customer": {"type": "string"},
    "industry": {"type": "string"},
    "keywords": {"type": "array", "items": {"type": "string"}},
    "exclusions": {"type": "array", "items": {"type": "string"}}
  }
}`
