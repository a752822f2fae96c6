package qualify

import (
	"github.com/sells-group/qualify-cli/internal/model"
	"github.com/sells-group/qualify-cli/internal/stage"
	"github.com/sells-group/qualify-cli/internal/workflow"
)

// Outcome is the single object returned for every analysis request.
type Outcome struct {
	RunID       string        `json:"run_id"`
	Subject     string        `json:"subject,omitempty"`
	Depth       model.Depth   `json:"depth"`
	Workflow    string        `json:"workflow,omitempty"`
	Verdict     model.Verdict `json:"verdict"`
	Result      *Result       `json:"result,omitempty"`
	Cost        Cost          `json:"cost"`
	Performance Performance   `json:"performance"`
	Error       string        `json:"error,omitempty"`
	ErrorKind   string        `json:"error_kind,omitempty"`

	err error
}

// Err returns the underlying error of a failed run.
func (o *Outcome) Err() error { return o.err }

// Result is the shaped output of a completed workflow.
type Result struct {
	Profile  *model.Profile         `json:"profile"`
	Context  *stage.BusinessContext `json:"business_context,omitempty"`
	Triage   *stage.Triage          `json:"triage,omitempty"`
	Brief    *stage.Preprocess      `json:"content_brief,omitempty"`
	Analysis *stage.Analysis        `json:"analysis,omitempty"`
	// Stages holds every completed stage's output by stage name.
	Stages  map[string]any `json:"stages"`
	Skipped []string       `json:"skipped,omitempty"`
}

// Cost aggregates spend across executed stages.
type Cost struct {
	ActualUSD float64                `json:"actual_usd"`
	Credits   float64                `json:"credits"`
	TokensIn  int                    `json:"tokens_in"`
	TokensOut int                    `json:"tokens_out"`
	Stages    []workflow.StageRecord `json:"stages"`
}

// Performance reports wall-clock timings in milliseconds.
type Performance struct {
	TotalMs       int64            `json:"total_ms"`
	AcquisitionMs int64            `json:"acquisition_ms"`
	WorkflowMs    int64            `json:"workflow_ms"`
	Stages        map[string]int64 `json:"stages"`
	CacheHit      bool             `json:"cache_hit"`
}
