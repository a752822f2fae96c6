package workflow

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/qualify-cli/internal/llm"
)

// --- Executor Mock ---

type mockExecutor struct {
	mock.Mock
}

func (m *mockExecutor) ExecuteRequest(ctx context.Context, req llm.UniversalRequest) (*llm.UniversalResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*llm.UniversalResponse), args.Error(1)
}

// forSchema matches requests for one stage kind by its schema name.
func forSchema(name string) any {
	return mock.MatchedBy(func(r llm.UniversalRequest) bool { return r.SchemaName == name })
}

func reply(model, text string) *llm.UniversalResponse {
	return &llm.UniversalResponse{Text: text, TokensIn: 100, TokensOut: 50, CostUSD: 0.001, ModelUsed: model}
}
