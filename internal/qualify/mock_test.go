package qualify

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/qualify-cli/internal/acquire"
	"github.com/sells-group/qualify-cli/internal/llm"
	"github.com/sells-group/qualify-cli/internal/model"
)

// --- Acquirer Mock ---

type mockAcquirer struct {
	mock.Mock
}

func (m *mockAcquirer) Acquire(ctx context.Context, subject string, depth model.Depth) (*acquire.Result, error) {
	args := m.Called(ctx, subject, depth)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*acquire.Result), args.Error(1)
}

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

func forSchema(name string) any {
	return mock.MatchedBy(func(r llm.UniversalRequest) bool { return r.SchemaName == name })
}
