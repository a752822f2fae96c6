package acquire

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sells-group/qualify-cli/internal/model"
	"github.com/sells-group/qualify-cli/pkg/apify"
)

type apifyCall struct {
	Actor string
	Input map[string]any
}

// fakeApify answers RunSync from a per-actor handler and records calls.
type fakeApify struct {
	mu       sync.Mutex
	calls    []apifyCall
	handlers map[string]func(n int) ([]json.RawMessage, error)
}

func newFakeApify() *fakeApify {
	return &fakeApify{handlers: map[string]func(int) ([]json.RawMessage, error){}}
}

func (f *fakeApify) RunSync(_ context.Context, actor string, input any, _ apify.RunOptions) ([]json.RawMessage, error) {
	f.mu.Lock()
	in, _ := input.(map[string]any)
	f.calls = append(f.calls, apifyCall{Actor: actor, Input: in})
	n := 0
	for _, c := range f.calls {
		if c.Actor == actor {
			n++
		}
	}
	h := f.handlers[actor]
	f.mu.Unlock()
	if h == nil {
		return nil, &apify.APIError{StatusCode: 500, Body: "no handler"}
	}
	return h(n)
}

func (f *fakeApify) actors() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Actor
	}
	return out
}

type fakeReader struct {
	profile *model.Profile
	err     error
	calls   int
}

func (r *fakeReader) Read(_ context.Context, subject string) (*model.Profile, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	p := *r.profile
	p.Username = subject
	return &p, nil
}

func items(raw ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(raw))
	for i, r := range raw {
		out[i] = json.RawMessage(r)
	}
	return out
}

const acmeItem = `{
	"username": "acme",
	"fullName": "Acme Coffee",
	"biography": "Small-batch roasters",
	"followersCount": 1000,
	"followsCount": 50,
	"postsCount": 3,
	"latestPosts": [
		{"id": "1", "caption": "beans", "likesCount": 100, "commentsCount": 10},
		{"id": "2", "caption": "latte", "likesCount": 200, "commentsCount": 30},
		{"id": "3", "caption": "shop", "likesCount": 300, "commentsCount": 20}
	]
}`
