package qualitygate

import (
	"context"
	"strings"
	"sync"

	"github.com/Iron-Ham/crew/internal/localcheck"
	"github.com/Iron-Ham/crew/internal/provider"
)

type fakeRunner struct {
	mu          sync.Mutex
	typeChecks  []localcheck.TypeCheckResult
	tests       []localcheck.TestResult
	installErr  error
	tcCalls     int
	testCalls   int
	installs    int
	bypassFlags []bool
}

func (f *fakeRunner) TypeCheck(_ context.Context, _ string, opts localcheck.RunOptions) (localcheck.TypeCheckResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := min(f.tcCalls, len(f.typeChecks)-1)
	f.tcCalls++
	f.bypassFlags = append(f.bypassFlags, opts.BypassCache)
	return f.typeChecks[i], nil
}

func (f *fakeRunner) RunTests(_ context.Context, _ string, opts localcheck.RunOptions) (localcheck.TestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := min(f.testCalls, len(f.tests)-1)
	f.testCalls++
	f.bypassFlags = append(f.bypassFlags, opts.BypassCache)
	return f.tests[i], nil
}

func (f *fakeRunner) InstallDependencies(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.installs++
	return f.installErr
}

// fakeClient answers by review focus; unknown prompts get fallback.
type fakeClient struct {
	name     provider.Name
	mu       sync.Mutex
	replies  map[string]string
	fallback string
	err      error
	calls    int
	models   []string
	panicOn  string
}

func (c *fakeClient) Provider() provider.Name { return c.name }

func (c *fakeClient) Complete(_ context.Context, r provider.Request) (provider.Response, error) {
	c.mu.Lock()
	c.calls++
	c.models = append(c.models, r.Model)
	c.mu.Unlock()

	if c.panicOn != "" && strings.Contains(r.Prompt, c.panicOn) {
		panic("boom")
	}
	if c.err != nil {
		return provider.Response{}, c.err
	}
	for marker, reply := range c.replies {
		if strings.Contains(r.Prompt, marker) {
			return provider.Response{Text: reply, Model: r.Model}, nil
		}
	}
	return provider.Response{Text: c.fallback, Model: r.Model}, nil
}

type fakeFactory struct {
	client    *fakeClient
	requested []provider.Name
	mu        sync.Mutex
}

func (f *fakeFactory) Client(name provider.Name) (provider.Client, error) {
	f.mu.Lock()
	f.requested = append(f.requested, name)
	f.mu.Unlock()
	f.client.name = name
	return f.client, nil
}

func aiOnlyConfig() Config {
	cfg := DefaultConfig()
	cfg.StageTimeout = 0
	return cfg
}
