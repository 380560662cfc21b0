// Package mocks provides mock implementations of interfaces for testing.
// These follow Go best practices for test doubles.
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/arkforge/arkforge/pkg/interfaces"
	"github.com/arkforge/arkforge/pkg/types"
)

// MockConfigStore is an in-memory ConfigStore for testing.
type MockConfigStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]interface{}

	// SaveError forces Save to report failure when set.
	SaveError bool
}

// NewMockConfigStore creates an empty mock store.
func NewMockConfigStore() *MockConfigStore {
	return &MockConfigStore{docs: make(map[string]map[string]interface{})}
}

var _ interfaces.ConfigStore = (*MockConfigStore)(nil)

// Load merges the persisted document over schema; persisted wins.
func (m *MockConfigStore) Load(id string, schema map[string]interface{}) map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]interface{}, len(schema))
	for k, v := range schema {
		out[k] = v
	}
	for k, v := range m.docs[id] {
		out[k] = v
	}
	return out
}

// Save stores a copy of the document.
func (m *MockConfigStore) Save(id string, document map[string]interface{}) bool {
	if document == nil || m.SaveError {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make(map[string]interface{}, len(document))
	for k, v := range document {
		copied[k] = v
	}
	m.docs[id] = copied
	return true
}

// Delete removes the document for id.
func (m *MockConfigStore) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	return true
}

// Exists reports whether a document is stored for id.
func (m *MockConfigStore) Exists(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.docs[id]
	return ok
}

// ListEntities returns all stored ids in arbitrary order.
func (m *MockConfigStore) ListEntities() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.docs))
	for id := range m.docs {
		out = append(out, id)
	}
	return out
}

// RunCall records one invocation of MockProcessRunner.Run.
type RunCall struct {
	Argv []string
	Opts interfaces.RunOptions
}

// MockProcessRunner is a canned-result ProcessRunner for testing.
type MockProcessRunner struct {
	mu    sync.Mutex
	calls []RunCall

	// Result is returned (by value copy) for every call unless
	// ResultFn is set.
	Result types.ExecutionResult

	// ResultFn computes a per-call result when non-nil.
	ResultFn func(argv []string) types.ExecutionResult

	// Err is returned for every call when non-nil.
	Err error

	// Lines are streamed to the sink before returning.
	Lines []string

	// Block, when non-nil, makes Run wait until the channel is closed
	// after recording the call.
	Block chan struct{}
}

// NewMockProcessRunner creates a runner that reports success.
func NewMockProcessRunner() *MockProcessRunner {
	return &MockProcessRunner{}
}

var _ interfaces.ProcessRunner = (*MockProcessRunner)(nil)

// Run records the call and returns the configured result.
func (m *MockProcessRunner) Run(ctx context.Context, argv []string, opts interfaces.RunOptions) (*types.ExecutionResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, RunCall{Argv: append([]string(nil), argv...), Opts: opts})
	block := m.Block
	m.mu.Unlock()

	if block != nil {
		<-block
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if opts.Sink != nil {
		for _, line := range m.Lines {
			opts.Sink(line)
		}
	}

	res := m.Result
	if m.ResultFn != nil {
		res = m.ResultFn(argv)
	}
	return &res, nil
}

// Calls returns a copy of the recorded invocations.
func (m *MockProcessRunner) Calls() []RunCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RunCall(nil), m.calls...)
}

// LastCall returns the most recent invocation, or a zero RunCall.
func (m *MockProcessRunner) LastCall() RunCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return RunCall{}
	}
	return m.calls[len(m.calls)-1]
}

// MockNotifier records build notifications for assertions.
type MockNotifier struct {
	mu        sync.Mutex
	Starts    []string
	Successes []string
	Failures  []string
	Pipelines []*types.PipelineRun
}

// NewMockNotifier creates an empty notifier recorder.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

var _ interfaces.BuildNotifier = (*MockNotifier)(nil)

func (m *MockNotifier) NotifyBuildStart(engine string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Starts = append(m.Starts, engine)
}

func (m *MockNotifier) NotifyBuildSuccess(engine string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Successes = append(m.Successes, engine)
}

func (m *MockNotifier) NotifyBuildFailure(engine string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Failures = append(m.Failures, engine)
}

func (m *MockNotifier) NotifyPipelineResult(run *types.PipelineRun) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Pipelines = append(m.Pipelines, run)
}
