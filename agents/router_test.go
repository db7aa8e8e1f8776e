// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package agents

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copilot/platform/shared/logger"
)

type stubAgent struct {
	name  string
	out   *Output
	err   error
	calls atomic.Int32
	last  atomic.Value
}

func (s *stubAgent) Name() string        { return s.name }
func (s *stubAgent) Description() string { return s.name + " agent" }

func (s *stubAgent) Handle(_ context.Context, task Task) (*Output, error) {
	s.calls.Add(1)
	s.last.Store(task)
	return s.out, s.err
}

func quietLogger() *logger.Logger {
	l := logger.New("agents-test")
	l.SetOutput(io.Discard)
	return l
}

func newStubRouter(t *testing.T) (*Router, map[string]*stubAgent) {
	t.Helper()
	stubs := map[string]*stubAgent{
		"infrastructure": {name: "infrastructure", out: &Output{Summary: "generated"}},
		"compliance":     {name: "compliance", out: &Output{Summary: "assessed"}},
		"cost":           {name: "cost", err: errors.New("cost store down")},
		"documents":      {name: "documents", out: &Output{Summary: "documented"}},
	}
	r, err := NewRouter(nil, quietLogger(),
		stubs["infrastructure"], stubs["compliance"], stubs["cost"], stubs["documents"])
	require.NoError(t, err)
	return r, stubs
}

func TestRouter_Route(t *testing.T) {
	r, _ := newStubRouter(t)

	tests := []struct {
		query string
		want  []string
	}{
		{"generate a three-tier-web in terraform for prod", []string{"infrastructure"}},
		{"what is our cost forecast and are we FedRAMP compliant", []string{"compliance", "cost"}},
		{"generate an SSP", []string{"documents", "infrastructure"}},
		{"explain AC-2", []string{"compliance"}},
		{"hello there", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Route(tt.query))
		})
	}
}

func TestRouter_DispatchFanOut(t *testing.T) {
	r, stubs := newStubRouter(t)

	resp, err := r.Dispatch(context.Background(),
		DispatchRequest{Query: "  cost forecast and FedRAMP compliance  ", Params: map[string]string{"subscription_id": "sub-1"}},
		Task{TenantID: "tenant-a", UserID: "alice"})
	require.NoError(t, err)

	assert.Equal(t, "cost forecast and FedRAMP compliance", resp.Query)
	assert.Equal(t, []string{"compliance", "cost"}, resp.Routed)
	require.Len(t, resp.Results, 2)

	assert.Equal(t, "compliance", resp.Results[0].Agent)
	assert.Equal(t, StatusOK, resp.Results[0].Status)
	assert.Equal(t, "assessed", resp.Results[0].Summary)

	assert.Equal(t, "cost", resp.Results[1].Agent)
	assert.Equal(t, StatusError, resp.Results[1].Status)
	assert.Equal(t, "cost store down", resp.Results[1].Error)

	task := stubs["compliance"].last.Load().(Task)
	assert.Equal(t, "tenant-a", task.TenantID)
	assert.Equal(t, "sub-1", task.Param("subscription_id", ""))
	assert.Equal(t, int32(0), stubs["infrastructure"].calls.Load())
}

func TestRouter_DispatchExplicitAgent(t *testing.T) {
	r, stubs := newStubRouter(t)

	resp, err := r.Dispatch(context.Background(), DispatchRequest{Agent: "documents"}, Task{})
	require.NoError(t, err)
	assert.Equal(t, []string{"documents"}, resp.Routed)
	assert.Equal(t, int32(1), stubs["documents"].calls.Load())

	_, err = r.Dispatch(context.Background(), DispatchRequest{Agent: "llm", Query: "x"}, Task{})
	assert.True(t, errors.Is(err, ErrUnknownAgent))
}

func TestRouter_DispatchErrors(t *testing.T) {
	r, _ := newStubRouter(t)

	_, err := r.Dispatch(context.Background(), DispatchRequest{Query: "   "}, Task{})
	assert.True(t, errors.Is(err, ErrEmptyQuery))

	_, err = r.Dispatch(context.Background(), DispatchRequest{Query: "tell me a joke"}, Task{})
	assert.True(t, errors.Is(err, ErrNoMatchingAgent))
}

func TestRouter_DropsRulesForMissingAgents(t *testing.T) {
	cost := &stubAgent{name: "cost"}
	r, err := NewRouter(nil, quietLogger(), cost)
	require.NoError(t, err)

	assert.Equal(t, []string{"cost"}, r.Route("generate a cost report for the SSP"))

	infos := r.Agents()
	require.Len(t, infos, 1)
	assert.Equal(t, "cost", infos[0].Name)
	assert.Len(t, infos[0].Patterns, 1)
}

func TestNewRouter_DuplicateAgent(t *testing.T) {
	_, err := NewRouter(nil, quietLogger(), &stubAgent{name: "cost"}, &stubAgent{name: "cost"})
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}
