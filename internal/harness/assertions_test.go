package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	type inner struct {
		N int `json:"n"`
	}
	type state struct {
		Items []string `json:"items"`
		In    inner    `json:"in"`
	}

	got, err := Normalize(state{Items: []string{"a"}, In: inner{N: 2}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"items": []any{"a"},
		"in":    map[string]any{"n": float64(2)},
	}, got)

	_, err = Normalize(func() {})
	assert.Error(t, err)
}

func TestMatches(t *testing.T) {
	actual := map[string]any{
		"a": float64(1),
		"b": map[string]any{"c": "x", "d": true},
		"e": []any{float64(1), float64(2)},
	}

	tests := []struct {
		name     string
		expected any
		want     bool
	}{
		{"empty object", map[string]any{}, true},
		{"subset", map[string]any{"a": float64(1)}, true},
		{"nested subset", map[string]any{"b": map[string]any{"d": true}}, true},
		{"missing key", map[string]any{"z": nil}, false},
		{"wrong value", map[string]any{"a": float64(2)}, false},
		{"array exact", map[string]any{"e": []any{float64(1), float64(2)}}, true},
		{"array prefix", map[string]any{"e": []any{float64(1)}}, false},
		{"object vs scalar", map[string]any{"a": map[string]any{}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(actual, tt.expected))
		})
	}
}

func TestMatchState_IntsAgainstStructs(t *testing.T) {
	type counter struct {
		Value int `json:"value"`
	}
	ok, err := matchState(counter{Value: 3}, map[string]any{"value": 3})
	require.NoError(t, err)
	assert.True(t, ok)
}

func commitEvent(kind string, seq int64, state map[string]any) TraceEvent {
	return TraceEvent{Type: EventCommit, Kind: kind, Seq: seq, State: state}
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	result.AddEvent(commitEvent("initial", 1, map[string]any{"v": float64(0)}))
	result.AddEvent(TraceEvent{Type: EventAction, Name: "inc", Seq: 1})
	result.AddEvent(commitEvent("sync", 2, map[string]any{"v": float64(1)}))
	result.AddEvent(commitEvent("async", 3, map[string]any{"v": float64(2)}))
	result.State = map[string]any{"v": float64(2)}

	pass := []Assertion{
		{Type: AssertFinalState, Expect: map[string]any{"v": 2}},
		{Type: AssertCommitCount, Count: 3},
		{Type: AssertCommitOrder, Kinds: []string{"initial", "async"}},
		{Type: AssertCommitContains, Kind: "sync", State: map[string]any{"v": 1}},
		{Type: AssertCommitContains, State: map[string]any{"v": 0}},
	}
	assert.Empty(t, EvaluateAssertions(result, pass))

	fail := []Assertion{
		{Type: AssertCommitOrder, Kinds: []string{"sync", "sync"}},
		{Type: AssertCommitContains, Kind: "async", State: map[string]any{"v": 1}},
		{Type: "nope"},
	}
	errs := EvaluateAssertions(result, fail)
	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "matched 1 of 2")
	assert.Contains(t, errs[1], `async commit with state {"v":1}`)
	assert.Contains(t, errs[1], "[2] action inc")
	assert.Contains(t, errs[2], `unknown assertion type "nope"`)
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)
	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}
