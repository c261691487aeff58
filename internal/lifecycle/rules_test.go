package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestDefaultRulesClosure verifies every referenced state is declared: the
// built-in table must pass the same fail-closed validation as user tables.
func TestDefaultRulesClosure(t *testing.T) {
	rules := DefaultRules()
	for _, s := range rules.States() {
		for _, target := range rules.ValidTransitions(s) {
			require.True(t, rules.Declared(target), "state %s references undeclared %s", s, target)
		}
	}
}

func TestNewRulesRejectsDanglingReference(t *testing.T) {
	order := []State{"a", "b"}
	table := map[State]Rule{
		"a": {NormalNext: []State{"ghost"}},
		"b": {},
	}
	_, err := NewRules(order, table)
	require.Error(t, err)
	require.Contains(t, err.Error(), "ghost")
}

func TestNewRulesRejectsDuplicateAndMismatch(t *testing.T) {
	_, err := NewRules([]State{"a", "a"}, map[State]Rule{"a": {}})
	require.Error(t, err)

	_, err = NewRules([]State{"a"}, map[State]Rule{"a": {}, "b": {}})
	require.Error(t, err)

	_, err = NewRules(nil, nil)
	require.Error(t, err)
}

func TestKindClassification(t *testing.T) {
	rules := DefaultRules()

	tests := []struct {
		name string
		from State
		to   State
		want TransitionKind
	}{
		{"normal forward", StateCollecting, StateClarifying, TransitionNormal},
		{"denied forward jump", StateCollecting, StateSRSReview, TransitionDenied},
		{"recovery backward", StateClarifying, StateCollecting, TransitionRecovery},
		{"skip over planning", StateArchitecture, StateImplementing, TransitionSkip},
		{"undeclared target", StateCollecting, State("bogus"), TransitionDenied},
		{"undeclared source", State("bogus"), StateCollecting, TransitionDenied},
		{"terminal has no exits", StateCompleted, StateCollecting, TransitionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, rules.Kind(tt.from, tt.to))
		})
	}
}

func TestValidTransitionsFromCollecting(t *testing.T) {
	rules := DefaultRules()
	require.Equal(t, []State{StateClarifying}, rules.ValidTransitions(StateCollecting))
}

func TestQueryMethods(t *testing.T) {
	rules := DefaultRules()

	require.Equal(t, []State{StateSRSWriting}, rules.RecoveryOptions(StateSRSReview))
	require.Equal(t, []State{StateImplementing}, rules.SkipOptions(StateArchitecture))
	require.Empty(t, rules.SkipOptions(StateCollecting))

	require.True(t, rules.IsRequired(StateSRSReview))
	require.False(t, rules.IsRequired(StatePlanning))

	require.Equal(t, StateCollecting, rules.Initial())
}

func TestBetween(t *testing.T) {
	rules := DefaultRules()

	require.Equal(t, []State{StatePlanning}, rules.Between(StateArchitecture, StateImplementing))
	require.Empty(t, rules.Between(StateCollecting, StateClarifying))
	require.Empty(t, rules.Between(StateImplementing, StateCollecting))

	between := rules.Between(StateSRSWriting, StateImplementing)
	require.Equal(t, []State{StateSRSReview, StateArchitecture, StatePlanning}, between)
	require.Equal(t, []State{StateSRSReview}, rules.RequiredBetween(StateSRSWriting, StateImplementing))
}

func TestParseRulesYAML(t *testing.T) {
	data := []byte(`
order: [draft, review, published]
states:
  draft:
    normal_next: [review]
  review:
    normal_next: [published]
    recovery_targets: [draft]
    required: true
  published: {}
`)
	rules, err := ParseRules(data)
	require.NoError(t, err)
	require.Equal(t, []State{"draft", "review", "published"}, rules.States())
	require.Equal(t, TransitionNormal, rules.Kind("draft", "review"))
	require.Equal(t, TransitionRecovery, rules.Kind("review", "draft"))
	require.True(t, rules.IsRequired("review"))
}

func TestParseRulesYAMLRejectsDangling(t *testing.T) {
	data := []byte(`
order: [draft]
states:
  draft:
    normal_next: [missing]
`)
	_, err := ParseRules(data)
	require.Error(t, err)
}
