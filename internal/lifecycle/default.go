package lifecycle

// Default pipeline states for the agent pipeline, from requirements intake
// through review.
const (
	StateCollecting   State = "collecting"
	StateClarifying   State = "clarifying"
	StateSRSWriting   State = "srs_writing"
	StateSRSReview    State = "srs_review"
	StateArchitecture State = "architecture"
	StatePlanning     State = "planning"
	StateImplementing State = "implementing"
	StateReviewing    State = "reviewing"
	StateCompleted    State = "completed"
)

// DefaultRules returns the built-in pipeline rule table. Deployments with a
// different pipeline load their own table via LoadRules.
func DefaultRules() *Rules {
	order := []State{
		StateCollecting,
		StateClarifying,
		StateSRSWriting,
		StateSRSReview,
		StateArchitecture,
		StatePlanning,
		StateImplementing,
		StateReviewing,
		StateCompleted,
	}
	table := map[State]Rule{
		StateCollecting: {
			NormalNext: []State{StateClarifying},
		},
		StateClarifying: {
			NormalNext:      []State{StateSRSWriting},
			RecoveryTargets: []State{StateCollecting},
		},
		StateSRSWriting: {
			NormalNext:      []State{StateSRSReview},
			RecoveryTargets: []State{StateCollecting, StateClarifying},
		},
		StateSRSReview: {
			NormalNext:      []State{StateArchitecture},
			RecoveryTargets: []State{StateSRSWriting},
			Required:        true,
		},
		StateArchitecture: {
			NormalNext:      []State{StatePlanning},
			RecoveryTargets: []State{StateSRSReview},
			SkipTargets:     []State{StateImplementing},
		},
		StatePlanning: {
			NormalNext:      []State{StateImplementing},
			RecoveryTargets: []State{StateArchitecture},
		},
		StateImplementing: {
			NormalNext:      []State{StateReviewing},
			RecoveryTargets: []State{StatePlanning, StateArchitecture},
			Required:        true,
		},
		StateReviewing: {
			NormalNext:      []State{StateCompleted},
			RecoveryTargets: []State{StateImplementing},
			Required:        true,
		},
		StateCompleted: {},
	}
	rules, err := NewRules(order, table)
	if err != nil {
		// The built-in table is validated by tests; a failure here is a
		// programming error.
		panic(err)
	}
	return rules
}
