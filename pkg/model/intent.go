package model

import "github.com/m-mizutani/goerr/v2"

var ErrInvalidIntent = goerr.New("invalid intent")

// Intent declares the purpose of a search and selects which ranking
// signal dominates.
type Intent string

const (
	// IntentContinuity favors recently touched memories for resuming work.
	IntentContinuity Intent = "continuity"
	// IntentFactCheck favors semantic relevance and is effectively deterministic.
	IntentFactCheck Intent = "fact_check"
	// IntentFrequent favors memories with high usefulness votes.
	IntentFrequent Intent = "frequent"
	// IntentAssociative blends relevance with moderate randomness.
	IntentAssociative Intent = "associative"
	// IntentExplore balances all signals with high jitter to diversify results.
	IntentExplore Intent = "explore"
)

// Validate checks if the intent is one of the closed set
func (x Intent) Validate() error {
	switch x {
	case IntentContinuity, IntentFactCheck, IntentFrequent, IntentAssociative, IntentExplore:
		return nil
	default:
		return goerr.Wrap(ErrInvalidIntent, "unknown intent", goerr.V("intent", x))
	}
}

// Intents returns all valid intents in a stable order.
func Intents() []Intent {
	return []Intent{
		IntentContinuity,
		IntentFactCheck,
		IntentFrequent,
		IntentAssociative,
		IntentExplore,
	}
}
