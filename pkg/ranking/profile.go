package ranking

import (
	"os"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"

	"github.com/hiraku-dev/kioku/pkg/model"
)

// DefaultDecayRate is the per-hour exponential decay applied to the
// recency factor. Close to but below 1, so the factor shrinks
// continuously and never reaches zero.
const DefaultDecayRate = 0.995

// Profile is an intent's weight triple plus its jitter fraction. The
// weights need not sum to 1; they blend independently scaled terms.
type Profile struct {
	Relevance float64 `yaml:"relevance"`
	Recency   float64 `yaml:"recency"`
	Utility   float64 `yaml:"utility"`
	Jitter    float64 `yaml:"jitter"`
}

// DefaultProfiles returns the reference weight table. Each intent has
// one dominant axis, except explore which trades dominance for jitter.
func DefaultProfiles() map[model.Intent]Profile {
	return map[model.Intent]Profile{
		model.IntentContinuity:  {Relevance: 0.2, Recency: 0.5, Utility: 0.25, Jitter: 0.05},
		model.IntentFactCheck:   {Relevance: 0.6, Recency: 0.15, Utility: 0.1, Jitter: 0},
		model.IntentFrequent:    {Relevance: 0.2, Recency: 0.15, Utility: 0.6, Jitter: 0.05},
		model.IntentAssociative: {Relevance: 0.4, Recency: 0.25, Utility: 0.25, Jitter: 0.1},
		model.IntentExplore:     {Relevance: 0.3, Recency: 0.3, Utility: 0.3, Jitter: 0.15},
	}
}

// Tuning is the optional YAML override for the scoring constants.
// Intents absent from the file keep their reference profile.
type Tuning struct {
	DecayRatePerHour float64            `yaml:"decay_rate_per_hour"`
	Profiles         map[string]Profile `yaml:"profiles"`
}

// LoadTuning reads a tuning file and validates its intent names.
func LoadTuning(path string) (*Tuning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read tuning file", goerr.V("path", path))
	}

	var tuning Tuning
	if err := yaml.Unmarshal(data, &tuning); err != nil {
		return nil, goerr.Wrap(err, "failed to parse tuning file", goerr.V("path", path))
	}

	for name := range tuning.Profiles {
		if err := model.Intent(name).Validate(); err != nil {
			return nil, goerr.Wrap(err, "tuning file names an unknown intent", goerr.V("name", name))
		}
	}
	if tuning.DecayRatePerHour < 0 || tuning.DecayRatePerHour >= 1 {
		if tuning.DecayRatePerHour != 0 {
			return nil, goerr.New("decay rate must be in (0, 1)",
				goerr.V("decay_rate_per_hour", tuning.DecayRatePerHour))
		}
	}

	return &tuning, nil
}

// Apply merges the tuning into the reference defaults.
func (t *Tuning) Apply() (map[model.Intent]Profile, float64) {
	profiles := DefaultProfiles()
	decayRate := DefaultDecayRate

	if t == nil {
		return profiles, decayRate
	}
	if t.DecayRatePerHour != 0 {
		decayRate = t.DecayRatePerHour
	}
	for name, profile := range t.Profiles {
		profiles[model.Intent(name)] = profile
	}
	return profiles, decayRate
}
