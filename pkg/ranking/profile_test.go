package ranking_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/hiraku-dev/kioku/pkg/model"
	"github.com/hiraku-dev/kioku/pkg/ranking"
)

func TestLoadTuning(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yml")
	gt.NoError(t, os.WriteFile(path, []byte(`
decay_rate_per_hour: 0.99
profiles:
  continuity:
    relevance: 0.1
    recency: 0.7
    utility: 0.2
    jitter: 0
`), 0644))

	tuning, err := ranking.LoadTuning(path)
	gt.NoError(t, err)

	profiles, decayRate := tuning.Apply()
	gt.Equal(t, decayRate, 0.99)
	gt.Equal(t, profiles[model.IntentContinuity].Recency, 0.7)

	// Intents absent from the file keep the reference profile.
	gt.Equal(t, profiles[model.IntentFactCheck], ranking.DefaultProfiles()[model.IntentFactCheck])
}

func TestLoadTuningRejectsUnknownIntent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yml")
	gt.NoError(t, os.WriteFile(path, []byte(`
profiles:
  freshest:
    relevance: 1
`), 0644))

	_, err := ranking.LoadTuning(path)
	gt.Error(t, err)
}

func TestLoadTuningRejectsBadDecayRate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yml")
	gt.NoError(t, os.WriteFile(path, []byte("decay_rate_per_hour: 1.5\n"), 0644))

	_, err := ranking.LoadTuning(path)
	gt.Error(t, err)
}

func TestDefaultProfilesShape(t *testing.T) {
	profiles := ranking.DefaultProfiles()
	gt.Map(t, profiles).HasKey(model.IntentContinuity)

	for _, intent := range model.Intents() {
		profile, ok := profiles[intent]
		gt.True(t, ok)
		gt.True(t, profile.Relevance >= 0 && profile.Recency >= 0 && profile.Utility >= 0)
	}

	// Each intent has one dominant axis.
	gt.True(t, profiles[model.IntentContinuity].Recency >= 0.5)
	gt.True(t, profiles[model.IntentFactCheck].Relevance >= 0.6)
	gt.True(t, profiles[model.IntentFrequent].Utility >= 0.6)
	gt.Equal(t, profiles[model.IntentFactCheck].Jitter, 0.0)
	gt.True(t, profiles[model.IntentExplore].Jitter >= 0.15)
}
