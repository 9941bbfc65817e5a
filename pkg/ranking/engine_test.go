package ranking_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/hiraku-dev/kioku/pkg/model"
	"github.com/hiraku-dev/kioku/pkg/ranking"
	"github.com/hiraku-dev/kioku/pkg/repository"
)

// memoryLookup is an in-memory Lookup for chain resolution tests.
type memoryLookup map[model.MemoryID]*model.Memory

func (x memoryLookup) FindByID(ctx context.Context, id model.MemoryID) (*model.Memory, error) {
	return x[id], nil
}

func (x memoryLookup) add(mem *model.Memory) *model.Memory {
	x[mem.ID] = mem
	return mem
}

func newMemory(content string) *model.Memory {
	now := time.Now().UTC()
	return &model.Memory{
		ID:           model.NewMemoryID(),
		Content:      content,
		CreatedAt:    now,
		UpdatedAt:    now,
		Supersession: model.Live(),
		LastAccessed: &now,
	}
}

func rows(score float64, mems ...*model.Memory) []repository.ScoredMemory {
	out := make([]repository.ScoredMemory, 0, len(mems))
	for _, mem := range mems {
		out = append(out, repository.ScoredMemory{Memory: mem, Score: score})
	}
	return out
}

// noJitter zeroes the jitter of every profile so ordering properties
// can be asserted exactly.
func noJitter() map[model.Intent]ranking.Profile {
	profiles := ranking.DefaultProfiles()
	for intent, profile := range profiles {
		profile.Jitter = 0
		profiles[intent] = profile
	}
	return profiles
}

func TestDedupeChainsToSameTerminal(t *testing.T) {
	ctx := context.Background()
	lookup := memoryLookup{}

	live := lookup.add(newMemory("current form of the note"))
	oldA := lookup.add(newMemory("draft one"))
	oldB := lookup.add(newMemory("draft two"))
	oldA.Supersession = model.SupersededBy(live.ID)
	oldB.Supersession = model.SupersededBy(live.ID)

	engine := ranking.New(lookup, ranking.WithSeed(1))

	results, err := engine.Rank(ctx, rows(1.0, oldA, oldB, live), ranking.Options{
		Intent: model.IntentFactCheck,
		Limit:  10,
	})
	gt.NoError(t, err)
	gt.A(t, results).Length(1)
	gt.Equal(t, results[0].Memory.ID, live.ID)
	gt.Equal(t, results[0].Memory.Content, "current form of the note")
}

func TestChainTermination(t *testing.T) {
	ctx := context.Background()
	lookup := memoryLookup{}

	terminal := lookup.add(newMemory("terminal"))
	head := terminal
	for i := 0; i < 10; i++ {
		prev := lookup.add(newMemory("older revision"))
		prev.Supersession = model.SupersededBy(head.ID)
		head = prev
	}

	engine := ranking.New(lookup, ranking.WithSeed(1))

	results, err := engine.Rank(ctx, rows(1.0, head), ranking.Options{
		Intent: model.IntentFactCheck,
		Limit:  1,
	})
	gt.NoError(t, err)
	gt.A(t, results).Length(1)
	gt.Equal(t, results[0].Memory.ID, terminal.ID)
}

func TestChainCycleDropped(t *testing.T) {
	ctx := context.Background()
	lookup := memoryLookup{}

	a := lookup.add(newMemory("a"))
	b := lookup.add(newMemory("b"))
	a.Supersession = model.SupersededBy(b.ID)
	b.Supersession = model.SupersededBy(a.ID)

	ok := lookup.add(newMemory("healthy"))

	engine := ranking.New(lookup, ranking.WithSeed(1))

	// The cyclic candidate is unusable; the healthy one still returns.
	results, err := engine.Rank(ctx, rows(1.0, a, ok), ranking.Options{
		Intent: model.IntentFactCheck,
		Limit:  5,
	})
	gt.NoError(t, err)
	gt.A(t, results).Length(1)
	gt.Equal(t, results[0].Memory.ID, ok.ID)
}

func TestDanglingChainDropped(t *testing.T) {
	ctx := context.Background()
	lookup := memoryLookup{}

	orphan := newMemory("points nowhere")
	orphan.Supersession = model.SupersededBy(model.NewMemoryID())
	lookup.add(orphan)

	engine := ranking.New(lookup, ranking.WithSeed(1))

	results, err := engine.Rank(ctx, rows(1.0, orphan), ranking.Options{
		Intent: model.IntentFactCheck,
		Limit:  5,
	})
	gt.NoError(t, err)
	gt.A(t, results).Length(0)
}

func TestDeletedMemoryVisibility(t *testing.T) {
	ctx := context.Background()
	lookup := memoryLookup{}

	dead := lookup.add(newMemory("soft-deleted note"))
	dead.Supersession = model.Tombstone()

	engine := ranking.New(lookup, ranking.WithSeed(1))

	// Default search excludes it.
	results, err := engine.Rank(ctx, rows(1.0, dead), ranking.Options{
		Intent: model.IntentFactCheck,
		Limit:  5,
	})
	gt.NoError(t, err)
	gt.A(t, results).Length(0)

	// IncludeDeleted surfaces the original with the deleted marker.
	results, err = engine.Rank(ctx, rows(1.0, dead), ranking.Options{
		Intent:         model.IntentFactCheck,
		Limit:          5,
		IncludeDeleted: true,
	})
	gt.NoError(t, err)
	gt.A(t, results).Length(1)
	gt.Equal(t, results[0].Memory.ID, dead.ID)
	gt.True(t, results[0].Deleted)
}

func TestChainToTombstoneKeepsOriginal(t *testing.T) {
	ctx := context.Background()
	lookup := memoryLookup{}

	dead := lookup.add(newMemory("replacement, later deleted"))
	dead.Supersession = model.Tombstone()
	original := lookup.add(newMemory("the retrieved draft"))
	original.Supersession = model.SupersededBy(dead.ID)

	engine := ranking.New(lookup, ranking.WithSeed(1))

	results, err := engine.Rank(ctx, rows(1.0, original), ranking.Options{
		Intent:         model.IntentFactCheck,
		Limit:          5,
		IncludeDeleted: true,
	})
	gt.NoError(t, err)
	gt.A(t, results).Length(1)
	gt.Equal(t, results[0].Memory.ID, original.ID)
	gt.True(t, results[0].Deleted)
}

func TestRecencyMonotonicity(t *testing.T) {
	ctx := context.Background()
	lookup := memoryLookup{}

	fresh := lookup.add(newMemory("identical content"))
	aged := lookup.add(newMemory("identical content"))
	old := time.Now().UTC().Add(-100 * time.Hour)
	aged.LastAccessed = &old

	for _, intent := range model.Intents() {
		profile := ranking.DefaultProfiles()[intent]
		if profile.Recency == 0 {
			continue
		}

		engine := ranking.New(lookup, ranking.WithProfiles(noJitter()))
		results, err := engine.Rank(ctx, rows(1.0, fresh, aged), ranking.Options{
			Intent: intent,
			Limit:  2,
		})
		gt.NoError(t, err)
		gt.A(t, results).Length(2)
		gt.Equal(t, results[0].Memory.ID, fresh.ID)
		gt.True(t, results[0].Score >= results[1].Score)
	}
}

func TestUtilityMonotonicityAndSaturation(t *testing.T) {
	ctx := context.Background()
	lookup := memoryLookup{}

	voted := lookup.add(newMemory("same content"))
	voted.Usefulness = 5
	plain := lookup.add(newMemory("same content"))

	engine := ranking.New(lookup, ranking.WithProfiles(noJitter()))
	results, err := engine.Rank(ctx, rows(1.0, voted, plain), ranking.Options{
		Intent: model.IntentFrequent,
		Limit:  2,
	})
	gt.NoError(t, err)
	gt.A(t, results).Length(2)
	gt.Equal(t, results[0].Memory.ID, voted.ID)

	// The transform saturates: piling on votes stops moving the score.
	kilo := lookup.add(newMemory("same content"))
	kilo.Usefulness = 1000
	mega := lookup.add(newMemory("same content"))
	mega.Usefulness = 1000000

	results, err = engine.Rank(ctx, rows(1.0, kilo, mega), ranking.Options{
		Intent: model.IntentFrequent,
		Limit:  2,
	})
	gt.NoError(t, err)
	gt.A(t, results).Length(2)
	gt.True(t, math.Abs(results[0].Score-results[1].Score) < 1e-9)
}

func TestContinuityPrefersFreshDuplicate(t *testing.T) {
	ctx := context.Background()
	lookup := memoryLookup{}

	// Store "A" twice; age one by 100 hours of inactivity. Under
	// continuity the decay margin exceeds the jitter band for any seed.
	fresh := lookup.add(newMemory("A"))
	aged := lookup.add(newMemory("A"))
	old := time.Now().UTC().Add(-100 * time.Hour)
	aged.LastAccessed = &old

	engine := ranking.New(lookup, ranking.WithSeed(42))
	results, err := engine.Rank(ctx, rows(1.0, fresh, aged), ranking.Options{
		Intent: model.IntentContinuity,
		Limit:  2,
	})
	gt.NoError(t, err)
	gt.A(t, results).Length(2)
	gt.Equal(t, results[0].Memory.ID, fresh.ID)
}

func TestFrequentPrefersVotedMemory(t *testing.T) {
	ctx := context.Background()
	lookup := memoryLookup{}

	voted := lookup.add(newMemory("how to run the integration tests"))
	voted.Usefulness = 10
	plain := lookup.add(newMemory("how to run the linter"))

	engine := ranking.New(lookup, ranking.WithSeed(42))

	// The unvoted memory matches slightly better; the utility axis
	// still dominates under frequent.
	input := []repository.ScoredMemory{
		{Memory: plain, Score: 1.0},
		{Memory: voted, Score: 0.8},
	}
	results, err := engine.Rank(ctx, input, ranking.Options{
		Intent: model.IntentFrequent,
		Limit:  2,
	})
	gt.NoError(t, err)
	gt.A(t, results).Length(2)
	gt.Equal(t, results[0].Memory.ID, voted.ID)
}

func TestFactCheckPrefersRelevance(t *testing.T) {
	ctx := context.Background()
	lookup := memoryLookup{}

	relevant := lookup.add(newMemory("the deploy pipeline uses blue-green rollout"))
	boosted := lookup.add(newMemory("lunch options near the office"))
	boosted.Usefulness = 3

	engine := ranking.New(lookup, ranking.WithSeed(42))

	input := []repository.ScoredMemory{
		{Memory: relevant, Score: 1.0},
		{Memory: boosted, Score: 0.5},
	}
	results, err := engine.Rank(ctx, input, ranking.Options{
		Intent: model.IntentFactCheck,
		Limit:  2,
	})
	gt.NoError(t, err)
	gt.A(t, results).Length(2)
	gt.Equal(t, results[0].Memory.ID, relevant.ID)
}

func TestExploreJitterDeterministicWithSeed(t *testing.T) {
	ctx := context.Background()
	lookup := memoryLookup{}

	mems := make([]*model.Memory, 8)
	for i := range mems {
		mems[i] = lookup.add(newMemory("note"))
	}

	run := func(seed int64) []model.MemoryID {
		engine := ranking.New(lookup, ranking.WithSeed(seed))
		results, err := engine.Rank(ctx, rows(1.0, mems...), ranking.Options{
			Intent: model.IntentExplore,
			Limit:  len(mems),
		})
		gt.NoError(t, err)
		ids := make([]model.MemoryID, len(results))
		for i, res := range results {
			ids[i] = res.Memory.ID
		}
		return ids
	}

	gt.Equal(t, run(7), run(7))
}

func TestRankExhaustedOverfetchReturnsFewer(t *testing.T) {
	ctx := context.Background()
	lookup := memoryLookup{}

	a := lookup.add(newMemory("one"))
	b := lookup.add(newMemory("two"))

	engine := ranking.New(lookup, ranking.WithSeed(1))
	results, err := engine.Rank(ctx, rows(1.0, a, b), ranking.Options{
		Intent: model.IntentFactCheck,
		Limit:  10,
	})
	gt.NoError(t, err)
	gt.A(t, results).Length(2)
}

func TestRankRejectsBadOptions(t *testing.T) {
	ctx := context.Background()
	engine := ranking.New(memoryLookup{})

	_, err := engine.Rank(ctx, nil, ranking.Options{Intent: "freshest", Limit: 5})
	gt.Error(t, err)

	_, err = engine.Rank(ctx, nil, ranking.Options{Intent: model.IntentExplore, Limit: 0})
	gt.Error(t, err)
}
