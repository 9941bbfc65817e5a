package ranking

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/hiraku-dev/kioku/pkg/model"
	"github.com/hiraku-dev/kioku/pkg/repository"
	"github.com/hiraku-dev/kioku/pkg/utils/logging"
)

// maxChainHops bounds supersession chain walks. A well-formed chain is
// short; anything longer is treated as corrupt.
const maxChainHops = 32

// Lookup resolves a memory by ID. The repository satisfies it.
type Lookup interface {
	FindByID(ctx context.Context, id model.MemoryID) (*model.Memory, error)
}

// Engine turns raw hybrid-search rows into a final ranked list of live
// memories. It resolves supersession chains and applies the
// intent-weighted scoring formula. Ranking never writes: access stats
// move only on explicit get, vote or track operations.
type Engine struct {
	lookup    Lookup
	profiles  map[model.Intent]Profile
	decayRate float64
	now       func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

type Option func(*Engine)

// WithProfiles replaces the reference weight table.
func WithProfiles(profiles map[model.Intent]Profile) Option {
	return func(e *Engine) {
		e.profiles = profiles
	}
}

// WithDecayRate overrides the per-hour recency decay.
func WithDecayRate(rate float64) Option {
	return func(e *Engine) {
		e.decayRate = rate
	}
}

// WithSeed makes jitter deterministic. Without it the engine seeds
// from the clock.
func WithSeed(seed int64) Option {
	return func(e *Engine) {
		e.rng = rand.New(rand.NewSource(seed))
	}
}

// WithClock injects the time source used for recency decay.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func New(lookup Lookup, opts ...Option) *Engine {
	e := &Engine{
		lookup:    lookup,
		profiles:  DefaultProfiles(),
		decayRate: DefaultDecayRate,
		now:       time.Now,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Options selects how a ranked search behaves.
type Options struct {
	Intent         model.Intent
	Limit          int
	IncludeDeleted bool
}

// Result is one ranked entry. Deleted is set only when IncludeDeleted
// surfaced a tombstoned memory.
type Result struct {
	Memory  *model.Memory
	Score   float64
	Deleted bool
}

// Rank scores the raw rows under the intent's profile, resolves
// supersession chains best-first, deduplicates by resolved memory and
// returns up to Limit live results. Rows whose chain is corrupt
// (cycle or dangling pointer) are dropped rather than failing the
// whole search.
func (e *Engine) Rank(ctx context.Context, rows []repository.ScoredMemory, opts Options) ([]Result, error) {
	if err := opts.Intent.Validate(); err != nil {
		return nil, err
	}
	if opts.Limit <= 0 {
		return nil, goerr.New("limit must be positive", goerr.V("limit", opts.Limit))
	}

	profile, ok := e.profiles[opts.Intent]
	if !ok {
		return nil, goerr.New("no profile for intent", goerr.V("intent", opts.Intent))
	}

	scored := e.score(rows, profile)

	results := make([]Result, 0, opts.Limit)
	seen := map[model.MemoryID]bool{}
	for _, candidate := range scored {
		if len(results) >= opts.Limit {
			break
		}

		resolved, err := e.resolve(ctx, candidate.row.Memory)
		if err != nil {
			return nil, err
		}
		if resolved == nil {
			// Corrupt chain. One bad row must not sink the query.
			logging.From(ctx).Warn("dropping memory with corrupt supersession chain",
				"id", candidate.row.Memory.ID)
			continue
		}

		if seen[resolved.terminal] {
			continue
		}

		if resolved.deleted {
			if !opts.IncludeDeleted {
				continue
			}
			seen[resolved.terminal] = true
			// Surface the originally retrieved memory, not its
			// replacement, so the caller sees what was deleted.
			results = append(results, Result{
				Memory:  candidate.row.Memory.Clone(),
				Score:   candidate.score,
				Deleted: true,
			})
			continue
		}

		seen[resolved.terminal] = true
		results = append(results, Result{
			Memory: resolved.memory.Clone(),
			Score:  candidate.score,
		})
	}

	return results, nil
}

type scoredRow struct {
	row   repository.ScoredMemory
	score float64
}

// score applies the intent profile to each row:
//
//	relevance*fused + recency*decay^hours + utility*tanh(votes) + jitter
//
// The fused relevance is normalized against the best row so the
// relevance term is comparable with the bounded recency and utility
// terms.
func (e *Engine) score(rows []repository.ScoredMemory, profile Profile) []scoredRow {
	var maxFused float64
	for _, row := range rows {
		if row.Score > maxFused {
			maxFused = row.Score
		}
	}

	now := e.now()
	scored := make([]scoredRow, 0, len(rows))
	for _, row := range rows {
		relevance := 0.0
		if maxFused > 0 {
			relevance = row.Score / maxFused
		}

		score := profile.Relevance*relevance +
			profile.Recency*e.recencyFactor(row.Memory, now) +
			profile.Utility*math.Tanh(float64(row.Memory.Usefulness)) +
			e.jitter(profile.Jitter)

		scored = append(scored, scoredRow{row: row, score: score})
	}

	// Best first; ties break on ID so zero-jitter intents stay stable.
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].row.Memory.ID < scored[j].row.Memory.ID
	})
	return scored
}

// recencyFactor decays exponentially with hours since the memory was
// last accessed, falling back to creation time for never-read rows.
func (e *Engine) recencyFactor(mem *model.Memory, now time.Time) float64 {
	ref := mem.CreatedAt
	if mem.LastAccessed != nil {
		ref = *mem.LastAccessed
	}

	hours := now.Sub(ref).Hours()
	if hours < 0 {
		hours = 0
	}
	return math.Pow(e.decayRate, hours)
}

// jitter draws a bounded perturbation in [-fraction, +fraction].
func (e *Engine) jitter(fraction float64) float64 {
	if fraction == 0 {
		return 0
	}
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return (e.rng.Float64()*2 - 1) * fraction
}

type resolution struct {
	// memory is the live terminal of the chain; nil when deleted.
	memory *model.Memory
	// terminal identifies the chain end for deduplication.
	terminal model.MemoryID
	deleted  bool
}

// resolve walks the supersession chain from mem to its terminal. A
// cycle or a dangling pointer yields nil: the candidate is unusable.
func (e *Engine) resolve(ctx context.Context, mem *model.Memory) (*resolution, error) {
	visited := map[model.MemoryID]bool{}
	current := mem

	for hops := 0; hops < maxChainHops; hops++ {
		if visited[current.ID] {
			return nil, nil
		}
		visited[current.ID] = true

		if current.Supersession.IsLive() {
			return &resolution{memory: current, terminal: current.ID}, nil
		}
		if current.Supersession.IsDeleted() {
			return &resolution{terminal: current.ID, deleted: true}, nil
		}

		successor, _ := current.Supersession.Successor()
		next, err := e.lookup.FindByID(ctx, successor)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to follow supersession chain",
				goerr.V("from", current.ID), goerr.V("to", successor))
		}
		if next == nil {
			return nil, nil
		}
		current = next
	}

	return nil, nil
}
