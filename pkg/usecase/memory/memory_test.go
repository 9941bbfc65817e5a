package memory_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/hiraku-dev/kioku/pkg/adapter"
	"github.com/hiraku-dev/kioku/pkg/model"
	"github.com/hiraku-dev/kioku/pkg/ranking"
	"github.com/hiraku-dev/kioku/pkg/repository"
	"github.com/hiraku-dev/kioku/pkg/usecase/memory"
)

func newTestUseCase(t *testing.T) (*memory.UseCase, repository.Repository) {
	t.Helper()

	repo, err := repository.NewSQLite(filepath.Join(t.TempDir(), "memories.db"))
	gt.NoError(t, err)
	t.Cleanup(func() {
		gt.NoError(t, repo.Close())
	})

	uc := memory.New(repo, adapter.NewLocal(),
		memory.WithEngine(ranking.New(repo, ranking.WithSeed(7))),
	)
	return uc, repo
}

func TestStoreAndGet(t *testing.T) {
	ctx := context.Background()
	uc, repo := newTestUseCase(t)

	stored, err := uc.Store(ctx, memory.StoreInput{
		Content:  "the deploy script reads credentials from vault",
		Metadata: map[string]any{"topic": "deploy"},
	})
	gt.NoError(t, err)
	gt.V(t, stored).NotNil()
	gt.A(t, stored.Embedding).Longer(0)

	raw, err := repo.FindByID(ctx, stored.ID)
	gt.NoError(t, err)
	gt.NotNil(t, raw)
	gt.Equal(t, raw.AccessCount, int64(0))

	got, err := uc.Get(ctx, stored.ID)
	gt.NoError(t, err)
	gt.NotNil(t, got)
	gt.Equal(t, got.Content, stored.Content)
	gt.Equal(t, got.AccessCount, int64(1))
	gt.NotNil(t, got.LastAccessed)
}

func TestGetAbsentReturnsNil(t *testing.T) {
	ctx := context.Background()
	uc, _ := newTestUseCase(t)

	got, err := uc.Get(ctx, model.NewMemoryID())
	gt.NoError(t, err)
	gt.Nil(t, got)
}

func TestSearchIsReadOnly(t *testing.T) {
	ctx := context.Background()
	uc, repo := newTestUseCase(t)

	stored, err := uc.Store(ctx, memory.StoreInput{
		Content: "the parser rejects unterminated string literals",
	})
	gt.NoError(t, err)

	results, err := uc.Search(ctx, "parser rejects unterminated string literals", ranking.Options{
		Intent: model.IntentFactCheck,
		Limit:  5,
	})
	gt.NoError(t, err)
	gt.A(t, results).Longer(0)

	// Browsing must not feed back into ranking signals.
	raw, err := repo.FindByID(ctx, stored.ID)
	gt.NoError(t, err)
	gt.Equal(t, raw.AccessCount, int64(0))
	gt.Equal(t, raw.Usefulness, int64(0))
}

func TestSearchFindsRelevantMemory(t *testing.T) {
	ctx := context.Background()
	uc, _ := newTestUseCase(t)

	target, err := uc.Store(ctx, memory.StoreInput{
		Content: "websocket reconnect uses exponential backoff",
	})
	gt.NoError(t, err)
	_, err = uc.Store(ctx, memory.StoreInput{
		Content: "database migrations run at startup",
	})
	gt.NoError(t, err)
	_, err = uc.Store(ctx, memory.StoreInput{
		Content: "the linter config lives in the repo root",
	})
	gt.NoError(t, err)

	results, err := uc.Search(ctx, "websocket reconnect uses exponential backoff", ranking.Options{
		Intent: model.IntentFactCheck,
		Limit:  3,
	})
	gt.NoError(t, err)
	gt.A(t, results).Longer(0)
	gt.Equal(t, results[0].Memory.ID, target.ID)
}

func TestSearchRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	uc, _ := newTestUseCase(t)

	_, err := uc.Search(ctx, "", ranking.Options{Intent: model.IntentExplore, Limit: 5})
	gt.Error(t, err)

	_, err = uc.Search(ctx, "anything", ranking.Options{Intent: "nostalgia", Limit: 5})
	gt.Error(t, err)

	_, err = uc.Search(ctx, "anything", ranking.Options{Intent: model.IntentExplore})
	gt.Error(t, err)
}

func TestStoreSupersedesAndSearchDedupes(t *testing.T) {
	ctx := context.Background()
	uc, repo := newTestUseCase(t)

	old, err := uc.Store(ctx, memory.StoreInput{
		Content: "cache TTL is five minutes",
	})
	gt.NoError(t, err)

	replacement, err := uc.Store(ctx, memory.StoreInput{
		Content:    "cache TTL is ten minutes",
		Supersedes: []model.MemoryID{old.ID},
	})
	gt.NoError(t, err)

	raw, err := repo.FindByID(ctx, old.ID)
	gt.NoError(t, err)
	successor, ok := raw.Supersession.Successor()
	gt.True(t, ok)
	gt.Equal(t, successor, replacement.ID)

	results, err := uc.Search(ctx, "cache TTL minutes", ranking.Options{
		Intent: model.IntentFactCheck,
		Limit:  10,
	})
	gt.NoError(t, err)
	gt.A(t, results).Longer(0)

	seen := 0
	for _, r := range results {
		gt.NotEqual(t, r.Memory.ID, old.ID)
		if r.Memory.ID == replacement.ID {
			seen++
		}
	}
	gt.Equal(t, seen, 1)
}

func TestUpdateReEmbedsContent(t *testing.T) {
	ctx := context.Background()
	uc, _ := newTestUseCase(t)

	stored, err := uc.Store(ctx, memory.StoreInput{
		Content: "retry budget is three attempts",
	})
	gt.NoError(t, err)

	newContent := "retry budget is five attempts"
	updated, err := uc.Update(ctx, stored.ID, memory.UpdateInput{
		Content: &newContent,
	})
	gt.NoError(t, err)
	gt.NotNil(t, updated)
	gt.Equal(t, updated.Content, newContent)
	gt.NotEqual(t, updated.Embedding, stored.Embedding)
}

func TestUpdateReplacesMetadataWholesale(t *testing.T) {
	ctx := context.Background()
	uc, _ := newTestUseCase(t)

	stored, err := uc.Store(ctx, memory.StoreInput{
		Content:  "the staging cluster runs in us-west1",
		Metadata: map[string]any{"env": "staging", "region": "us-west1"},
	})
	gt.NoError(t, err)

	updated, err := uc.Update(ctx, stored.ID, memory.UpdateInput{
		Metadata: map[string]any{"env": "prod"},
	})
	gt.NoError(t, err)
	gt.NotNil(t, updated)
	gt.Map(t, updated.Metadata).HasKey("env")
	gt.Equal(t, len(updated.Metadata), 1)
	// Metadata-only update keeps the embedding.
	gt.Equal(t, updated.Embedding, stored.Embedding)
}

func TestUpdateEdgeCases(t *testing.T) {
	ctx := context.Background()
	uc, _ := newTestUseCase(t)

	_, err := uc.Update(ctx, model.NewMemoryID(), memory.UpdateInput{})
	gt.Error(t, err)

	content := "orphan"
	updated, err := uc.Update(ctx, model.NewMemoryID(), memory.UpdateInput{Content: &content})
	gt.NoError(t, err)
	gt.Nil(t, updated)
}

func TestDeleteRoundTrip(t *testing.T) {
	ctx := context.Background()
	uc, _ := newTestUseCase(t)

	stored, err := uc.Store(ctx, memory.StoreInput{
		Content: "feature flag cleanup is scheduled for next sprint",
	})
	gt.NoError(t, err)

	deleted, err := uc.Delete(ctx, stored.ID)
	gt.NoError(t, err)
	gt.True(t, deleted)

	again, err := uc.Delete(ctx, stored.ID)
	gt.NoError(t, err)
	gt.False(t, again)

	missing, err := uc.Delete(ctx, model.NewMemoryID())
	gt.NoError(t, err)
	gt.False(t, missing)

	results, err := uc.Search(ctx, "feature flag cleanup sprint", ranking.Options{
		Intent: model.IntentFactCheck,
		Limit:  5,
	})
	gt.NoError(t, err)
	for _, r := range results {
		gt.NotEqual(t, r.Memory.ID, stored.ID)
	}

	withDeleted, err := uc.Search(ctx, "feature flag cleanup sprint", ranking.Options{
		Intent:         model.IntentFactCheck,
		Limit:          5,
		IncludeDeleted: true,
	})
	gt.NoError(t, err)
	found := false
	for _, r := range withDeleted {
		if r.Memory.ID == stored.ID {
			found = true
			gt.True(t, r.Deleted)
		}
	}
	gt.True(t, found)
}

func TestVote(t *testing.T) {
	ctx := context.Background()
	uc, _ := newTestUseCase(t)

	stored, err := uc.Store(ctx, memory.StoreInput{
		Content: "use the shared lint target before pushing",
	})
	gt.NoError(t, err)

	voted, err := uc.Vote(ctx, stored.ID, 1)
	gt.NoError(t, err)
	gt.NotNil(t, voted)
	gt.Equal(t, voted.Usefulness, int64(1))
	gt.Equal(t, voted.AccessCount, int64(1))

	voted, err = uc.Vote(ctx, stored.ID, -1)
	gt.NoError(t, err)
	gt.Equal(t, voted.Usefulness, int64(0))
	gt.Equal(t, voted.AccessCount, int64(2))

	_, err = uc.Vote(ctx, stored.ID, 2)
	gt.Error(t, err)

	absent, err := uc.Vote(ctx, model.NewMemoryID(), 1)
	gt.NoError(t, err)
	gt.Nil(t, absent)
}

func TestTrackAccess(t *testing.T) {
	ctx := context.Background()
	uc, repo := newTestUseCase(t)

	first, err := uc.Store(ctx, memory.StoreInput{Content: "first note"})
	gt.NoError(t, err)
	second, err := uc.Store(ctx, memory.StoreInput{Content: "second note"})
	gt.NoError(t, err)

	gt.NoError(t, uc.TrackAccess(ctx, []model.MemoryID{first.ID, second.ID, model.NewMemoryID()}))

	for _, id := range []model.MemoryID{first.ID, second.ID} {
		raw, err := repo.FindByID(ctx, id)
		gt.NoError(t, err)
		gt.Equal(t, raw.AccessCount, int64(1))
	}
}

func TestHandoffRoundTrip(t *testing.T) {
	ctx := context.Background()
	uc, repo := newTestUseCase(t)

	none, err := uc.GetLatestHandoff(ctx)
	gt.NoError(t, err)
	gt.Nil(t, none)

	referenced, err := uc.Store(ctx, memory.StoreInput{
		Content: "auth refactor branch is feature/auth-v2",
	})
	gt.NoError(t, err)

	handoff, err := uc.StoreHandoff(ctx, memory.HandoffInput{
		Summary:   "migrated the auth middleware to the new session model",
		NextSteps: []string{"wire the refresh endpoint", "delete the legacy session table"},
		Blockers:  []string{"staging credentials expired"},
		MemoryIDs: []model.MemoryID{referenced.ID},
	})
	gt.NoError(t, err)
	gt.NotNil(t, handoff)
	gt.Equal(t, handoff.ID, model.HandoffID)
	gt.S(t, handoff.Content).Contains("## Summary")
	gt.S(t, handoff.Content).Contains("## Next Steps")
	gt.S(t, handoff.Content).Contains("## Blockers")
	gt.S(t, handoff.Content).Contains("wire the refresh endpoint")
	gt.Map(t, handoff.Metadata).HasKey("memory_ids")

	// Being referenced in a handoff counts as a use.
	raw, err := repo.FindByID(ctx, referenced.ID)
	gt.NoError(t, err)
	gt.Equal(t, raw.AccessCount, int64(1))

	latest, err := uc.GetLatestHandoff(ctx)
	gt.NoError(t, err)
	gt.NotNil(t, latest)
	gt.S(t, latest.Content).Contains("migrated the auth middleware")

	// The singleton slot is overwritten, not appended.
	_, err = uc.StoreHandoff(ctx, memory.HandoffInput{
		Summary: "second session wrap-up",
	})
	gt.NoError(t, err)

	latest, err = uc.GetLatestHandoff(ctx)
	gt.NoError(t, err)
	gt.S(t, latest.Content).Contains("second session wrap-up")
}

func TestStoreHandoffRequiresSummary(t *testing.T) {
	ctx := context.Background()
	uc, _ := newTestUseCase(t)

	_, err := uc.StoreHandoff(ctx, memory.HandoffInput{})
	gt.Error(t, err)
}
