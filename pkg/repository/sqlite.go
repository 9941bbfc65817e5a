package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/singleflight"

	"github.com/hiraku-dev/kioku/pkg/model"
	"github.com/hiraku-dev/kioku/pkg/utils/logging"

	_ "modernc.org/sqlite"
)

// rrfConstant is the k of reciprocal rank fusion: each row scores
// 1/(k+rank) per rank list it appears in. 60 is the standard value.
const rrfConstant = 60

// defaultIndexWait bounds how long the first hybrid search waits for
// the full-text index to become queryable.
const defaultIndexWait = 30 * time.Second

// SQLite implements Repository on a local SQLite database. Full text
// uses an FTS5 external-content table; vectors are JSON float32 arrays
// compared with in-process cosine similarity, which keeps the store
// dependency-free of native vector extensions.
type SQLite struct {
	db        *sql.DB
	indexWait time.Duration

	// Schema migration and FTS index creation are idempotent but
	// expensive one-time setups racing against concurrent first use.
	// Each runs under a single-flight group with a done flag: late
	// callers join an in-flight setup, a failed attempt is not cached.
	sf          singleflight.Group
	schemaReady atomic.Bool
	ftsReady    atomic.Bool
}

type SQLiteOption func(*SQLite)

// WithIndexWait overrides the full-text index readiness timeout.
func WithIndexWait(d time.Duration) SQLiteOption {
	return func(r *SQLite) {
		r.indexWait = d
	}
}

// NewSQLite opens or creates the memory database at path.
func NewSQLite(path string, opts ...SQLiteOption) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, goerr.Wrap(err, "failed to create database directory", goerr.V("dir", dir))
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open database", goerr.V("path", path))
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, goerr.Wrap(err, "failed to set pragma", goerr.V("pragma", p))
		}
	}

	r := &SQLite{
		db:        db,
		indexWait: defaultIndexWait,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

func (r *SQLite) Close() error {
	return r.db.Close()
}

// ensureSchema lazily creates the memories table and migrates older
// databases. At most one setup runs per process; concurrent callers
// share the in-flight attempt.
func (r *SQLite) ensureSchema(ctx context.Context) error {
	if r.schemaReady.Load() {
		return nil
	}

	_, err, _ := r.sf.Do("schema", func() (any, error) {
		if err := r.bootstrapSchema(ctx); err != nil {
			return nil, err
		}
		r.schemaReady.Store(true)
		return nil, nil
	})
	return err
}

func (r *SQLite) bootstrapSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS memories (
			id            TEXT PRIMARY KEY,
			content       TEXT NOT NULL,
			embedding     TEXT NOT NULL,
			metadata      TEXT NOT NULL DEFAULT '{}',
			created_at    INTEGER NOT NULL,
			updated_at    INTEGER NOT NULL,
			superseded_by TEXT,
			usefulness    INTEGER NOT NULL DEFAULT 0,
			access_count  INTEGER NOT NULL DEFAULT 0,
			last_accessed INTEGER
		);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return goerr.Wrap(err, "failed to create memories table")
	}

	return r.migrateColumns(ctx)
}

// migrateColumns adds the vote and access-tracking columns to
// databases created before they existed.
func (r *SQLite) migrateColumns(ctx context.Context) error {
	rows, err := r.db.QueryContext(ctx, "PRAGMA table_info(memories)")
	if err != nil {
		return goerr.Wrap(err, "failed to inspect table columns")
	}
	defer rows.Close()

	existing := map[string]bool{}
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return goerr.Wrap(err, "failed to scan table info")
		}
		existing[name] = true
	}
	if err := rows.Err(); err != nil {
		return goerr.Wrap(err, "failed to read table info")
	}

	additions := []struct{ name, ddl string }{
		{"usefulness", "ALTER TABLE memories ADD COLUMN usefulness INTEGER NOT NULL DEFAULT 0"},
		{"access_count", "ALTER TABLE memories ADD COLUMN access_count INTEGER NOT NULL DEFAULT 0"},
		{"last_accessed", "ALTER TABLE memories ADD COLUMN last_accessed INTEGER"},
	}

	for _, add := range additions {
		if existing[add.name] {
			continue
		}
		logging.From(ctx).Info("migrating memories table", "column", add.name)
		if _, err := r.db.ExecContext(ctx, add.ddl); err != nil {
			return goerr.Wrap(err, "failed to add column", goerr.V("column", add.name))
		}
	}

	return nil
}

// ensureFTS lazily creates the full-text index over content. Guarded
// the same way as the schema setup, and independent of it.
func (r *SQLite) ensureFTS(ctx context.Context) error {
	if r.ftsReady.Load() {
		return nil
	}

	_, err, _ := r.sf.Do("fts", func() (any, error) {
		if err := r.bootstrapFTS(ctx); err != nil {
			return nil, err
		}
		r.ftsReady.Store(true)
		return nil, nil
	})
	return err
}

func (r *SQLite) bootstrapFTS(ctx context.Context) error {
	var name string
	err := r.db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'memories_fts'").Scan(&name)
	switch {
	case err == nil:
		return r.waitForIndex(ctx)
	case err != sql.ErrNoRows:
		return goerr.Wrap(err, "failed to check full-text index")
	}

	logging.From(ctx).Info("creating full-text index")

	ftsSchema := `
		CREATE VIRTUAL TABLE memories_fts USING fts5(
			content,
			content='memories',
			content_rowid='rowid',
			tokenize='porter unicode61'
		);

		CREATE TRIGGER memories_fts_ai AFTER INSERT ON memories BEGIN
			INSERT INTO memories_fts(rowid, content) VALUES (new.rowid, new.content);
		END;

		CREATE TRIGGER memories_fts_ad AFTER DELETE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
		END;

		CREATE TRIGGER memories_fts_au AFTER UPDATE OF content ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
			INSERT INTO memories_fts(rowid, content) VALUES (new.rowid, new.content);
		END;
	`
	if _, err := r.db.ExecContext(ctx, ftsSchema); err != nil {
		return goerr.Wrap(err, "failed to create full-text index")
	}

	// Backfill rows inserted before the index existed.
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO memories_fts(rowid, content)
		SELECT rowid, content FROM memories
	`); err != nil {
		return goerr.Wrap(err, "failed to backfill full-text index")
	}

	return r.waitForIndex(ctx)
}

// waitForIndex probes the index until it answers a query, bounded by
// the configured timeout.
func (r *SQLite) waitForIndex(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, r.indexWait)
	defer cancel()

	for {
		var n int
		err := r.db.QueryRowContext(waitCtx,
			"SELECT count(*) FROM memories_fts WHERE memories_fts MATCH 'readiness'").Scan(&n)
		if err == nil {
			return nil
		}
		if !isRetryableIndexErr(err) {
			return goerr.Wrap(err, "full-text index is unusable")
		}

		logging.From(ctx).Debug("full-text index not ready, retrying", "error", err)

		select {
		case <-waitCtx.Done():
			return goerr.Wrap(err, "full-text index not ready within timeout",
				goerr.V("timeout", r.indexWait))
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// isRetryableIndexErr reports whether an index probe failure can
// resolve on its own. Only contention clears with time; a structural
// error like a non-FTS object occupying the index name never will, so
// waiting the full timeout on it just delays the caller.
func isRetryableIndexErr(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "busy") ||
		strings.Contains(msg, "locked") ||
		strings.Contains(msg, "interrupted")
}

func (r *SQLite) Insert(ctx context.Context, mem *model.Memory) error {
	if err := r.ensureSchema(ctx); err != nil {
		return err
	}

	embJSON, metaJSON, err := encodeFields(mem)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO memories (
			id, content, embedding, metadata, created_at, updated_at,
			superseded_by, usefulness, access_count, last_accessed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(mem.ID), mem.Content, embJSON, metaJSON,
		mem.CreatedAt.UnixMilli(), mem.UpdatedAt.UnixMilli(),
		mem.Supersession.ColumnValue(), mem.Usefulness, mem.AccessCount,
		timeColumn(mem.LastAccessed),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to insert memory", goerr.V("id", mem.ID))
	}
	return nil
}

func (r *SQLite) Upsert(ctx context.Context, mem *model.Memory) error {
	if err := r.ensureSchema(ctx); err != nil {
		return err
	}

	embJSON, metaJSON, err := encodeFields(mem)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO memories (
			id, content, embedding, metadata, created_at, updated_at,
			superseded_by, usefulness, access_count, last_accessed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			embedding = excluded.embedding,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at,
			superseded_by = excluded.superseded_by
	`,
		string(mem.ID), mem.Content, embJSON, metaJSON,
		mem.CreatedAt.UnixMilli(), mem.UpdatedAt.UnixMilli(),
		mem.Supersession.ColumnValue(), mem.Usefulness, mem.AccessCount,
		timeColumn(mem.LastAccessed),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to upsert memory", goerr.V("id", mem.ID))
	}
	return nil
}

func (r *SQLite) FindByID(ctx context.Context, id model.MemoryID) (*model.Memory, error) {
	if err := r.ensureSchema(ctx); err != nil {
		return nil, err
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT id, content, embedding, metadata, created_at, updated_at,
		       superseded_by, usefulness, access_count, last_accessed
		FROM memories WHERE id = ?
	`, string(id))

	mem, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to find memory", goerr.V("id", id))
	}
	return mem, nil
}

func (r *SQLite) Update(ctx context.Context, mem *model.Memory) error {
	if err := r.ensureSchema(ctx); err != nil {
		return err
	}

	embJSON, metaJSON, err := encodeFields(mem)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE memories SET
			content = ?, embedding = ?, metadata = ?, updated_at = ?,
			superseded_by = ?, usefulness = ?, access_count = ?, last_accessed = ?
		WHERE id = ?
	`,
		mem.Content, embJSON, metaJSON, mem.UpdatedAt.UnixMilli(),
		mem.Supersession.ColumnValue(), mem.Usefulness, mem.AccessCount,
		timeColumn(mem.LastAccessed), string(mem.ID),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to update memory", goerr.V("id", mem.ID))
	}
	return nil
}

func (r *SQLite) MarkDeleted(ctx context.Context, id model.MemoryID) (bool, error) {
	if err := r.ensureSchema(ctx); err != nil {
		return false, err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE memories SET superseded_by = ?, updated_at = ? WHERE id = ?
	`, model.Tombstone().ColumnValue(), time.Now().UnixMilli(), string(id))
	if err != nil {
		return false, goerr.Wrap(err, "failed to mark memory deleted", goerr.V("id", id))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, goerr.Wrap(err, "failed to read affected rows")
	}
	return n > 0, nil
}

func (r *SQLite) Supersede(ctx context.Context, id, successor model.MemoryID) (bool, error) {
	if err := r.ensureSchema(ctx); err != nil {
		return false, err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE memories SET superseded_by = ?, updated_at = ? WHERE id = ?
	`, model.SupersededBy(successor).ColumnValue(), time.Now().UnixMilli(), string(id))
	if err != nil {
		return false, goerr.Wrap(err, "failed to supersede memory",
			goerr.V("id", id), goerr.V("successor", successor))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, goerr.Wrap(err, "failed to read affected rows")
	}
	return n > 0, nil
}

func (r *SQLite) BumpAccess(ctx context.Context, ids []model.MemoryID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.ensureSchema(ctx); err != nil {
		return err
	}

	placeholders := strings.Repeat("?, ", len(ids)-1) + "?"
	args := make([]any, 0, len(ids)+1)
	args = append(args, at.UnixMilli())
	for _, id := range ids {
		args = append(args, string(id))
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE memories SET access_count = access_count + 1, last_accessed = ?
		WHERE id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return goerr.Wrap(err, "failed to bump access stats", goerr.V("ids", ids))
	}
	return nil
}

func (r *SQLite) AddUsefulness(ctx context.Context, id model.MemoryID, delta int64) error {
	if err := r.ensureSchema(ctx); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE memories SET usefulness = usefulness + ?, updated_at = ? WHERE id = ?
	`, delta, time.Now().UnixMilli(), string(id))
	if err != nil {
		return goerr.Wrap(err, "failed to adjust usefulness", goerr.V("id", id))
	}
	return nil
}

// FindHybrid combines nearest-neighbor and full-text rank lists with
// reciprocal rank fusion: score = sum over lists of 1/(k + rank), 0
// when absent. A row strong on either axis surfaces without having to
// calibrate the two scales against each other.
func (r *SQLite) FindHybrid(ctx context.Context, embedding []float32, query string, limit int) ([]ScoredMemory, error) {
	if err := r.ensureSchema(ctx); err != nil {
		return nil, err
	}
	if err := r.ensureFTS(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	byID, vectorRank, err := r.vectorRank(ctx, embedding, limit)
	if err != nil {
		return nil, err
	}

	textRank, err := r.textRank(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	fused := map[model.MemoryID]float64{}
	for rank, id := range vectorRank {
		fused[id] += 1.0 / float64(rrfConstant+rank+1)
	}
	for rank, id := range textRank {
		fused[id] += 1.0 / float64(rrfConstant+rank+1)
	}

	results := make([]ScoredMemory, 0, len(fused))
	for id, score := range fused {
		mem, ok := byID[id]
		if !ok {
			// The text index saw a row inserted after the vector
			// scan's snapshot. It will surface on the next search.
			continue
		}
		results = append(results, ScoredMemory{Memory: mem, Score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Memory.ID < results[j].Memory.ID
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// vectorRank loads all rows and ranks them by cosine similarity to the
// query embedding. Returns the full row map alongside the top IDs.
func (r *SQLite) vectorRank(ctx context.Context, embedding []float32, limit int) (map[model.MemoryID]*model.Memory, []model.MemoryID, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, content, embedding, metadata, created_at, updated_at,
		       superseded_by, usefulness, access_count, last_accessed
		FROM memories
	`)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to scan memories for vector search")
	}
	defer rows.Close()

	type scored struct {
		id  model.MemoryID
		sim float64
	}

	byID := map[model.MemoryID]*model.Memory{}
	var candidates []scored
	for rows.Next() {
		mem, err := scanMemory(rows)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to scan memory row")
		}
		byID[mem.ID] = mem
		if len(mem.Embedding) != len(embedding) {
			// Dimension mismatch means the row predates a model change.
			continue
		}
		candidates = append(candidates, scored{id: mem.ID, sim: cosineSimilarity(embedding, mem.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, nil, goerr.Wrap(err, "failed to iterate memory rows")
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].sim != candidates[j].sim {
			return candidates[i].sim > candidates[j].sim
		}
		return candidates[i].id < candidates[j].id
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	ranked := make([]model.MemoryID, len(candidates))
	for i, c := range candidates {
		ranked[i] = c.id
	}
	return byID, ranked, nil
}

// textRank runs the full-text query and returns matching IDs in BM25
// rank order.
func (r *SQLite) textRank(ctx context.Context, query string, limit int) ([]model.MemoryID, error) {
	match := buildMatchQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT m.id
		FROM memories_fts
		JOIN memories m ON m.rowid = memories_fts.rowid
		WHERE memories_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to run full-text query", goerr.V("match", match))
	}
	defer rows.Close()

	var ranked []model.MemoryID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, goerr.Wrap(err, "failed to scan full-text row")
		}
		ranked = append(ranked, model.MemoryID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate full-text rows")
	}
	return ranked, nil
}

// buildMatchQuery turns free text into an FTS5 OR query of quoted
// terms. Stripping operator characters prevents FTS5 syntax injection.
func buildMatchQuery(query string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '"', '(', ')', '*', '^', ':', '{', '}', '-':
			return ' '
		default:
			return r
		}
	}, query)

	words := strings.Fields(cleaned)
	if len(words) == 0 {
		return ""
	}

	terms := make([]string, 0, len(words))
	for _, w := range words {
		terms = append(terms, `"`+w+`"`)
	}
	return strings.Join(terms, " OR ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*model.Memory, error) {
	var (
		id, content, embJSON, metaJSON string
		createdAt, updatedAt           int64
		supersededBy                   sql.NullString
		usefulness, accessCount        int64
		lastAccessed                   sql.NullInt64
	)

	if err := row.Scan(&id, &content, &embJSON, &metaJSON, &createdAt, &updatedAt,
		&supersededBy, &usefulness, &accessCount, &lastAccessed); err != nil {
		return nil, err
	}

	mem := &model.Memory{
		ID:          model.MemoryID(id),
		Content:     content,
		CreatedAt:   time.UnixMilli(createdAt).UTC(),
		UpdatedAt:   time.UnixMilli(updatedAt).UTC(),
		Usefulness:  usefulness,
		AccessCount: accessCount,
	}

	if err := json.Unmarshal([]byte(embJSON), &mem.Embedding); err != nil {
		return nil, goerr.Wrap(err, "failed to decode embedding", goerr.V("id", id))
	}
	if err := json.Unmarshal([]byte(metaJSON), &mem.Metadata); err != nil {
		return nil, goerr.Wrap(err, "failed to decode metadata", goerr.V("id", id))
	}

	if supersededBy.Valid {
		mem.Supersession = model.SupersessionFromColumn(&supersededBy.String)
	} else {
		mem.Supersession = model.Live()
	}

	if lastAccessed.Valid {
		t := time.UnixMilli(lastAccessed.Int64).UTC()
		mem.LastAccessed = &t
	}

	return mem, nil
}

func encodeFields(mem *model.Memory) (embJSON, metaJSON string, err error) {
	emb, err := json.Marshal(mem.Embedding)
	if err != nil {
		return "", "", goerr.Wrap(err, "failed to encode embedding", goerr.V("id", mem.ID))
	}

	meta := mem.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return "", "", goerr.Wrap(err, "failed to encode metadata", goerr.V("id", mem.ID))
	}

	return string(emb), string(metaBytes), nil
}

func timeColumn(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
