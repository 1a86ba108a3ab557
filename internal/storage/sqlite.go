// Package storage persists the hashtag popularity table and generated
// content items in a local sqlite database.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "trendpipe/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type Store struct {
	db  *sql.DB
	log logx.Logger
}

func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &Store{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// UpsertHashtags writes records keyed by (platform, tag). Later writes
// overwrite engagement/popularity/post_count/updated_at and the category,
// so a tag's category always reflects its most recent classification run.
func (s *Store) UpsertHashtags(ctx context.Context, recs []HashtagRecord) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO hashtags(platform, tag, category, engagement, popularity, post_count, updated_at)
		 VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(platform, tag) DO UPDATE SET
		   category=excluded.category,
		   engagement=excluded.engagement,
		   popularity=excluded.popularity,
		   post_count=excluded.post_count,
		   updated_at=excluded.updated_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range recs {
		if strings.TrimSpace(r.Tag) == "" {
			continue
		}
		at := r.UpdatedAt
		if at.IsZero() {
			at = time.Now()
		}
		cat := r.Category
		if cat == "" {
			cat = "general"
		}
		if _, err := stmt.ExecContext(ctx,
			string(r.Platform), r.Tag, cat, r.Engagement, r.Popularity, r.PostCount,
			at.UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// TopHashtags returns up to limit records for (platform, category), ordered
// by descending popularity.
func (s *Store) TopHashtags(ctx context.Context, platform Platform, category string, limit int) ([]HashtagRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT platform, tag, category, engagement, popularity, post_count, updated_at
		 FROM hashtags
		 WHERE platform = ? AND category = ?
		 ORDER BY popularity DESC
		 LIMIT ?`, string(platform), category, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HashtagRecord
	for rows.Next() {
		var r HashtagRecord
		var plat, at string
		if err := rows.Scan(&plat, &r.Tag, &r.Category, &r.Engagement, &r.Popularity, &r.PostCount, &at); err != nil {
			return nil, err
		}
		r.Platform = Platform(plat)
		r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateContentItem inserts one generated item.
func (s *Store) CreateContentItem(ctx context.Context, item ContentItem) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if strings.TrimSpace(item.ID) == "" {
		return errors.New("content item id required")
	}
	topics, err := json.Marshal(item.SourceTopics)
	if err != nil {
		return err
	}
	at := item.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO content_items(id, content, prompt, source_topics, posted, published_at, external_id, created_at)
		 VALUES(?,?,?,?,?,?,?,?)`,
		item.ID, item.Content, item.Prompt, string(topics), boolInt(item.Posted),
		nullTime(item.PublishedAt), nullStr(item.ExternalID), at.UTC().Format(time.RFC3339Nano))
	return err
}

// MarkPublished flips an item to posted and records the platform ID.
func (s *Store) MarkPublished(ctx context.Context, id, externalID string, at time.Time) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE content_items SET posted = 1, external_id = ?, published_at = ? WHERE id = ?`,
		externalID, at.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("content item %s not found", id)
	}
	return nil
}

// RecentContentItems returns the newest items first.
func (s *Store) RecentContentItems(ctx context.Context, limit int) ([]ContentItem, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, prompt, source_topics, posted, published_at, external_id, created_at
		 FROM content_items
		 ORDER BY created_at DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ContentItem
	for rows.Next() {
		var it ContentItem
		var topics, created string
		var posted int
		var published, external sql.NullString
		if err := rows.Scan(&it.ID, &it.Content, &it.Prompt, &topics, &posted, &published, &external, &created); err != nil {
			return nil, err
		}
		it.Posted = posted != 0
		if published.Valid {
			if t, err := time.Parse(time.RFC3339Nano, published.String); err == nil {
				it.PublishedAt = &t
			}
		}
		it.ExternalID = external.String
		it.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		_ = json.Unmarshal([]byte(topics), &it.SourceTopics)
		out = append(out, it)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
