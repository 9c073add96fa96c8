package services

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"companion/internal/database"
	"companion/internal/models"
)

const relevantFactsCacheKey = "relevant-facts"

// MemoryService stores short user facts and surfaces the most relevant ones
// to the decision maker. The relevant-facts slice is cached briefly because
// it is rebuilt on every spontaneous tick.
type MemoryService struct {
	db    *database.DB
	cache *gocache.Cache
}

// NewMemoryService creates the memory service.
func NewMemoryService(db *database.DB) *MemoryService {
	return &MemoryService{
		db:    db,
		cache: gocache.New(5*time.Minute, 10*time.Minute),
	}
}

// AddFact stores a new fact and invalidates the relevance cache.
func (s *MemoryService) AddFact(ctx context.Context, req models.CreateMemoryRequest) (*models.MemoryFact, error) {
	relevance := req.Relevance
	if relevance <= 0 {
		relevance = 0.5
	}
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (content, category, relevance, created_at) VALUES (?, ?, ?, ?)`,
		req.Content, req.Category, relevance, database.FormatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to store memory fact: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read memory fact id: %w", err)
	}

	s.cache.Delete(relevantFactsCacheKey)

	return &models.MemoryFact{
		ID:        id,
		Content:   req.Content,
		Category:  req.Category,
		Relevance: relevance,
		CreatedAt: now,
	}, nil
}

// List returns all non-archived facts, most relevant first.
func (s *MemoryService) List(ctx context.Context) ([]models.MemoryFact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, category, relevance, created_at, last_used_at, archived
		 FROM memories WHERE archived = 0
		 ORDER BY relevance DESC, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list memory facts: %w", err)
	}
	defer rows.Close()

	var facts []models.MemoryFact
	for rows.Next() {
		fact, err := scanMemoryFact(rows)
		if err != nil {
			slog.Warn("skipping malformed memory fact", "error", err)
			continue
		}
		facts = append(facts, fact)
	}
	return facts, rows.Err()
}

// Archive hides a fact from future context without deleting it.
func (s *MemoryService) Archive(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE memories SET archived = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to archive memory fact: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrMemoryNotFound
	}
	s.cache.Delete(relevantFactsCacheKey)
	return nil
}

// RelevantFacts returns up to limit fact contents for the decision context.
// Results are cached; the cache is invalidated on writes.
func (s *MemoryService) RelevantFacts(ctx context.Context, limit int) ([]string, error) {
	if cached, ok := s.cache.Get(relevantFactsCacheKey); ok {
		facts := cached.([]string)
		if len(facts) > limit {
			facts = facts[:limit]
		}
		return facts, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, category, relevance, created_at, last_used_at, archived
		 FROM memories WHERE archived = 0
		 ORDER BY relevance DESC, created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query relevant facts: %w", err)
	}
	defer rows.Close()

	now := database.FormatTime(time.Now())
	var contents []string
	var ids []interface{}
	for rows.Next() {
		fact, err := scanMemoryFact(rows)
		if err != nil {
			slog.Warn("skipping malformed memory fact", "error", err)
			continue
		}
		contents = append(contents, fact.Content)
		ids = append(ids, fact.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE memories SET last_used_at = ? WHERE id = ?`, now, id); err != nil {
			slog.Warn("failed to stamp memory fact usage", "id", id, "error", err)
		}
	}

	s.cache.Set(relevantFactsCacheKey, contents, gocache.DefaultExpiration)
	return contents, nil
}

func scanMemoryFact(rows *sql.Rows) (models.MemoryFact, error) {
	var (
		fact       models.MemoryFact
		createdAt  string
		lastUsedAt sql.NullString
		archived   int
	)
	if err := rows.Scan(&fact.ID, &fact.Content, &fact.Category, &fact.Relevance,
		&createdAt, &lastUsedAt, &archived); err != nil {
		return models.MemoryFact{}, err
	}

	created, err := database.ParseTime(createdAt)
	if err != nil {
		return models.MemoryFact{}, &DataIntegrityError{Record: "memories", Err: err}
	}
	fact.CreatedAt = created
	if lastUsedAt.Valid {
		used, err := database.ParseTime(lastUsedAt.String)
		if err == nil {
			fact.LastUsedAt = &used
		}
	}
	fact.Archived = archived != 0
	return fact, nil
}
