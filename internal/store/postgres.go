package store

import (
	"context"
	"encoding/json"
	"fmt"

	"jobpulse/internal/errors"
	"jobpulse/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// JobStore persists enriched jobs in PostgreSQL. Writes are upserts keyed
// by job id: last writer wins for enriched fields, created_at is preserved
// from the first write. Embeddings are stored as JSON text; round-trip
// preserves values.
type JobStore struct {
	pool   *pgxpool.Pool
	logger *errors.Logger
}

// NewJobStore connects to PostgreSQL and verifies connectivity.
func NewJobStore(ctx context.Context, url string, logger *errors.Logger) (*JobStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, errors.NewStorageError("failed to create postgres pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.NewStorageError("postgres ping failed", err)
	}
	return &JobStore{pool: pool, logger: logger}, nil
}

// EnsureSchema creates the jobs_enriched table and its indexes if absent.
func (s *JobStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS jobs_enriched (
			id TEXT PRIMARY KEY,
			company TEXT,
			position TEXT,
			location TEXT,
			url TEXT,
			tags TEXT[],
			skills TEXT[],
			seniority TEXT,
			summary TEXT,
			description TEXT,
			embedding TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_enriched_company ON jobs_enriched(company)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_enriched_position ON jobs_enriched(position)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_enriched_seniority ON jobs_enriched(seniority)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return errors.NewStorageError("schema setup failed", err)
		}
	}
	return nil
}

// UpsertEnrichedJob writes job keyed by id. Enriched fields take the latest
// write; created_at keeps the value of the first write so re-enrichment
// does not move it.
func (s *JobStore) UpsertEnrichedJob(ctx context.Context, job types.EnrichedJob) error {
	embedding, err := encodeEmbedding(job.Embedding)
	if err != nil {
		return errors.NewStorageError("failed to encode embedding", err).
			WithContext("job_id", job.ID)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO jobs_enriched
		 (id, company, position, location, url, tags, skills, seniority, summary, description, embedding, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO UPDATE SET
			company = EXCLUDED.company,
			position = EXCLUDED.position,
			location = EXCLUDED.location,
			url = EXCLUDED.url,
			tags = EXCLUDED.tags,
			skills = EXCLUDED.skills,
			seniority = EXCLUDED.seniority,
			summary = EXCLUDED.summary,
			description = EXCLUDED.description,
			embedding = EXCLUDED.embedding`,
		job.ID, job.Company, job.Position, job.Location, job.URL,
		job.Tags, job.Skills, job.Seniority, job.Summary, job.Description,
		embedding, job.CreatedAt,
	)
	if err != nil {
		return errors.NewStorageError("upsert failed", err).
			WithContext("job_id", job.ID)
	}
	return nil
}

// Query loads enriched jobs with their embeddings under optional filters.
// Seniority filters by exact equality; Skills requires an overlap with the
// stored skill array. limit 0 means no limit.
func (s *JobStore) Query(ctx context.Context, filters types.MatchFilters, limit int) ([]types.EnrichedJob, error) {
	query := `SELECT id, company, position, location, url, tags, skills,
	                 seniority, summary, description, embedding, created_at
	          FROM jobs_enriched
	          WHERE embedding IS NOT NULL`
	var args []any

	if filters.Seniority != "" {
		args = append(args, filters.Seniority)
		query += fmt.Sprintf(" AND seniority = $%d", len(args))
	}
	if len(filters.Skills) > 0 {
		args = append(args, filters.Skills)
		query += fmt.Sprintf(" AND skills && $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.NewStorageError("query failed", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// GetJob loads one enriched job by id. Returns (nil, nil) when absent.
func (s *JobStore) GetJob(ctx context.Context, id string) (*types.EnrichedJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, company, position, location, url, tags, skills,
		        seniority, summary, description, embedding, created_at
		 FROM jobs_enriched WHERE id = $1`, id)
	if err != nil {
		return nil, errors.NewStorageError("get failed", err).WithContext("job_id", id)
	}
	defer rows.Close()

	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return &jobs[0], nil
}

// QueryNeedingBackfill returns jobs whose embedding is missing or does not
// have the expected dimensionality, oldest first.
func (s *JobStore) QueryNeedingBackfill(ctx context.Context, dim, limit int) ([]types.EnrichedJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, company, position, location, url, tags, skills,
		        seniority, summary, description, embedding, created_at
		 FROM jobs_enriched
		 ORDER BY created_at ASC`)
	if err != nil {
		return nil, errors.NewStorageError("backfill query failed", err)
	}
	defer rows.Close()

	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}

	// Dimensionality can only be judged after decoding, so filter here.
	var out []types.EnrichedJob
	for _, job := range jobs {
		if len(job.Embedding) == dim {
			continue
		}
		out = append(out, job)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Ping verifies connectivity for health checks.
func (s *JobStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return errors.NewStorageError("postgres unreachable", err)
	}
	return nil
}

// Close releases the pool.
func (s *JobStore) Close() {
	s.pool.Close()
}

func scanJobs(rows pgx.Rows) ([]types.EnrichedJob, error) {
	var jobs []types.EnrichedJob
	for rows.Next() {
		var job types.EnrichedJob
		var embedding *string
		if err := rows.Scan(
			&job.ID, &job.Company, &job.Position, &job.Location, &job.URL,
			&job.Tags, &job.Skills, &job.Seniority, &job.Summary,
			&job.Description, &embedding, &job.CreatedAt,
		); err != nil {
			return nil, errors.NewStorageError("row scan failed", err)
		}

		if embedding != nil && *embedding != "" {
			vec, err := decodeEmbedding(*embedding)
			if err != nil {
				// A corrupt embedding is a data problem for that row, not
				// a reason to fail the whole query. The matcher's
				// dimensionality guard will exclude it.
				vec = nil
			}
			job.Embedding = vec
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func encodeEmbedding(vec []float64) (*string, error) {
	if len(vec) == 0 {
		return nil, nil
	}
	buf, err := json.Marshal(vec)
	if err != nil {
		return nil, err
	}
	s := string(buf)
	return &s, nil
}

func decodeEmbedding(s string) ([]float64, error) {
	var vec []float64
	if err := json.Unmarshal([]byte(s), &vec); err != nil {
		return nil, err
	}
	return vec, nil
}
