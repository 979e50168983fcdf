package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/godseye3002/godseye/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Tenants ---

func (s *PostgresStore) GetDefaultTenant(ctx context.Context) (*models.Tenant, error) {
	var t models.Tenant
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, plan, created_at, updated_at FROM tenants WHERE name = 'default' LIMIT 1`,
	).Scan(&t.ID, &t.Name, &t.Plan, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get default tenant: %w", err)
	}
	return &t, nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	return scanAPIKeys(rows)
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, tenant_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.TenantID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE tenant_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	return scanAPIKeys(rows)
}

func scanAPIKeys(rows pgx.Rows) ([]*models.APIKey, error) {
	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.TenantID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`, id, tenantID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Products ---

func (s *PostgresStore) CreateProduct(ctx context.Context, product *models.Product) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO products (id, tenant_id, name, domain, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		product.ID, product.TenantID, product.Name, product.Domain, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProduct(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Product, error) {
	var p models.Product
	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, name, domain, created_at, updated_at
		 FROM products WHERE id = $1 AND tenant_id = $2`, id, tenantID,
	).Scan(&p.ID, &p.TenantID, &p.Name, &p.Domain, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

// --- Source records & insights ---

func (s *PostgresStore) CreateSourceRecord(ctx context.Context, record *models.SourceRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO source_records (id, product_id, engine, snapshot_id, query, url, content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.ID, record.ProductID, record.Engine, record.SnapshotID,
		record.Query, record.URL, record.Content, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("create source record: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateInsight(ctx context.Context, insight *models.Insight) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO insights (id, source_record_id, product_id, engine, mentioned, sentiment, summary, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		insight.ID, insight.SourceRecordID, insight.ProductID, insight.Engine,
		insight.Mentioned, insight.Sentiment, insight.Summary, insight.CreatedAt)
	if err != nil {
		return fmt.Errorf("create insight: %w", err)
	}
	return nil
}

// LatestSnapshotID returns the snapshot id of the most recent scrape run for
// the (product, engine) pair, or ErrNotFound when no rows exist yet.
func (s *PostgresStore) LatestSnapshotID(ctx context.Context, productID uuid.UUID, engine string) (string, error) {
	var snapshotID string
	err := s.pool.QueryRow(ctx,
		`SELECT snapshot_id FROM source_records
		 WHERE product_id = $1 AND engine = $2
		 ORDER BY created_at DESC LIMIT 1`, productID, engine,
	).Scan(&snapshotID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("latest snapshot id: %w", err)
	}
	return snapshotID, nil
}

// ListSourceRecordIDs returns the ids of all source rows in the latest snapshot
// for the (product, engine) pair. Returns an empty slice when no rows exist.
func (s *PostgresStore) ListSourceRecordIDs(ctx context.Context, productID uuid.UUID, engine string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM source_records
		 WHERE product_id = $1 AND engine = $2
		   AND snapshot_id = (
		     SELECT snapshot_id FROM source_records
		     WHERE product_id = $1 AND engine = $2
		     ORDER BY created_at DESC LIMIT 1
		   )`, productID, engine)
	if err != nil {
		return nil, fmt.Errorf("list source record ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan source record id: %w", err)
		}
		ids = append(ids, id.String())
	}
	return ids, rows.Err()
}

func (s *PostgresStore) CountSourceRecords(ctx context.Context, productID uuid.UUID, engine, snapshotID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM source_records
		 WHERE product_id = $1 AND engine = $2 AND snapshot_id = $3`,
		productID, engine, snapshotID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count source records: %w", err)
	}
	return count, nil
}

// CountInsights counts derived rows whose parent source row belongs to the
// given snapshot. Insights for older snapshots never count toward progress.
func (s *PostgresStore) CountInsights(ctx context.Context, productID uuid.UUID, engine, snapshotID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM insights i
		 JOIN source_records r ON r.id = i.source_record_id
		 WHERE i.product_id = $1 AND i.engine = $2 AND r.snapshot_id = $3`,
		productID, engine, snapshotID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count insights: %w", err)
	}
	return count, nil
}

// --- Analyses ---

func (s *PostgresStore) GetAnalysis(ctx context.Context, productID uuid.UUID, engine string) (*models.Analysis, error) {
	var a models.Analysis
	err := s.pool.QueryRow(ctx,
		`SELECT id, product_id, engine, source_hash, summary, sov_score, completed_at, created_at, updated_at
		 FROM analyses WHERE product_id = $1 AND engine = $2`, productID, engine,
	).Scan(&a.ID, &a.ProductID, &a.Engine, &a.SourceHash, &a.Summary,
		&a.SOVScore, &a.CompletedAt, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	return &a, nil
}

// UpsertAnalysis inserts or overwrites the single analysis row for the
// (product, engine) pair. Every successful re-run replaces the stored hash.
func (s *PostgresStore) UpsertAnalysis(ctx context.Context, analysis *models.Analysis) (*models.Analysis, error) {
	var result models.Analysis
	err := s.pool.QueryRow(ctx,
		`INSERT INTO analyses (id, product_id, engine, source_hash, summary, sov_score, completed_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (product_id, engine) DO UPDATE SET
		   source_hash = EXCLUDED.source_hash,
		   summary = EXCLUDED.summary,
		   sov_score = EXCLUDED.sov_score,
		   completed_at = EXCLUDED.completed_at,
		   updated_at = NOW()
		 RETURNING id, product_id, engine, source_hash, summary, sov_score, completed_at, created_at, updated_at`,
		analysis.ID, analysis.ProductID, analysis.Engine, analysis.SourceHash,
		analysis.Summary, analysis.SOVScore, analysis.CompletedAt,
		analysis.CreatedAt, analysis.UpdatedAt,
	).Scan(&result.ID, &result.ProductID, &result.Engine, &result.SourceHash,
		&result.Summary, &result.SOVScore, &result.CompletedAt,
		&result.CreatedAt, &result.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert analysis: %w", err)
	}
	return &result, nil
}

// --- Jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, tenant_id, product_id, engine, type, status, remote_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.TenantID, job.ProductID, job.Engine, job.Type, job.Status,
		job.RemoteID, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Job, error) {
	var j models.Job
	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, product_id, engine, type, status, remote_id, error_message, started_at, completed_at, created_at, updated_at
		 FROM jobs WHERE id = $1 AND tenant_id = $2`, id, tenantID,
	).Scan(&j.ID, &j.TenantID, &j.ProductID, &j.Engine, &j.Type, &j.Status,
		&j.RemoteID, &j.ErrorMessage, &j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

var validTransitions = map[string][]string{
	"pending": {"running", "completed", "failed"},
	"running": {"completed", "failed"},
}

func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	// Fetch current status
	var currentStatus string
	err := s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&currentStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}

	// Validate transition
	allowed := validTransitions[currentStatus]
	valid := false
	for _, a := range allowed {
		if a == status {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid job status transition: %s -> %s", currentStatus, status)
	}

	now := time.Now().UTC()
	query := `UPDATE jobs SET status = $2, updated_at = $3`
	args := []any{id, status, now}
	argIdx := 4

	if status == "running" {
		query += fmt.Sprintf(", started_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if status == "completed" || status == "failed" {
		query += fmt.Sprintf(", completed_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if params.ErrorMessage != nil {
		query += fmt.Sprintf(", error_message = $%d", argIdx)
		args = append(args, *params.ErrorMessage)
		argIdx++
	}
	if params.RemoteID != nil {
		query += fmt.Sprintf(", remote_id = $%d", argIdx)
		args = append(args, *params.RemoteID)
		argIdx++
	}

	query += " WHERE id = $1"

	_, err = s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
