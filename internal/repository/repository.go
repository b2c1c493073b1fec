// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveAssessment stores an assessment with tenant isolation.
func (r *SQLRepository) SaveAssessment(ctx context.Context, tenantID string, a *domain.Assessment) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	profile, _ := json.Marshal(a.Profile)
	score, _ := json.Marshal(a.Score)
	offers, _ := json.Marshal(a.Offers)
	metadata, _ := json.Marshal(a.Metadata)

	autoDecline := 0
	if a.Score.AutoDecline {
		autoDecline = 1
	}

	query := `
		INSERT INTO assessments (
			id, tenant_id, decision, total_score, risk_tier, auto_decline,
			profile, score, offers, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		a.ID, tenantID, a.Decision(),
		a.Score.TotalScore, string(a.Score.RiskTier), autoDecline,
		string(profile), string(score), string(offers), string(metadata),
		a.CreatedAt,
	)
	return err
}

// GetAssessment retrieves an assessment by ID with tenant isolation.
func (r *SQLRepository) GetAssessment(ctx context.Context, tenantID string, id string) (*domain.Assessment, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, profile, score, offers, metadata, created_at
		FROM assessments
		WHERE tenant_id = ? AND id = ?
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, id)
	a, err := scanAssessment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// ListAssessmentsSince retrieves a tenant's assessments newer than the
// given time, newest first.
func (r *SQLRepository) ListAssessmentsSince(ctx context.Context, tenantID string, since time.Time) ([]*domain.Assessment, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, profile, score, offers, metadata, created_at
		FROM assessments
		WHERE tenant_id = ? AND created_at >= ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assessments []*domain.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		assessments = append(assessments, a)
	}

	return assessments, rows.Err()
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssessment(row rowScanner) (*domain.Assessment, error) {
	var a domain.Assessment
	var profile, score, offers, metadata string

	if err := row.Scan(
		&a.ID, &a.TenantID,
		&profile, &score, &offers, &metadata,
		&a.CreatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(profile), &a.Profile); err != nil {
		return nil, fmt.Errorf("failed to parse stored profile: %w", err)
	}
	if err := json.Unmarshal([]byte(score), &a.Score); err != nil {
		return nil, fmt.Errorf("failed to parse stored score: %w", err)
	}
	if offers != "" && offers != "null" {
		if err := json.Unmarshal([]byte(offers), &a.Offers); err != nil {
			return nil, fmt.Errorf("failed to parse stored offers: %w", err)
		}
	}
	json.Unmarshal([]byte(metadata), &a.Metadata)

	return &a, nil
}

// SaveRuleSet stores a rule set as a new version. Version numbers
// increment per tenant; the struct is updated with the assigned version.
func (r *SQLRepository) SaveRuleSet(ctx context.Context, tenantID string, rs *domain.RuleSet) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	document, err := json.Marshal(rs.Sections)
	if err != nil {
		return fmt.Errorf("failed to serialize rule set: %w", err)
	}

	var version int
	next := `SELECT COALESCE(MAX(version), 0) + 1 FROM rule_sets WHERE tenant_id = ?`
	if err := r.db.QueryRowContext(ctx, r.rebind(next), tenantID).Scan(&version); err != nil {
		return err
	}

	if rs.ID == "" {
		rs.ID = fmt.Sprintf("ruleset-v%d", version)
	}
	rs.TenantID = tenantID
	rs.Version = version
	rs.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO rule_sets (id, tenant_id, version, document, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		rs.ID, tenantID, rs.Version, string(document), rs.UpdatedAt,
	)
	return err
}

// GetRuleSet retrieves the latest rule set version for a tenant.
func (r *SQLRepository) GetRuleSet(ctx context.Context, tenantID string) (*domain.RuleSet, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, version, document, updated_at
		FROM rule_sets
		WHERE tenant_id = ?
		ORDER BY version DESC
		LIMIT 1
	`

	var rs domain.RuleSet
	var document string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID).Scan(
		&rs.ID, &rs.TenantID, &rs.Version, &document, &rs.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	// Stored documents passed validation on the way in, but reparse
	// through the validator so a hand-edited row cannot poison the
	// engine.
	parsed, err := domain.ParseRuleSetDocument([]byte(document))
	if err != nil {
		return nil, fmt.Errorf("stored rule set is invalid: %w", err)
	}
	rs.Sections = parsed.Sections

	return &rs, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
