package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mangaka-ai/mangaka-server/internal/model"
)

const pqUniqueViolation = "23505"

// PostgresStore implements Store over a plain Postgres database for
// self-hosted deployments.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore connects to databaseURL and verifies the connection.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an existing connection, used by tests.
func NewPostgresStoreFromDB(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies pending schema migrations from sourcePath.
func (s *PostgresStore) Migrate(sourcePath string) error {
	driver, err := postgres.WithInstance(s.db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+sourcePath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func mapPQError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
		return fmt.Errorf("%w: %s", ErrConflict, pqErr.Message)
	}
	return err
}

// --- ProjectStore -----------------------------------------------------------

func (s *PostgresStore) CreateProject(ctx context.Context, p model.Project) (model.Project, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	const q = `INSERT INTO projects (id, user_id, name, pages_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, user_id, name, pages_count, created_at, updated_at`
	var out model.Project
	err := s.db.GetContext(ctx, &out, q, p.ID, p.UserID, p.Name, p.PagesCount, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return model.Project{}, mapPQError(err)
	}
	return out, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, id string) (model.Project, error) {
	const q = `SELECT id, user_id, name, pages_count, created_at, updated_at FROM projects WHERE id = $1`
	var p model.Project
	if err := s.db.GetContext(ctx, &p, q, id); err != nil {
		return model.Project{}, mapPQError(err)
	}
	return p, nil
}

func (s *PostgresStore) ListProjects(ctx context.Context, userID string) ([]model.Project, error) {
	const q = `SELECT id, user_id, name, pages_count, created_at, updated_at
		FROM projects WHERE user_id = $1 ORDER BY created_at ASC`
	var rows []model.Project
	if err := s.db.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, mapPQError(err)
	}
	return rows, nil
}

func (s *PostgresStore) UpdateProjectPageCount(ctx context.Context, id string, count int) error {
	const q = `UPDATE projects SET pages_count = $2, updated_at = now() WHERE id = $1`
	res, err := s.db.ExecContext(ctx, q, id, count)
	if err != nil {
		return mapPQError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- PageStore --------------------------------------------------------------

func (s *PostgresStore) GetPage(ctx context.Context, pageID, projectID string) (model.Page, error) {
	const q = `SELECT id, project_id, page_number, title, content, status, metadata, created_at, updated_at
		FROM pages WHERE id = $1 AND project_id = $2`
	var p model.Page
	if err := s.db.GetContext(ctx, &p, q, pageID, projectID); err != nil {
		return model.Page{}, mapPQError(err)
	}
	return p, nil
}

func (s *PostgresStore) ListPages(ctx context.Context, projectID string) ([]model.Page, error) {
	const q = `SELECT id, project_id, page_number, title, content, status, metadata, created_at, updated_at
		FROM pages WHERE project_id = $1 ORDER BY page_number ASC`
	var rows []model.Page
	if err := s.db.SelectContext(ctx, &rows, q, projectID); err != nil {
		return nil, mapPQError(err)
	}
	return rows, nil
}

func (s *PostgresStore) CountPages(ctx context.Context, projectID string) (int, error) {
	const q = `SELECT COUNT(*) FROM pages WHERE project_id = $1`
	var n int
	if err := s.db.GetContext(ctx, &n, q, projectID); err != nil {
		return 0, mapPQError(err)
	}
	return n, nil
}

func (s *PostgresStore) InsertPage(ctx context.Context, p model.Page) (model.Page, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	const q = `INSERT INTO pages (id, project_id, page_number, title, content, status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, project_id, page_number, title, content, status, metadata, created_at, updated_at`
	var out model.Page
	err := s.db.GetContext(ctx, &out, q,
		p.ID, p.ProjectID, p.PageNumber, p.Title, nullableJSON(p.Content), p.Status,
		nullableJSON(p.Metadata), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return model.Page{}, mapPQError(err)
	}
	return out, nil
}

func (s *PostgresStore) UpdatePage(ctx context.Context, p model.Page) (model.Page, error) {
	const q = `UPDATE pages
		SET content = $3, status = $4, metadata = COALESCE($5, metadata), updated_at = $6
		WHERE id = $1 AND project_id = $2
		RETURNING id, project_id, page_number, title, content, status, metadata, created_at, updated_at`
	var out model.Page
	err := s.db.GetContext(ctx, &out, q,
		p.ID, p.ProjectID, nullableJSON(p.Content), p.Status, nullableJSON(p.Metadata), p.UpdatedAt)
	if err != nil {
		return model.Page{}, mapPQError(err)
	}
	return out, nil
}

// nullableJSON maps an empty raw message to SQL NULL so jsonb columns never
// receive the invalid empty string.
func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

// --- SaveStore --------------------------------------------------------------

func (s *PostgresStore) UpsertSave(ctx context.Context, save model.ProjectSave) (model.ProjectSave, error) {
	if save.ID == "" {
		save.ID = uuid.NewString()
	}
	doc, err := json.Marshal(save.Document)
	if err != nil {
		return model.ProjectSave{}, fmt.Errorf("marshal save document: %w", err)
	}
	const q = `INSERT INTO project_saves (id, project_id, user_id, document, saved_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (project_id, user_id)
		DO UPDATE SET document = EXCLUDED.document, saved_at = EXCLUDED.saved_at
		RETURNING id, project_id, user_id, document, saved_at`
	var row saveRow
	if err := s.db.GetContext(ctx, &row, q, save.ID, save.ProjectID, save.UserID, doc, save.SavedAt); err != nil {
		return model.ProjectSave{}, mapPQError(err)
	}
	return row.toModel()
}

func (s *PostgresStore) GetSave(ctx context.Context, projectID, userID string) (model.ProjectSave, error) {
	const q = `SELECT id, project_id, user_id, document, saved_at
		FROM project_saves WHERE project_id = $1 AND user_id = $2`
	var row saveRow
	if err := s.db.GetContext(ctx, &row, q, projectID, userID); err != nil {
		return model.ProjectSave{}, mapPQError(err)
	}
	return row.toModel()
}

type saveRow struct {
	ID        string    `db:"id"`
	ProjectID string    `db:"project_id"`
	UserID    string    `db:"user_id"`
	Document  []byte    `db:"document"`
	SavedAt   time.Time `db:"saved_at"`
}

func (r saveRow) toModel() (model.ProjectSave, error) {
	out := model.ProjectSave{
		ID:        r.ID,
		ProjectID: r.ProjectID,
		UserID:    r.UserID,
		SavedAt:   r.SavedAt,
	}
	if err := json.Unmarshal(r.Document, &out.Document); err != nil {
		return model.ProjectSave{}, fmt.Errorf("unmarshal save document: %w", err)
	}
	return out, nil
}

// --- DraftStore -------------------------------------------------------------

func (s *PostgresStore) DeleteDraft(ctx context.Context, pageID, userID, sessionID string) error {
	const q = `DELETE FROM drafts WHERE page_id = $1 AND user_id = $2 AND session_id = $3`
	_, err := s.db.ExecContext(ctx, q, pageID, userID, sessionID)
	return mapPQError(err)
}

func (s *PostgresStore) DeleteDraftsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	const q = `DELETE FROM drafts WHERE created_at < $1`
	res, err := s.db.ExecContext(ctx, q, cutoff)
	if err != nil {
		return 0, mapPQError(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// --- QuotaStore -------------------------------------------------------------

func (s *PostgresStore) GetQuota(ctx context.Context, userID string) (model.UserQuota, error) {
	const q = `SELECT user_id, monthly_used, monthly_limit, panels_used, panels_limit, reset_at, created_at, updated_at
		FROM user_quotas WHERE user_id = $1`
	var quota model.UserQuota
	if err := s.db.GetContext(ctx, &quota, q, userID); err != nil {
		return model.UserQuota{}, mapPQError(err)
	}
	return quota, nil
}

func (s *PostgresStore) InsertQuota(ctx context.Context, quota model.UserQuota) (model.UserQuota, error) {
	const q = `INSERT INTO user_quotas (user_id, monthly_used, monthly_limit, panels_used, panels_limit, reset_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING user_id, monthly_used, monthly_limit, panels_used, panels_limit, reset_at, created_at, updated_at`
	var out model.UserQuota
	err := s.db.GetContext(ctx, &out, q,
		quota.UserID, quota.MonthlyUsed, quota.MonthlyLimit, quota.PanelsUsed,
		quota.PanelsLimit, quota.ResetAt, quota.CreatedAt, quota.UpdatedAt)
	if err != nil {
		return model.UserQuota{}, mapPQError(err)
	}
	return out, nil
}

func (s *PostgresStore) UpdateQuota(ctx context.Context, quota model.UserQuota) (model.UserQuota, error) {
	const q = `UPDATE user_quotas
		SET monthly_used = $2, monthly_limit = $3, panels_used = $4, panels_limit = $5, reset_at = $6, updated_at = $7
		WHERE user_id = $1
		RETURNING user_id, monthly_used, monthly_limit, panels_used, panels_limit, reset_at, created_at, updated_at`
	var out model.UserQuota
	err := s.db.GetContext(ctx, &out, q,
		quota.UserID, quota.MonthlyUsed, quota.MonthlyLimit, quota.PanelsUsed,
		quota.PanelsLimit, quota.ResetAt, quota.UpdatedAt)
	if err != nil {
		return model.UserQuota{}, mapPQError(err)
	}
	return out, nil
}

func (s *PostgresStore) ListQuotasDueForReset(ctx context.Context, now time.Time) ([]model.UserQuota, error) {
	const q = `SELECT user_id, monthly_used, monthly_limit, panels_used, panels_limit, reset_at, created_at, updated_at
		FROM user_quotas WHERE reset_at < $1`
	var rows []model.UserQuota
	if err := s.db.SelectContext(ctx, &rows, q, now); err != nil {
		return nil, mapPQError(err)
	}
	return rows, nil
}

// --- AssetStore -------------------------------------------------------------

// Asset tables share one column layout so queries are built from the kind's
// table name. Table() returns a fixed identifier, never user input.

func (s *PostgresStore) ListAssets(ctx context.Context, kind model.AssetKind, projectID, userID string) ([]model.Asset, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown asset kind %q", kind)
	}
	q := fmt.Sprintf(`SELECT id, project_id, user_id, original_prompt, optimized_prompt, image_url, metadata, created_at
		FROM %s WHERE project_id = $1 AND user_id = $2 ORDER BY created_at ASC`, kind.Table())
	var rows []model.Asset
	if err := s.db.SelectContext(ctx, &rows, q, projectID, userID); err != nil {
		return nil, mapPQError(err)
	}
	return rows, nil
}

func (s *PostgresStore) GetAsset(ctx context.Context, kind model.AssetKind, id, projectID, userID string) (model.Asset, error) {
	if !kind.Valid() {
		return model.Asset{}, fmt.Errorf("unknown asset kind %q", kind)
	}
	q := fmt.Sprintf(`SELECT id, project_id, user_id, original_prompt, optimized_prompt, image_url, metadata, created_at
		FROM %s WHERE id = $1 AND project_id = $2 AND user_id = $3`, kind.Table())
	var a model.Asset
	if err := s.db.GetContext(ctx, &a, q, id, projectID, userID); err != nil {
		return model.Asset{}, mapPQError(err)
	}
	return a, nil
}

func (s *PostgresStore) InsertAsset(ctx context.Context, kind model.AssetKind, a model.Asset) (model.Asset, error) {
	if !kind.Valid() {
		return model.Asset{}, fmt.Errorf("unknown asset kind %q", kind)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	q := fmt.Sprintf(`INSERT INTO %s (id, project_id, user_id, original_prompt, optimized_prompt, image_url, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, project_id, user_id, original_prompt, optimized_prompt, image_url, metadata, created_at`, kind.Table())
	var out model.Asset
	err := s.db.GetContext(ctx, &out, q,
		a.ID, a.ProjectID, a.UserID, a.OriginalPrompt, a.OptimizedPrompt, a.ImageURL,
		nullableJSON(a.Metadata), a.CreatedAt)
	if err != nil {
		return model.Asset{}, mapPQError(err)
	}
	return out, nil
}

func (s *PostgresStore) DeleteAsset(ctx context.Context, kind model.AssetKind, id, projectID, userID string) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown asset kind %q", kind)
	}
	q := fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND project_id = $2 AND user_id = $3`, kind.Table())
	res, err := s.db.ExecContext(ctx, q, id, projectID, userID)
	if err != nil {
		return mapPQError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- SubscriptionStore ------------------------------------------------------

func (s *PostgresStore) UpsertSubscription(ctx context.Context, sub model.Subscription) (model.Subscription, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	const q = `INSERT INTO subscriptions (id, user_id, plan_id, stripe_subscription_id, status, current_period_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (stripe_subscription_id)
		DO UPDATE SET plan_id = EXCLUDED.plan_id, status = EXCLUDED.status,
			current_period_end = EXCLUDED.current_period_end, updated_at = EXCLUDED.updated_at
		RETURNING id, user_id, plan_id, stripe_subscription_id, status, current_period_end, created_at, updated_at`
	var out model.Subscription
	err := s.db.GetContext(ctx, &out, q,
		sub.ID, sub.UserID, sub.PlanID, sub.StripeSubscriptionID, sub.Status,
		sub.CurrentPeriodEnd, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return model.Subscription{}, mapPQError(err)
	}
	return out, nil
}

func (s *PostgresStore) GetSubscriptionByProviderID(ctx context.Context, providerID string) (model.Subscription, error) {
	const q = `SELECT id, user_id, plan_id, stripe_subscription_id, status, current_period_end, created_at, updated_at
		FROM subscriptions WHERE stripe_subscription_id = $1`
	var sub model.Subscription
	if err := s.db.GetContext(ctx, &sub, q, providerID); err != nil {
		return model.Subscription{}, mapPQError(err)
	}
	return sub, nil
}

func (s *PostgresStore) GetSubscriptionForUser(ctx context.Context, userID string) (model.Subscription, error) {
	const q = `SELECT id, user_id, plan_id, stripe_subscription_id, status, current_period_end, created_at, updated_at
		FROM subscriptions WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`
	var sub model.Subscription
	if err := s.db.GetContext(ctx, &sub, q, userID); err != nil {
		return model.Subscription{}, mapPQError(err)
	}
	return sub, nil
}

func (s *PostgresStore) UpdateSubscriptionStatus(ctx context.Context, providerID, status string, periodEnd time.Time) error {
	const q = `UPDATE subscriptions
		SET status = $2,
			current_period_end = CASE WHEN $3::timestamptz IS NULL THEN current_period_end ELSE $3 END,
			updated_at = now()
		WHERE stripe_subscription_id = $1`
	var end interface{}
	if !periodEnd.IsZero() {
		end = periodEnd
	}
	res, err := s.db.ExecContext(ctx, q, providerID, status, end)
	if err != nil {
		return mapPQError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
