package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/libsql-client-go/libsql" // Turso driver
	"github.com/wadjakorntonsri/nfc-links/pkg/core/domain"
	_ "modernc.org/sqlite" // Local SQLite driver
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbURL string, autoMigrate bool) (*SQLiteRepository, error) {
	driverName := "sqlite"
	if strings.Contains(dbURL, "libsql://") || strings.Contains(dbURL, "wss://") {
		driverName = "libsql"
	}

	db, err := sql.Open(driverName, dbURL)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if driverName == "sqlite" {
		// A local SQLite file has a single writer anyway; one connection
		// turns concurrent click increments into a queue instead of
		// SQLITE_BUSY errors.
		db.SetMaxOpenConns(1)
	}

	if autoMigrate {
		if err := migrate(db); err != nil {
			return nil, err
		}
	}

	return &SQLiteRepository{db: db}, nil
}

func migrate(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		deleted_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS organization_members (
		organization_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'member',
		status TEXT NOT NULL DEFAULT 'active',
		created_at DATETIME NOT NULL,
		deleted_at DATETIME,
		PRIMARY KEY (organization_id, user_id),
		FOREIGN KEY(organization_id) REFERENCES tenants(id)
	);
	CREATE INDEX IF NOT EXISTS idx_organization_members_user ON organization_members(user_id);

	CREATE TABLE IF NOT EXISTS nfc_tags (
		id TEXT PRIMARY KEY,
		uid TEXT NOT NULL UNIQUE,
		bizcode TEXT NOT NULL UNIQUE,
		organization_id TEXT,
		user_id TEXT,
		active_target_url TEXT,
		source_target_url TEXT,
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 1,
		click_count INTEGER NOT NULL DEFAULT 0,
		last_clicked DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		deleted_at DATETIME,
		FOREIGN KEY(organization_id) REFERENCES tenants(id)
	);
	CREATE INDEX IF NOT EXISTS idx_nfc_tags_organization ON nfc_tags(organization_id);

	CREATE TABLE IF NOT EXISTS nfc_redirects (
		id TEXT PRIMARY KEY,
		nfc_tag_id TEXT NOT NULL,
		resolved_url TEXT NOT NULL,
		redirect_type TEXT NOT NULL,
		client_ip TEXT,
		user_agent TEXT,
		created_at DATETIME NOT NULL,
		FOREIGN KEY(nfc_tag_id) REFERENCES nfc_tags(id)
	);
	CREATE INDEX IF NOT EXISTS idx_nfc_redirects_tag ON nfc_redirects(nfc_tag_id, created_at);
	`
	_, err := db.Exec(query)
	return err
}

const tagColumns = `id, uid, bizcode, organization_id, user_id, active_target_url, source_target_url,
	title, description, is_active, click_count, last_clicked, created_at, updated_at, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTag(row rowScanner) (*domain.Tag, error) {
	var t domain.Tag
	var isActive int64
	err := row.Scan(
		&t.ID, &t.UID, &t.Bizcode, &t.TenantID, &t.OwnerUserID, &t.CustomTarget, &t.SourceTarget,
		&t.Title, &t.Description, &isActive, &t.ClickCount, &t.LastClicked, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	t.IsActive = isActive != 0
	return &t, nil
}

func (r *SQLiteRepository) findOne(ctx context.Context, query string, args ...any) (*domain.Tag, error) {
	tag, err := scanTag(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTagNotFound
	}
	if err != nil {
		return nil, err
	}
	return tag, nil
}

func (r *SQLiteRepository) FindByIdentifier(ctx context.Context, uid string) (*domain.Tag, error) {
	query := `SELECT ` + tagColumns + ` FROM nfc_tags
			  WHERE uid = ? AND deleted_at IS NULL AND is_active = 1`
	return r.findOne(ctx, query, uid)
}

func (r *SQLiteRepository) FindByIdentifierInTenant(ctx context.Context, uid string, tenantID uuid.UUID) (*domain.Tag, error) {
	query := `SELECT ` + tagColumns + ` FROM nfc_tags
			  WHERE uid = ? AND organization_id = ? AND deleted_at IS NULL AND is_active = 1`
	return r.findOne(ctx, query, uid, tenantID)
}

// FindByBizcode also returns inactive tags so their owners can still
// configure them.
func (r *SQLiteRepository) FindByBizcode(ctx context.Context, bizcode string) (*domain.Tag, error) {
	query := `SELECT ` + tagColumns + ` FROM nfc_tags WHERE bizcode = ? AND deleted_at IS NULL`
	return r.findOne(ctx, query, bizcode)
}

// IncrementClicks is a single UPDATE so concurrent scans never lose a count.
func (r *SQLiteRepository) IncrementClicks(ctx context.Context, tagID uuid.UUID, at time.Time) error {
	query := `UPDATE nfc_tags SET click_count = COALESCE(click_count, 0) + 1, last_clicked = ?
			  WHERE id = ? AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, at.UTC(), tagID)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (r *SQLiteRepository) RecordScan(ctx context.Context, event *domain.ScanEvent) error {
	query := `INSERT INTO nfc_redirects (id, nfc_tag_id, resolved_url, redirect_type, client_ip, user_agent, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.TagID, event.ResolvedURL, string(event.Kind), event.ClientIP, event.UserAgent, event.CreatedAt.UTC())
	return err
}

func (r *SQLiteRepository) UpdateRedirect(ctx context.Context, tagID uuid.UUID, target *string, details domain.TagDetails) error {
	query := `UPDATE nfc_tags SET active_target_url = ?, title = COALESCE(?, title),
				description = COALESCE(?, description), updated_at = ?
			  WHERE id = ? AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, target, details.Title, details.Description, time.Now().UTC(), tagID)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// AssignTenant links a tag to a tenant. An already linked tag is only moved
// when force is set.
func (r *SQLiteRepository) AssignTenant(ctx context.Context, bizcode string, tenantID uuid.UUID, force bool) error {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM tenants WHERE id = ? AND deleted_at IS NULL)`, tenantID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrTenantNotFound
	}

	query := `UPDATE nfc_tags SET organization_id = ?, updated_at = ?
			  WHERE bizcode = ? AND deleted_at IS NULL AND (organization_id IS NULL OR ?)`
	res, err := r.db.ExecContext(ctx, query, tenantID, time.Now().UTC(), bizcode, force)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := r.FindByBizcode(ctx, bizcode); err != nil {
		return err
	}
	return domain.ErrTenantAlreadyLinked
}

func (r *SQLiteRepository) ListScans(ctx context.Context, tagID uuid.UUID, since time.Time) ([]domain.ScanEvent, error) {
	query := `SELECT id, nfc_tag_id, resolved_url, redirect_type, client_ip, user_agent, created_at
			  FROM nfc_redirects WHERE nfc_tag_id = ? AND created_at >= ?
			  ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, tagID, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.ScanEvent
	for rows.Next() {
		var e domain.ScanEvent
		var kind string
		var ip, ua sql.NullString
		if err := rows.Scan(&e.ID, &e.TagID, &e.ResolvedURL, &kind, &ip, &ua, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = domain.RedirectKind(kind)
		e.ClientIP = ip.String
		e.UserAgent = ua.String
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *SQLiteRepository) Dump(ctx context.Context) ([]domain.Tag, error) {
	query := `SELECT ` + tagColumns + ` FROM nfc_tags WHERE deleted_at IS NULL ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []domain.Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		tags = append(tags, *t)
	}
	return tags, rows.Err()
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) IsMember(ctx context.Context, userID, tenantID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (
				SELECT 1 FROM organization_members m
				JOIN tenants t ON t.id = m.organization_id
				WHERE m.user_id = ? AND m.organization_id = ?
				  AND m.status = 'active' AND m.deleted_at IS NULL AND t.deleted_at IS NULL)`
	var ok bool
	if err := r.db.QueryRowContext(ctx, query, userID, tenantID).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (r *SQLiteRepository) CreateTenant(ctx context.Context, tenant *domain.Tenant) error {
	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}
	now := time.Now().UTC()
	tenant.CreatedAt, tenant.UpdatedAt = now, now
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		tenant.ID, tenant.Name, now, now)
	return err
}

func (r *SQLiteRepository) AddMember(ctx context.Context, tenantID, userID uuid.UUID, role string) error {
	query := `INSERT INTO organization_members (organization_id, user_id, role, status, created_at)
			  VALUES (?, ?, ?, 'active', ?)
			  ON CONFLICT (organization_id, user_id) DO UPDATE SET status = 'active', deleted_at = NULL, role = excluded.role`
	_, err := r.db.ExecContext(ctx, query, tenantID, userID, role, time.Now().UTC())
	return err
}

func (r *SQLiteRepository) CreateTag(ctx context.Context, tag *domain.Tag) error {
	if tag.ID == uuid.Nil {
		tag.ID = uuid.New()
	}
	now := time.Now().UTC()
	if tag.CreatedAt.IsZero() {
		tag.CreatedAt = now
	}
	tag.UpdatedAt = now

	query := `INSERT INTO nfc_tags (id, uid, bizcode, organization_id, user_id, active_target_url, source_target_url,
				title, description, is_active, click_count, created_at, updated_at, deleted_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		tag.ID, tag.UID, tag.Bizcode, tag.TenantID, tag.OwnerUserID, tag.CustomTarget, tag.SourceTarget,
		tag.Title, tag.Description, tag.IsActive, tag.ClickCount, tag.CreatedAt.UTC(), tag.UpdatedAt, utcPtr(tag.DeletedAt))
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateTag, tag.UID)
	}
	return err
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrTagNotFound
	}
	return nil
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
