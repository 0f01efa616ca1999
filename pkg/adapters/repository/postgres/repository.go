package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "github.com/lib/pq"              // registers "postgres"
	"github.com/wadjakorntonsri/nfc-links/pkg/core/domain"
)

//go:embed schema.sql
var schema string

const (
	tagColumns = `id, uid, bizcode, organization_id, user_id, active_target_url, source_target_url,
		title, description, is_active, click_count, last_clicked, created_at, updated_at, deleted_at`

	findByUIDQuery = `SELECT ` + tagColumns + ` FROM nfc_tags
		WHERE uid = $1 AND deleted_at IS NULL AND is_active = TRUE LIMIT 1`
	findInTenantQuery = `SELECT ` + tagColumns + ` FROM nfc_tags
		WHERE uid = $1 AND organization_id = $2 AND deleted_at IS NULL AND is_active = TRUE LIMIT 1`
	findByBizcodeQuery = `SELECT ` + tagColumns + ` FROM nfc_tags
		WHERE bizcode = $1 AND deleted_at IS NULL LIMIT 1`
	incrementClicksQuery = `UPDATE nfc_tags
		SET click_count = COALESCE(click_count, 0) + 1, last_clicked = $2
		WHERE id = $1 AND deleted_at IS NULL`
	recordScanQuery = `INSERT INTO nfc_redirects (id, nfc_tag_id, resolved_url, redirect_type, client_ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	updateRedirectQuery = `UPDATE nfc_tags
		SET active_target_url = $2, title = COALESCE($3, title),
			description = COALESCE($4, description), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`
	isMemberQuery = `SELECT EXISTS (
		SELECT 1 FROM organization_members m
		JOIN tenants t ON t.id = m.organization_id
		WHERE m.user_id = $1 AND m.organization_id = $2
		  AND m.status = 'active' AND m.deleted_at IS NULL AND t.deleted_at IS NULL)`
)

// PostgresRepository serves the hot paths (lookup, click accounting,
// membership) from statements prepared once at construction.
type PostgresRepository struct {
	db *sql.DB

	findByUIDStmt       *sql.Stmt
	findInTenantStmt    *sql.Stmt
	findByBizcodeStmt   *sql.Stmt
	incrementClicksStmt *sql.Stmt
	recordScanStmt      *sql.Stmt
	updateRedirectStmt  *sql.Stmt
	isMemberStmt        *sql.Stmt
}

// Open connects with either the pgx ("pgx") or lib/pq ("postgres") driver.
func Open(driverName, dsn string, autoMigrate bool) (*PostgresRepository, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if autoMigrate {
		if _, err := db.ExecContext(ctx, schema); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
	}

	repo, err := NewPostgresRepository(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

func NewPostgresRepository(ctx context.Context, db *sql.DB) (*PostgresRepository, error) {
	repo := &PostgresRepository{db: db}
	if err := repo.initStatements(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

type preparedStatement struct {
	name  string
	dst   **sql.Stmt
	query string
}

func (r *PostgresRepository) statements() []preparedStatement {
	return []preparedStatement{
		{"findByUID", &r.findByUIDStmt, findByUIDQuery},
		{"findInTenant", &r.findInTenantStmt, findInTenantQuery},
		{"findByBizcode", &r.findByBizcodeStmt, findByBizcodeQuery},
		{"incrementClicks", &r.incrementClicksStmt, incrementClicksQuery},
		{"recordScan", &r.recordScanStmt, recordScanQuery},
		{"updateRedirect", &r.updateRedirectStmt, updateRedirectQuery},
		{"isMember", &r.isMemberStmt, isMemberQuery},
	}
}

func (r *PostgresRepository) initStatements(ctx context.Context) error {
	for _, s := range r.statements() {
		stmt, err := r.db.PrepareContext(ctx, s.query)
		if err != nil {
			r.closeStatements()
			return fmt.Errorf("prepare %s statement: %w", s.name, err)
		}
		*s.dst = stmt
	}
	return nil
}

func (r *PostgresRepository) closeStatements() {
	for _, s := range r.statements() {
		if *s.dst != nil {
			(*s.dst).Close()
		}
	}
}

func (r *PostgresRepository) Close() error {
	r.closeStatements()
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTag(row rowScanner) (*domain.Tag, error) {
	var t domain.Tag
	err := row.Scan(
		&t.ID, &t.UID, &t.Bizcode, &t.TenantID, &t.OwnerUserID, &t.CustomTarget, &t.SourceTarget,
		&t.Title, &t.Description, &t.IsActive, &t.ClickCount, &t.LastClicked, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTagNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *PostgresRepository) FindByIdentifier(ctx context.Context, uid string) (*domain.Tag, error) {
	return scanTag(r.findByUIDStmt.QueryRowContext(ctx, uid))
}

func (r *PostgresRepository) FindByIdentifierInTenant(ctx context.Context, uid string, tenantID uuid.UUID) (*domain.Tag, error) {
	return scanTag(r.findInTenantStmt.QueryRowContext(ctx, uid, tenantID))
}

func (r *PostgresRepository) FindByBizcode(ctx context.Context, bizcode string) (*domain.Tag, error) {
	return scanTag(r.findByBizcodeStmt.QueryRowContext(ctx, bizcode))
}

func (r *PostgresRepository) IncrementClicks(ctx context.Context, tagID uuid.UUID, at time.Time) error {
	res, err := r.incrementClicksStmt.ExecContext(ctx, tagID, at.UTC())
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (r *PostgresRepository) RecordScan(ctx context.Context, event *domain.ScanEvent) error {
	_, err := r.recordScanStmt.ExecContext(ctx,
		event.ID, event.TagID, event.ResolvedURL, string(event.Kind), event.ClientIP, event.UserAgent, event.CreatedAt.UTC())
	return err
}

func (r *PostgresRepository) UpdateRedirect(ctx context.Context, tagID uuid.UUID, target *string, details domain.TagDetails) error {
	res, err := r.updateRedirectStmt.ExecContext(ctx, tagID, target, details.Title, details.Description)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (r *PostgresRepository) AssignTenant(ctx context.Context, bizcode string, tenantID uuid.UUID, force bool) error {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM tenants WHERE id = $1 AND deleted_at IS NULL)`, tenantID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrTenantNotFound
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE nfc_tags SET organization_id = $1, updated_at = NOW()
		WHERE bizcode = $2 AND deleted_at IS NULL AND (organization_id IS NULL OR $3::boolean)`,
		tenantID, bizcode, force)
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

func (r *PostgresRepository) ListScans(ctx context.Context, tagID uuid.UUID, since time.Time) ([]domain.ScanEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, nfc_tag_id, resolved_url, redirect_type, client_ip, user_agent, created_at
		FROM nfc_redirects WHERE nfc_tag_id = $1 AND created_at >= $2
		ORDER BY created_at DESC`, tagID, since.UTC())
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

func (r *PostgresRepository) Dump(ctx context.Context) ([]domain.Tag, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+tagColumns+` FROM nfc_tags WHERE deleted_at IS NULL ORDER BY created_at`)
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

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *PostgresRepository) IsMember(ctx context.Context, userID, tenantID uuid.UUID) (bool, error) {
	var ok bool
	if err := r.isMemberStmt.QueryRowContext(ctx, userID, tenantID).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (r *PostgresRepository) CreateTenant(ctx context.Context, tenant *domain.Tenant) error {
	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}
	return r.db.QueryRowContext(ctx,
		`INSERT INTO tenants (id, name) VALUES ($1, $2) RETURNING created_at, updated_at`,
		tenant.ID, tenant.Name).Scan(&tenant.CreatedAt, &tenant.UpdatedAt)
}

func (r *PostgresRepository) AddMember(ctx context.Context, tenantID, userID uuid.UUID, role string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO organization_members (organization_id, user_id, role, status)
		VALUES ($1, $2, $3, 'active')
		ON CONFLICT (organization_id, user_id) DO UPDATE SET status = 'active', deleted_at = NULL, role = EXCLUDED.role`,
		tenantID, userID, role)
	if isForeignKeyViolation(err) {
		return domain.ErrTenantNotFound
	}
	return err
}

func (r *PostgresRepository) CreateTag(ctx context.Context, tag *domain.Tag) error {
	if tag.ID == uuid.Nil {
		tag.ID = uuid.New()
	}
	if tag.CreatedAt.IsZero() {
		tag.CreatedAt = time.Now().UTC()
	}
	tag.UpdatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO nfc_tags (id, uid, bizcode, organization_id, user_id, active_target_url, source_target_url,
			title, description, is_active, click_count, created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		tag.ID, tag.UID, tag.Bizcode, tag.TenantID, tag.OwnerUserID, tag.CustomTarget, tag.SourceTarget,
		tag.Title, tag.Description, tag.IsActive, tag.ClickCount, tag.CreatedAt, tag.UpdatedAt, tag.DeletedAt)
	switch {
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %s", domain.ErrDuplicateTag, tag.UID)
	case isForeignKeyViolation(err):
		return domain.ErrTenantNotFound
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
