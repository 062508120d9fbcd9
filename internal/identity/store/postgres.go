package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"elibrary-users/internal/identity/models"
	dErrors "elibrary-users/pkg/domain-errors"
	"elibrary-users/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

const uniqueViolationCode pq.ErrorCode = "23505"

// Unique index names from the identities schema.
var constraintFields = map[string]string{
	"identities_email_key":         FieldEmail,
	"identities_matric_number_key": FieldMatricNumber,
	"identities_staff_id_key":      FieldStaffID,
}

const identityColumns = `id, email, first_name, last_name, role, status, account_type,
	phone_number, department, matric_number, staff_id, grad_year,
	email_verified, account_not_expired, account_not_locked,
	created_at, updated_at, last_login_at, expiry_warning_sent_at`

// PostgresStore persists identities in PostgreSQL. Every method joins the
// transaction carried by ctx when there is one.
type PostgresStore struct {
	db        *sql.DB
	txTimeout time.Duration
}

type PostgresOption func(*PostgresStore)

// WithTxTimeout bounds transactions started without a caller deadline.
func WithTxTimeout(d time.Duration) PostgresOption {
	return func(s *PostgresStore) {
		if d > 0 {
			s.txTimeout = d
		}
	}
}

func NewPostgres(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{db: db, txTimeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *PostgresStore) execer(ctx context.Context) tx.DBTX {
	return tx.Executor(ctx, s.db)
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
	identity, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find identity by id: %w", err)
	}
	return identity, nil
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.Identity, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE LOWER(email) = LOWER($1)`, normalizeEmail(email))
	identity, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find identity by email: %w", err)
	}
	return identity, nil
}

func (s *PostgresStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS (SELECT 1 FROM identities WHERE LOWER(email) = LOWER($1))`, normalizeEmail(email))
}

func (s *PostgresStore) ExistsByMatricNumber(ctx context.Context, matric string) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS (SELECT 1 FROM identities WHERE matric_number = $1)`, matric)
}

func (s *PostgresStore) ExistsByStaffID(ctx context.Context, staffID string) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS (SELECT 1 FROM identities WHERE staff_id = $1)`, staffID)
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]*models.Identity, error) {
	return s.list(ctx, "list identities", ``)
}

func (s *PostgresStore) ListByRole(ctx context.Context, role models.Role) ([]*models.Identity, error) {
	return s.list(ctx, "list identities by role", `WHERE role = $1`, string(role))
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status models.Status) ([]*models.Identity, error) {
	return s.list(ctx, "list identities by status", `WHERE status = $1`, string(status))
}

func (s *PostgresStore) ListByRoleAndStatus(ctx context.Context, role models.Role, status models.Status) ([]*models.Identity, error) {
	return s.list(ctx, "list identities by role and status", `WHERE role = $1 AND status = $2`, string(role), string(status))
}

func (s *PostgresStore) ListByDepartment(ctx context.Context, department string) ([]*models.Identity, error) {
	return s.list(ctx, "list identities by department", `WHERE department = $1`, department)
}

// Search matches keyword case-insensitively against email, first and last
// name. The keyword is a plain substring, not a LIKE pattern.
func (s *PostgresStore) Search(ctx context.Context, keyword string) ([]*models.Identity, error) {
	return s.list(ctx, "search identities", `
		WHERE STRPOS(LOWER(email), LOWER($1)) > 0
		   OR STRPOS(LOWER(first_name), LOWER($1)) > 0
		   OR STRPOS(LOWER(last_name), LOWER($1)) > 0`, keyword)
}

// ListExpiredStudents selects active student accounts whose graduation year
// is before currentYear. Rows are locked for the enclosing transaction.
func (s *PostgresStore) ListExpiredStudents(ctx context.Context, currentYear int) ([]*models.Identity, error) {
	return s.listForUpdate(ctx, "list expired students", `
		WHERE status = 'active'
		  AND account_type = 'student'
		  AND grad_year IS NOT NULL
		  AND grad_year < $1`, currentYear)
}

// ListStudentsNearingExpiry selects active students graduating in targetYear
// that have not been warned yet.
func (s *PostgresStore) ListStudentsNearingExpiry(ctx context.Context, targetYear int) ([]*models.Identity, error) {
	return s.listForUpdate(ctx, "list students nearing expiry", `
		WHERE status = 'active'
		  AND account_type = 'student'
		  AND grad_year = $1
		  AND expiry_warning_sent_at IS NULL`, targetYear)
}

func (s *PostgresStore) CountByRole(ctx context.Context, role models.Role) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM identities WHERE role = $1`, string(role))
}

func (s *PostgresStore) CountByStatus(ctx context.Context, status models.Status) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM identities WHERE status = $1`, string(status))
}

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM identities`)
}

func (s *PostgresStore) Create(ctx context.Context, identity *models.Identity) error {
	query := `
		INSERT INTO identities (` + identityColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		identity.ID,
		identity.Email,
		identity.FirstName,
		identity.LastName,
		string(identity.Role),
		string(identity.Status),
		string(identity.AccountType),
		nullString(identity.PhoneNumber),
		nullString(identity.Department),
		nullString(identity.MatricNumber),
		nullString(identity.StaffID),
		nullInt(identity.GradYear),
		identity.EmailVerified,
		identity.AccountNotExpired,
		identity.AccountNotLocked,
		identity.CreatedAt,
		identity.UpdatedAt,
		nullTime(identity.LastLoginAt),
		nullTime(identity.ExpiryWarningSentAt),
	)
	if err != nil {
		return translateError(err, "create identity")
	}
	return nil
}

// Update replaces every mutable column of an existing identity.
func (s *PostgresStore) Update(ctx context.Context, identity *models.Identity) error {
	query := `
		UPDATE identities SET
			email = $2,
			first_name = $3,
			last_name = $4,
			role = $5,
			status = $6,
			account_type = $7,
			phone_number = $8,
			department = $9,
			matric_number = $10,
			staff_id = $11,
			grad_year = $12,
			email_verified = $13,
			account_not_expired = $14,
			account_not_locked = $15,
			updated_at = $16,
			last_login_at = $17,
			expiry_warning_sent_at = $18
		WHERE id = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		identity.ID,
		identity.Email,
		identity.FirstName,
		identity.LastName,
		string(identity.Role),
		string(identity.Status),
		string(identity.AccountType),
		nullString(identity.PhoneNumber),
		nullString(identity.Department),
		nullString(identity.MatricNumber),
		nullString(identity.StaffID),
		nullInt(identity.GradYear),
		identity.EmailVerified,
		identity.AccountNotExpired,
		identity.AccountNotLocked,
		identity.UpdatedAt,
		nullTime(identity.LastLoginAt),
		nullTime(identity.ExpiryWarningSentAt),
	)
	if err != nil {
		return translateError(err, "update identity")
	}
	return requireAffected(res, "update identity")
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM identities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	return requireAffected(res, "delete identity")
}

// DeleteMany removes every listed identity in one statement.
func (s *PostgresStore) DeleteMany(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}
	res, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM identities WHERE id = ANY($1::uuid[])`, pq.Array(raw))
	if err != nil {
		return 0, fmt.Errorf("delete identities batch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete identities batch: %w", err)
	}
	return n, nil
}

// RunInTx runs fn inside a database transaction bound to the context it
// receives. Nested calls join the outer transaction.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := tx.From(ctx); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(tx.WithTx(ctx, sqlTx)); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return translateError(err, "commit transaction")
	}
	return nil
}

// lockClause returns FOR UPDATE when ctx carries a transaction.
func (s *PostgresStore) lockClause(ctx context.Context) string {
	if _, ok := tx.From(ctx); ok {
		return ` FOR UPDATE`
	}
	return ``
}

func (s *PostgresStore) list(ctx context.Context, op, where string, args ...any) ([]*models.Identity, error) {
	return s.query(ctx, op, where+` ORDER BY created_at, id`, args...)
}

func (s *PostgresStore) listForUpdate(ctx context.Context, op, where string, args ...any) ([]*models.Identity, error) {
	return s.query(ctx, op, where+` ORDER BY created_at, id`+s.lockClause(ctx), args...)
}

func (s *PostgresStore) query(ctx context.Context, op, clauses string, args ...any) ([]*models.Identity, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `SELECT `+identityColumns+` FROM identities `+clauses, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]*models.Identity, 0)
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (s *PostgresStore) exists(ctx context.Context, query string, arg any) (bool, error) {
	var exists bool
	if err := s.execer(ctx).QueryRowContext(ctx, query, arg).Scan(&exists); err != nil {
		return false, fmt.Errorf("check identity exists: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	if err := s.execer(ctx).QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*models.Identity, error) {
	var (
		identity                           models.Identity
		role, status, accountType          string
		phone, department, matric, staffID sql.NullString
		gradYear                           sql.NullInt64
		lastLoginAt, expiryWarningSentAt   sql.NullTime
	)
	err := row.Scan(
		&identity.ID,
		&identity.Email,
		&identity.FirstName,
		&identity.LastName,
		&role,
		&status,
		&accountType,
		&phone,
		&department,
		&matric,
		&staffID,
		&gradYear,
		&identity.EmailVerified,
		&identity.AccountNotExpired,
		&identity.AccountNotLocked,
		&identity.CreatedAt,
		&identity.UpdatedAt,
		&lastLoginAt,
		&expiryWarningSentAt,
	)
	if err != nil {
		return nil, err
	}
	identity.Role = models.Role(role)
	identity.Status = models.Status(status)
	identity.AccountType = models.AccountType(accountType)
	identity.PhoneNumber = fromNullString(phone)
	identity.Department = fromNullString(department)
	identity.MatricNumber = fromNullString(matric)
	identity.StaffID = fromNullString(staffID)
	if gradYear.Valid {
		y := int(gradYear.Int64)
		identity.GradYear = &y
	}
	identity.LastLoginAt = fromNullTime(lastLoginAt)
	identity.ExpiryWarningSentAt = fromNullTime(expiryWarningSentAt)
	return &identity, nil
}

// translateError turns unique index violations into *UniqueViolation.
func translateError(err error, op string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolationCode {
		if field, ok := constraintFields[pqErr.Constraint]; ok {
			return &UniqueViolation{Field: field}
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func requireAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func fromNullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
