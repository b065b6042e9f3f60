package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desacikupa/umkmdesa/internal/telemetry/tracing"
	"github.com/desacikupa/umkmdesa/pkg"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

const userColumns = `id, email, password, nama, role, created_at`

var _ CredentialStore = (*Repo)(nil)

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) FindByID(ctx context.Context, id string) (_ *User, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.pengguna.findById")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()
	span.SetAttributes(attribute.String("user.id", id))

	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM pengguna WHERE id = $1`, id)
	return scanUser(row)
}

func (r *Repo) FindByEmail(ctx context.Context, email string) (_ *User, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.pengguna.findByEmail")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM pengguna WHERE email = $1`, email)
	return scanUser(row)
}

// Create inserts the user, assigning a new id and creation time when unset.
func (r *Repo) Create(ctx context.Context, user *User) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.pengguna.create")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	_, err = r.db.Exec(
		ctx,
		`INSERT INTO pengguna (id, email, password, nama, role, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Email, user.PasswordHash, user.Nama, user.Role.String(), user.CreatedAt,
	)
	if err != nil {
		if pkg.IsUniqueViolationError(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// Update overwrites email, nama, password hash and role of an existing user.
func (r *Repo) Update(ctx context.Context, user *User) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.pengguna.update")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()
	span.SetAttributes(attribute.String("user.id", user.ID))

	tag, err := r.db.Exec(
		ctx,
		`UPDATE pengguna SET email = $1, password = $2, nama = $3, role = $4 WHERE id = $5`,
		user.Email, user.PasswordHash, user.Nama, user.Role.String(), user.ID,
	)
	if err != nil {
		if pkg.IsUniqueViolationError(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (r *Repo) Delete(ctx context.Context, id string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.pengguna.delete")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()
	span.SetAttributes(attribute.String("user.id", id))

	tag, err := r.db.Exec(ctx, `DELETE FROM pengguna WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ListByRole returns users with the given role, newest first.
func (r *Repo) ListByRole(ctx context.Context, role Role) (_ []*User, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.pengguna.listByRole")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	rows, err := r.db.Query(
		ctx,
		`SELECT `+userColumns+` FROM pengguna WHERE role = $1 ORDER BY created_at DESC`,
		role.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users rows: %w", err)
	}

	return users, nil
}

func (r *Repo) CountByRole(ctx context.Context, role Role) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.pengguna.countByRole")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM pengguna WHERE role = $1`, role.String()).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

// EmailTaken reports whether a user other than excludeID already uses email.
func (r *Repo) EmailTaken(ctx context.Context, email, excludeID string) (_ bool, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.pengguna.emailTaken")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	var taken bool
	err = r.db.QueryRow(
		ctx,
		`SELECT EXISTS (SELECT 1 FROM pengguna WHERE email = $1 AND id <> $2)`,
		email, excludeID,
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return taken, nil
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		u    User
		role string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Nama, &role, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	parsedRole, err := ParseRole(role)
	if err != nil {
		return nil, err
	}
	u.Role = parsedRole

	return &u, nil
}
