package category

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

var (
	ErrCategoryNotFound = errors.New("category not found")
	ErrCategoryExists   = errors.New("category already exists")
)

type Category struct {
	ID        string    `json:"id"`
	Nama      string    `json:"nama"`
	CreatedAt time.Time `json:"createdAt"`
}

type UsageCount struct {
	UMKM int `json:"umkm"`
}

// WithCount is a category together with the number of UMKM that belong to it.
type WithCount struct {
	Category
	Count UsageCount `json:"_count"`
}

var _ categoryRepo = (*Repo)(nil)

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

// List returns all categories ordered by name.
func (r *Repo) List(ctx context.Context) (_ []*WithCount, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.kategori.list")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	rows, err := r.db.Query(ctx, `
		SELECT k.id, k.nama, k.created_at, COUNT(uk.umkm_id)
		FROM kategori_umkm k
		LEFT JOIN umkm_kategori uk ON uk.kategori_id = k.id
		GROUP BY k.id, k.nama, k.created_at
		ORDER BY k.nama ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := make([]*WithCount, 0)
	for rows.Next() {
		var c WithCount
		if err := rows.Scan(&c.ID, &c.Nama, &c.CreatedAt, &c.Count.UMKM); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list categories rows: %w", err)
	}

	return categories, nil
}

func (r *Repo) Create(ctx context.Context, nama string) (_ *Category, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.kategori.create")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	c := &Category{
		ID:        uuid.NewString(),
		Nama:      nama,
		CreatedAt: time.Now(),
	}
	_, err = r.db.Exec(
		ctx,
		`INSERT INTO kategori_umkm (id, nama, created_at) VALUES ($1, $2, $3)`,
		c.ID, c.Nama, c.CreatedAt,
	)
	if err != nil {
		if pkg.IsUniqueViolationError(err) {
			return nil, ErrCategoryExists
		}
		return nil, fmt.Errorf("insert category: %w", err)
	}
	return c, nil
}

func (r *Repo) Update(ctx context.Context, id, nama string) (_ *Category, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.kategori.update")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()
	span.SetAttributes(attribute.String("kategori.id", id))

	var c Category
	err = r.db.QueryRow(
		ctx,
		`UPDATE kategori_umkm SET nama = $1 WHERE id = $2 RETURNING id, nama, created_at`,
		nama, id,
	).Scan(&c.ID, &c.Nama, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		if pkg.IsUniqueViolationError(err) {
			return nil, ErrCategoryExists
		}
		return nil, fmt.Errorf("update category: %w", err)
	}
	return &c, nil
}

// Delete removes the category; UMKM keep existing, only the membership goes away.
func (r *Repo) Delete(ctx context.Context, id string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.kategori.delete")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()
	span.SetAttributes(attribute.String("kategori.id", id))

	tag, err := r.db.Exec(ctx, `DELETE FROM kategori_umkm WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

// NameTaken reports whether a category other than excludeID already has the name.
func (r *Repo) NameTaken(ctx context.Context, nama, excludeID string) (_ bool, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.kategori.nameTaken")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	var taken bool
	err = r.db.QueryRow(
		ctx,
		`SELECT EXISTS (SELECT 1 FROM kategori_umkm WHERE nama = $1 AND id <> $2)`,
		nama, excludeID,
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check category name: %w", err)
	}
	return taken, nil
}

func (r *Repo) Count(ctx context.Context) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.kategori.count")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM kategori_umkm`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count categories: %w", err)
	}
	return count, nil
}
