package umkm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/desacikupa/umkmdesa/internal/category"
	"github.com/desacikupa/umkmdesa/internal/telemetry/tracing"
	"github.com/desacikupa/umkmdesa/pkg"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

const businessColumns = `id, nama_umkm, deskripsi, alamat_fisik, url_google_maps, kontak_whatsapp, created_at, updated_at`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ umkmRepo = (*Repo)(nil)

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

// List returns the businesses matching the filter, newest first. Every item carries
// its categories and only its most recent image.
func (r *Repo) List(ctx context.Context, filter ListFilter) (_ []*Business, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.umkm.list")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()
	span.SetAttributes(attribute.String("filter.kategori", filter.KategoriID))
	span.SetAttributes(attribute.String("filter.search", filter.Search))

	search := ""
	if filter.Search != "" {
		search = "%" + likeEscaper.Replace(filter.Search) + "%"
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+businessColumns+`
		FROM umkm u
		WHERE ($1::text = '' OR EXISTS (
				SELECT 1 FROM umkm_kategori uk WHERE uk.umkm_id = u.id AND uk.kategori_id = $1
			))
			AND ($2::text = '' OR u.nama_umkm ILIKE $2)
		ORDER BY u.created_at DESC
	`, filter.KategoriID, search)
	if err != nil {
		return nil, fmt.Errorf("list umkm: %w", err)
	}
	defer rows.Close()

	businesses := make([]*Business, 0)
	byID := make(map[string]*Business)
	var ids []string
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, err
		}
		businesses = append(businesses, b)
		byID[b.ID] = b
		ids = append(ids, b.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list umkm rows: %w", err)
	}

	if len(ids) == 0 {
		return businesses, nil
	}

	if err := loadCategories(ctx, r.db, ids, byID); err != nil {
		return nil, err
	}

	imgRows, err := r.db.Query(ctx, `
		SELECT DISTINCT ON (umkm_id) id, url, umkm_id, created_at
		FROM gambar_umkm
		WHERE umkm_id = ANY($1)
		ORDER BY umkm_id, created_at DESC
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("list latest images: %w", err)
	}
	defer imgRows.Close()

	for imgRows.Next() {
		img, err := scanImage(imgRows)
		if err != nil {
			return nil, err
		}
		if b, ok := byID[img.UMKMID]; ok {
			b.Gambar = append(b.Gambar, img)
		}
	}
	if err := imgRows.Err(); err != nil {
		return nil, fmt.Errorf("list latest images rows: %w", err)
	}

	return businesses, nil
}

// Get returns a business with its categories and all of its images, newest first.
func (r *Repo) Get(ctx context.Context, id string) (_ *Business, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.umkm.get")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()
	span.SetAttributes(attribute.String("umkm.id", id))

	return getBusiness(ctx, r.db, id)
}

func (r *Repo) Create(ctx context.Context, fields Fields) (_ *Business, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.umkm.create")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
				err = fmt.Errorf("failed to rollback transaction: %w: %w", rollbackErr, err)
			}
		} else {
			err = tx.Commit(ctx)
		}
	}()

	id := uuid.NewString()
	_, err = tx.Exec(ctx, `
		INSERT INTO umkm (id, nama_umkm, deskripsi, alamat_fisik, url_google_maps, kontak_whatsapp)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		id,
		fields.NamaUMKM,
		fields.Deskripsi,
		fields.AlamatFisik,
		fields.URLGoogleMaps,
		fields.KontakWhatsapp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert umkm: %w", err)
	}

	if err = linkCategories(ctx, tx, id, fields.KategoriIDs); err != nil {
		return nil, err
	}

	return getBusiness(ctx, tx, id)
}

// Update overwrites all fields of the business and replaces its category set.
func (r *Repo) Update(ctx context.Context, id string, fields Fields) (_ *Business, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.umkm.update")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()
	span.SetAttributes(attribute.String("umkm.id", id))

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
				err = fmt.Errorf("failed to rollback transaction: %w: %w", rollbackErr, err)
			}
		} else {
			err = tx.Commit(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `
		UPDATE umkm
		SET nama_umkm = $2, deskripsi = $3, alamat_fisik = $4, url_google_maps = $5,
			kontak_whatsapp = $6, updated_at = now()
		WHERE id = $1
	`,
		id,
		fields.NamaUMKM,
		fields.Deskripsi,
		fields.AlamatFisik,
		fields.URLGoogleMaps,
		fields.KontakWhatsapp,
	)
	if err != nil {
		return nil, fmt.Errorf("update umkm: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrUMKMNotFound
	}

	if _, err = tx.Exec(ctx, `DELETE FROM umkm_kategori WHERE umkm_id = $1`, id); err != nil {
		return nil, fmt.Errorf("clear umkm categories: %w", err)
	}
	if err = linkCategories(ctx, tx, id, fields.KategoriIDs); err != nil {
		return nil, err
	}

	return getBusiness(ctx, tx, id)
}

// Delete removes the business together with its category links and image rows, and
// returns the urls of the removed images so the stored objects can be cleaned up.
func (r *Repo) Delete(ctx context.Context, id string) (_ []string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.umkm.delete")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()
	span.SetAttributes(attribute.String("umkm.id", id))

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
				err = fmt.Errorf("failed to rollback transaction: %w: %w", rollbackErr, err)
			}
		} else {
			err = tx.Commit(ctx)
		}
	}()

	rows, err := tx.Query(ctx, `SELECT url FROM gambar_umkm WHERE umkm_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("list umkm image urls: %w", err)
	}
	urls, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect umkm image urls: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM umkm WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("delete umkm: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrUMKMNotFound
	}

	return urls, nil
}

func (r *Repo) Exists(ctx context.Context, id string) (_ bool, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.umkm.exists")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM umkm WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check umkm exists: %w", err)
	}
	return exists, nil
}

func (r *Repo) Count(ctx context.Context) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.umkm.count")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM umkm`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count umkm: %w", err)
	}
	return count, nil
}

func (r *Repo) AddImage(ctx context.Context, umkmID, url string) (_ *Image, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.umkm.addImage")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()
	span.SetAttributes(attribute.String("umkm.id", umkmID))

	img, err := scanImage(r.db.QueryRow(ctx, `
		INSERT INTO gambar_umkm (id, url, umkm_id)
		VALUES ($1, $2, $3)
		RETURNING id, url, umkm_id, created_at
	`, uuid.NewString(), url, umkmID))
	if err != nil {
		if pkg.IsForeignKeyViolationError(err) {
			return nil, ErrUMKMNotFound
		}
		return nil, err
	}
	return img, nil
}

func (r *Repo) GetImage(ctx context.Context, umkmID, imageID string) (_ *Image, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.umkm.getImage")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()
	span.SetAttributes(attribute.String("image.id", imageID))

	img, err := scanImage(r.db.QueryRow(ctx, `
		SELECT id, url, umkm_id, created_at
		FROM gambar_umkm
		WHERE id = $1 AND umkm_id = $2
	`, imageID, umkmID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrImageNotFound
	}
	return img, err
}

func (r *Repo) DeleteImage(ctx context.Context, umkmID, imageID string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.umkm.deleteImage")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()
	span.SetAttributes(attribute.String("image.id", imageID))

	tag, err := r.db.Exec(ctx, `DELETE FROM gambar_umkm WHERE id = $1 AND umkm_id = $2`, imageID, umkmID)
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrImageNotFound
	}
	return nil
}

func getBusiness(ctx context.Context, q querier, id string) (*Business, error) {
	b, err := scanBusiness(q.QueryRow(ctx, `SELECT `+businessColumns+` FROM umkm WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUMKMNotFound
		}
		return nil, err
	}

	if err := loadCategories(ctx, q, []string{id}, map[string]*Business{id: b}); err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT id, url, umkm_id, created_at
		FROM gambar_umkm
		WHERE umkm_id = $1
		ORDER BY created_at DESC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("list umkm images: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		b.Gambar = append(b.Gambar, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list umkm images rows: %w", err)
	}

	return b, nil
}

func loadCategories(ctx context.Context, q querier, ids []string, byID map[string]*Business) error {
	rows, err := q.Query(ctx, `
		SELECT uk.umkm_id, k.id, k.nama, k.created_at
		FROM umkm_kategori uk
		JOIN kategori_umkm k ON k.id = uk.kategori_id
		WHERE uk.umkm_id = ANY($1)
		ORDER BY k.nama
	`, ids)
	if err != nil {
		return fmt.Errorf("list umkm categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			umkmID string
			c      category.Category
		)
		if err := rows.Scan(&umkmID, &c.ID, &c.Nama, &c.CreatedAt); err != nil {
			return fmt.Errorf("scan umkm category: %w", err)
		}
		if b, ok := byID[umkmID]; ok {
			b.Kategori = append(b.Kategori, c)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list umkm categories rows: %w", err)
	}
	return nil
}

func linkCategories(ctx context.Context, q querier, umkmID string, kategoriIDs []string) error {
	ids := uniqueIDs(kategoriIDs)
	if len(ids) == 0 {
		return nil
	}

	_, err := q.Exec(ctx, `
		INSERT INTO umkm_kategori (umkm_id, kategori_id)
		SELECT $1, unnest($2::text[])
	`, umkmID, ids)
	if err != nil {
		if pkg.IsForeignKeyViolationError(err) {
			return ErrUnknownCategory
		}
		return fmt.Errorf("link umkm categories: %w", err)
	}
	return nil
}

func scanBusiness(row pgx.Row) (*Business, error) {
	b := &Business{
		Kategori: []category.Category{},
		Gambar:   []*Image{},
	}
	err := row.Scan(
		&b.ID,
		&b.NamaUMKM,
		&b.Deskripsi,
		&b.AlamatFisik,
		&b.URLGoogleMaps,
		&b.KontakWhatsapp,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan umkm: %w", err)
	}
	return b, nil
}

func scanImage(row pgx.Row) (*Image, error) {
	img := &Image{}
	if err := row.Scan(&img.ID, &img.URL, &img.UMKMID, &img.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan image: %w", err)
	}
	return img, nil
}
