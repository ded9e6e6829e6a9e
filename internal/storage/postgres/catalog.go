package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/academy-ledger/internal/domain/catalog"
)

const (
	courseColumns = `id, slug, title, category, price, discount_price, is_free, is_published`

	listCoursesSQL = `SELECT ` + courseColumns + `
		FROM courses
		WHERE is_published AND ($1::text = '' OR category = $1)
		ORDER BY created_at DESC, id DESC`

	getCourseBySlugSQL = `SELECT ` + courseColumns + ` FROM courses WHERE slug = $1 AND is_published`

	listSectionsSQL = `SELECT id, course_id, title, position, price, is_free
		FROM sections WHERE course_id = $1 ORDER BY position, id`

	findCourseItemSQL = `SELECT title, COALESCE(discount_price, price)
		FROM courses WHERE id = $1 AND is_published`

	findSectionItemSQL = `SELECT c.title || ': ' || s.title, COALESCE(s.price, 0)
		FROM sections s JOIN courses c ON c.id = s.course_id
		WHERE s.id = $1 AND c.is_published`

	upsertCourseSQL = `INSERT INTO courses (slug, title, category, price, discount_price, is_free, is_published)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (slug) DO UPDATE SET
			title = EXCLUDED.title,
			category = EXCLUDED.category,
			price = EXCLUDED.price,
			discount_price = EXCLUDED.discount_price,
			is_free = EXCLUDED.is_free,
			is_published = EXCLUDED.is_published
		RETURNING id`

	upsertSectionSQL = `INSERT INTO sections (course_id, title, position, price, is_free)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (course_id, position) DO UPDATE SET
			title = EXCLUDED.title,
			price = EXCLUDED.price,
			is_free = EXCLUDED.is_free
		RETURNING id`
)

var _ catalog.Repository = (*CatalogRepository)(nil)

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
type CatalogRepository struct {
	db DBTX
}

// NewCatalogRepository returns a CatalogRepository that uses the given connection.
func NewCatalogRepository(db DBTX) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// ListCourses returns published courses, newest first, optionally filtered by category.
func (r *CatalogRepository) ListCourses(ctx context.Context, category string) ([]catalog.Course, error) {
	rows, err := r.db.Query(ctx, listCoursesSQL, category)
	if err != nil {
		return nil, fmt.Errorf("listing courses: %w", err)
	}
	return pgx.CollectRows(rows, scanCourse)
}

// GetCourseBySlug returns a published course with its sections.
func (r *CatalogRepository) GetCourseBySlug(ctx context.Context, slug string) (*catalog.Course, error) {
	rows, err := r.db.Query(ctx, getCourseBySlugSQL, slug)
	if err != nil {
		return nil, fmt.Errorf("getting course %q: %w", slug, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCourse)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting course %q: %w", slug, err)
	}

	rows, err = r.db.Query(ctx, listSectionsSQL, c.ID)
	if err != nil {
		return nil, fmt.Errorf("listing sections of %q: %w", slug, err)
	}
	c.Sections, err = pgx.CollectRows(rows, scanSection)
	if err != nil {
		return nil, fmt.Errorf("listing sections of %q: %w", slug, err)
	}
	return &c, nil
}

// FindItem returns the title and effective price of a published course or
// a section of a published course.
func (r *CatalogRepository) FindItem(ctx context.Context, ref catalog.ItemRef) (*catalog.Item, error) {
	query := findCourseItemSQL
	if ref.Kind() == catalog.KindSection {
		query = findSectionItemSQL
	}

	item := catalog.Item{Ref: ref}
	err := r.db.QueryRow(ctx, query, ref.ID()).Scan(&item.Title, &item.Price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &catalog.ItemNotFoundError{Ref: ref}
		}
		return nil, fmt.Errorf("finding %s: %w", ref, err)
	}
	return &item, nil
}

// UpsertCourse inserts or updates a course by slug, then its sections by
// position, and returns the course id.
func (r *CatalogRepository) UpsertCourse(ctx context.Context, c catalog.Course) (int64, error) {
	var discount decimal.NullDecimal
	if c.DiscountPrice != nil {
		discount = decimal.NewNullDecimal(*c.DiscountPrice)
	}

	var id int64
	err := r.db.QueryRow(ctx, upsertCourseSQL,
		c.Slug, c.Title, c.Category, c.Price, discount, c.IsFree, c.IsPublished,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upserting course %q: %w", c.Slug, err)
	}

	for _, s := range c.Sections {
		var price decimal.NullDecimal
		if s.Price != nil {
			price = decimal.NewNullDecimal(*s.Price)
		}
		if _, err := r.db.Exec(ctx, upsertSectionSQL, id, s.Title, s.Position, price, s.IsFree); err != nil {
			return 0, fmt.Errorf("upserting section %d of %q: %w", s.Position, c.Slug, err)
		}
	}
	return id, nil
}

func scanCourse(row pgx.CollectableRow) (catalog.Course, error) {
	var (
		c        catalog.Course
		discount decimal.NullDecimal
	)
	err := row.Scan(&c.ID, &c.Slug, &c.Title, &c.Category, &c.Price, &discount, &c.IsFree, &c.IsPublished)
	if err != nil {
		return catalog.Course{}, err
	}
	if discount.Valid {
		c.DiscountPrice = &discount.Decimal
	}
	return c, nil
}

func scanSection(row pgx.CollectableRow) (catalog.Section, error) {
	var (
		s     catalog.Section
		price decimal.NullDecimal
	)
	if err := row.Scan(&s.ID, &s.CourseID, &s.Title, &s.Position, &price, &s.IsFree); err != nil {
		return catalog.Section{}, err
	}
	if price.Valid {
		s.Price = &price.Decimal
	}
	return s, nil
}
