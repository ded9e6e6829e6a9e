package catalog

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a course or section does not exist or is
	// not published.
	ErrNotFound = errors.New("catalog item not found")
	// ErrInvalidItemRef is returned when an item reference names both a
	// course and a section, or neither.
	ErrInvalidItemRef = errors.New("exactly one of course_id or section_id is required")
)

// ItemKind tells whether a purchasable item is a whole course or one section.
type ItemKind string

const (
	KindCourse  ItemKind = "course"
	KindSection ItemKind = "section"
)

// ItemRef points at a purchasable item. Exactly one of CourseID and SectionID
// is non-zero.
type ItemRef struct {
	CourseID  int64
	SectionID int64
}

// CourseRef returns a reference to a whole course.
func CourseRef(id int64) ItemRef { return ItemRef{CourseID: id} }

// SectionRef returns a reference to a single section.
func SectionRef(id int64) ItemRef { return ItemRef{SectionID: id} }

// Validate reports ErrInvalidItemRef unless exactly one id is set.
func (r ItemRef) Validate() error {
	if (r.CourseID > 0) == (r.SectionID > 0) {
		return ErrInvalidItemRef
	}
	if r.CourseID < 0 || r.SectionID < 0 {
		return ErrInvalidItemRef
	}
	return nil
}

// Kind returns the kind of the referenced item.
func (r ItemRef) Kind() ItemKind {
	if r.SectionID > 0 {
		return KindSection
	}
	return KindCourse
}

// ID returns the id of whichever item is referenced.
func (r ItemRef) ID() int64 {
	if r.SectionID > 0 {
		return r.SectionID
	}
	return r.CourseID
}

func (r ItemRef) String() string {
	return fmt.Sprintf("%s:%d", r.Kind(), r.ID())
}

// ItemNotFoundError indicates the referenced course or section is unknown or
// unpublished.
type ItemNotFoundError struct {
	Ref ItemRef
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Ref.Kind(), e.Ref.ID())
}

func (e *ItemNotFoundError) Is(target error) bool { return target == ErrNotFound }

// Course is a catalog course, optionally with its sections.
type Course struct {
	ID            int64
	Slug          string
	Title         string
	Category      string
	Price         decimal.Decimal
	DiscountPrice *decimal.Decimal
	IsFree        bool
	IsPublished   bool
	Sections      []Section
}

// EffectivePrice is the discount price when one is set, otherwise the list price.
func (c Course) EffectivePrice() decimal.Decimal {
	if c.DiscountPrice != nil {
		return *c.DiscountPrice
	}
	return c.Price
}

// Section is a separately purchasable part of a course.
type Section struct {
	ID       int64
	CourseID int64
	Title    string
	Position int
	Price    *decimal.Decimal
	IsFree   bool
}

// EffectivePrice is the explicit section price, or zero when unset.
func (s Section) EffectivePrice() decimal.Decimal {
	if s.Price != nil {
		return *s.Price
	}
	return decimal.Zero
}

// Item is a priced, purchasable course or section.
type Item struct {
	Ref   ItemRef
	Title string
	Price decimal.Decimal
}

// Repository defines read operations for the course catalog. Only published
// courses (and sections of published courses) are visible.
type Repository interface {
	ListCourses(ctx context.Context, category string) ([]Course, error)
	GetCourseBySlug(ctx context.Context, slug string) (*Course, error)
	FindItem(ctx context.Context, ref ItemRef) (*Item, error)
}
