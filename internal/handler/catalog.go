package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/academy-ledger/internal/domain/catalog"
)

func (h *Handler) listCourses(w http.ResponseWriter, r *http.Request) error {
	courses, err := h.svc.Catalog.ListCourses(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		encodeArray(e, "courses", courses, func(e *jx.Encoder, c *catalog.Course) {
			encodeCourse(e, c, false)
		})
		e.ObjEnd()
	})
	return nil
}

func (h *Handler) getCourse(w http.ResponseWriter, r *http.Request) error {
	c, err := h.svc.Catalog.GetCourseBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCourse(e, c, true) })
	return nil
}

// validateReferral never fails for an unusable code; the verdict carries the
// reason instead.
func (h *Handler) validateReferral(w http.ResponseWriter, r *http.Request) error {
	code := r.URL.Query().Get("code")
	if code == "" {
		return invalidRequest("code is required")
	}
	v, err := h.svc.Validator.Check(r.Context(), code)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("valid")
		e.Bool(v.Valid)
		if !v.Valid {
			e.FieldStart("reason")
			e.Str(string(v.Reason))
		}
		if v.Valid && v.Code != nil {
			encodePercent(e, "discount_percentage", v.Code.DiscountPercentage)
		}
		e.ObjEnd()
	})
	return nil
}
