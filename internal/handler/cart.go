package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/academy-ledger/internal/domain/auth"
	"github.com/xenking/academy-ledger/internal/domain/catalog"
	"github.com/xenking/academy-ledger/internal/domain/purchase"
	"github.com/xenking/academy-ledger/internal/domain/referral"
)

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request, id auth.Identity) error {
	v, err := h.svc.Carts.Get(r.Context(), id.UserID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCartView(e, v) })
	return nil
}

// addCartItem takes {"course_id": n} or {"section_id": n}.
func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request, id auth.Identity) error {
	var ref catalog.ItemRef
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "course_id":
			ref.CourseID, err = decodeInt64(d, key)
		case "section_id":
			ref.SectionID, err = decodeInt64(d, key)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return err
	}
	if err := ref.Validate(); err != nil {
		return err
	}

	v, err := h.svc.Carts.AddItem(r.Context(), id.UserID, ref)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCartView(e, v) })
	return nil
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request, id auth.Identity) error {
	itemID, err := pathID(r, "id")
	if err != nil {
		return err
	}
	v, err := h.svc.Carts.RemoveItem(r.Context(), id.UserID, itemID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCartView(e, v) })
	return nil
}

func (h *Handler) applyReferral(w http.ResponseWriter, r *http.Request, id auth.Identity) error {
	var code string
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "code" {
			return d.Skip()
		}
		s, err := d.Str()
		code = s
		return err
	})
	if err != nil {
		return err
	}
	if code == "" {
		return invalidRequest("code is required")
	}

	v, err := h.svc.Carts.ApplyReferral(r.Context(), id.UserID, code)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCartView(e, v) })
	return nil
}

func (h *Handler) removeReferral(w http.ResponseWriter, r *http.Request, id auth.Identity) error {
	v, err := h.svc.Carts.RemoveReferral(r.Context(), id.UserID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCartView(e, v) })
	return nil
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request, id auth.Identity) error {
	res, err := h.svc.Checkout.Checkout(r.Context(), id.UserID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("payment_mode")
		e.Str(string(h.svc.Checkout.Mode()))
		encodePricing(e, res.Pricing)
		if res.DroppedReferral != referral.ReasonNone {
			e.FieldStart("referral_dropped")
			e.Str(string(res.DroppedReferral))
		}
		encodeArray(e, "purchases", res.Purchases, encodePurchase)
		encodeArray(e, "enrollments", res.Enrollments, encodeEnrollment)
		e.ObjEnd()
	})
	return nil
}

func (h *Handler) myPurchases(w http.ResponseWriter, r *http.Request, id auth.Identity) error {
	ps, err := h.svc.Purchases.List(r.Context(), purchase.Filter{UserID: id.UserID})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		encodeArray(e, "purchases", ps, encodePurchase)
		e.ObjEnd()
	})
	return nil
}

func (h *Handler) myEnrollments(w http.ResponseWriter, r *http.Request, id auth.Identity) error {
	es, err := h.svc.Enrollments.ListForUser(r.Context(), id.UserID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		encodeArray(e, "enrollments", es, encodeEnrollment)
		e.ObjEnd()
	})
	return nil
}
