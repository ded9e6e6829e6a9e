package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/academy-ledger/internal/domain/auth"
	"github.com/xenking/academy-ledger/internal/domain/commission"
	"github.com/xenking/academy-ledger/internal/domain/purchase"
	"github.com/xenking/academy-ledger/internal/domain/referral"
)

const dateLayout = "2006-01-02"

// listCommissions filters by status, marketer and creation date, with from
// and to read the same way as for purchases.
func (h *Handler) listCommissions(w http.ResponseWriter, r *http.Request, _ auth.Identity) error {
	var f commission.Filter
	q := r.URL.Query()
	if s := q.Get("status"); s != "" {
		st, err := commission.ParseStatus(s)
		if err != nil {
			return err
		}
		f.Status = st
	}
	if s := q.Get("marketer_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			return invalidRequest("marketer_id must be a positive integer")
		}
		f.MarketerID = id
	}
	var err error
	if f.From, err = parseBound(q.Get("from"), "from", false); err != nil {
		return err
	}
	if f.To, err = parseBound(q.Get("to"), "to", true); err != nil {
		return err
	}
	if err := f.Validate(); err != nil {
		return err
	}

	cs, err := h.svc.Commissions.List(r.Context(), f)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		encodeTotals(e, commission.Summarize(cs))
		encodeArray(e, "commissions", cs, encodeCommission)
		e.ObjEnd()
	})
	return nil
}

func (h *Handler) markCommissionPaid(w http.ResponseWriter, r *http.Request, _ auth.Identity) error {
	return h.transitionCommission(w, r, h.svc.Commissions.MarkPaid)
}

func (h *Handler) cancelCommission(w http.ResponseWriter, r *http.Request, _ auth.Identity) error {
	return h.transitionCommission(w, r, h.svc.Commissions.Cancel)
}

func (h *Handler) transitionCommission(
	w http.ResponseWriter,
	r *http.Request,
	apply func(ctx context.Context, id int64) (*commission.Commission, error),
) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	c, err := apply(r.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCommission(e, c) })
	return nil
}

// listPurchases filters by status and by creation date. from and to are
// dates (inclusive) or RFC 3339 instants.
func (h *Handler) listPurchases(w http.ResponseWriter, r *http.Request, _ auth.Identity) error {
	var f purchase.Filter
	q := r.URL.Query()
	if s := q.Get("status"); s != "" {
		st, err := purchase.ParseStatus(s)
		if err != nil {
			return err
		}
		f.Status = st
	}
	var err error
	if f.From, err = parseBound(q.Get("from"), "from", false); err != nil {
		return err
	}
	if f.To, err = parseBound(q.Get("to"), "to", true); err != nil {
		return err
	}
	if err := f.Validate(); err != nil {
		return err
	}

	ps, err := h.svc.Purchases.List(r.Context(), f)
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

// parseBound parses a filter bound. An upper date bound becomes the start of
// the next day so the whole day is included.
func parseBound(s, name string, upper bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		if upper {
			t = t.AddDate(0, 0, 1)
		}
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, invalidRequest("%s must be YYYY-MM-DD or RFC 3339", name)
	}
	return t, nil
}

func (h *Handler) refundPurchase(w http.ResponseWriter, r *http.Request, _ auth.Identity) error {
	p, err := h.svc.Checkout.Refund(r.Context(), r.PathValue("id"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodePurchase(e, p) })
	return nil
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request, _ auth.Identity) error {
	s, err := h.svc.Referrals.Settings(r.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeSettings(e, s) })
	return nil
}

// putSettings takes {"discount_percentage", "commission_percentage"}.
func (h *Handler) putSettings(w http.ResponseWriter, r *http.Request, _ auth.Identity) error {
	var (
		in                         referral.Settings
		hasDiscount, hasCommission bool
	)
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "discount_percentage":
			in.DiscountPercentage, err = decodeDecimal(d, key)
			hasDiscount = true
		case "commission_percentage":
			in.CommissionPercentage, err = decodeDecimal(d, key)
			hasCommission = true
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return err
	}
	if !hasDiscount || !hasCommission {
		return invalidRequest("discount_percentage and commission_percentage are required")
	}

	s, err := h.svc.Referrals.UpdateSettings(r.Context(), in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeSettings(e, s) })
	return nil
}

// listAllCodes filters by marketer_id and is_active.
func (h *Handler) listAllCodes(w http.ResponseWriter, r *http.Request, _ auth.Identity) error {
	var f referral.CodeFilter
	q := r.URL.Query()
	if s := q.Get("marketer_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			return invalidRequest("marketer_id must be a positive integer")
		}
		f.MarketerID = id
	}
	if s := q.Get("is_active"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return invalidRequest("is_active must be true or false")
		}
		f.Active = &b
	}

	codes, err := h.svc.Referrals.AdminListCodes(r.Context(), f)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		encodeArray(e, "codes", codes, encodeCode)
		e.ObjEnd()
	})
	return nil
}

// adminUpdateCode takes the marketer fields plus "discount_percentage" and
// "commission_percentage".
func (h *Handler) adminUpdateCode(w http.ResponseWriter, r *http.Request, _ auth.Identity) error {
	codeID, err := pathID(r, "id")
	if err != nil {
		return err
	}

	var req referral.AdminUpdateRequest
	err = decodeObject(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "is_active":
			b, err := d.Bool()
			if err != nil {
				return invalidRequest("is_active must be a boolean")
			}
			req.IsActive = &b
			return nil
		case "max_uses":
			v, null, err := optInt(d, key)
			req.MaxUses = v
			req.ClearMaxUses = null
			return err
		case "discount_percentage":
			v, err := decodeDecimal(d, key)
			req.DiscountPercentage = &v
			return err
		case "commission_percentage":
			v, err := decodeDecimal(d, key)
			req.CommissionPercentage = &v
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return err
	}

	c, err := h.svc.Referrals.AdminUpdateCode(r.Context(), codeID, req)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCode(e, c) })
	return nil
}

func (h *Handler) adminDeleteCode(w http.ResponseWriter, r *http.Request, _ auth.Identity) error {
	codeID, err := pathID(r, "id")
	if err != nil {
		return err
	}
	if err := h.svc.Referrals.AdminDeleteCode(r.Context(), codeID); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) listMarketers(w http.ResponseWriter, r *http.Request, _ auth.Identity) error {
	ms, err := h.svc.Marketers.Marketers(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		encodeArray(e, "marketers", ms, encodeMarketerSummary)
		e.ObjEnd()
	})
	return nil
}

func (h *Handler) getDashboard(w http.ResponseWriter, r *http.Request, _ auth.Identity) error {
	st, err := h.svc.Dashboard.Stats(r.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeDashboard(e, st) })
	return nil
}
