package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/academy-ledger/internal/domain/auth"
	"github.com/xenking/academy-ledger/internal/domain/referral"
)

func (h *Handler) listCodes(w http.ResponseWriter, r *http.Request, id auth.Identity) error {
	codes, err := h.svc.Referrals.ListCodes(r.Context(), id.UserID)
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

// createCode takes {"code"?, "discount_percentage"?, "commission_percentage"?,
// "max_uses"?}. Omitted fields take the program defaults.
func (h *Handler) createCode(w http.ResponseWriter, r *http.Request, id auth.Identity) error {
	var req referral.CreateRequest
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "code":
			s, err := d.Str()
			req.Code = s
			return err
		case "discount_percentage":
			v, err := optDecimal(d, key)
			req.DiscountPercentage = v
			return err
		case "commission_percentage":
			v, err := optDecimal(d, key)
			req.CommissionPercentage = v
			return err
		case "max_uses":
			v, _, err := optInt(d, key)
			req.MaxUses = v
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return err
	}

	c, err := h.svc.Referrals.CreateCode(r.Context(), id.UserID, req)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCode(e, c) })
	return nil
}

// updateCode takes {"is_active"?, "max_uses"?}; "max_uses": null removes the
// limit.
func (h *Handler) updateCode(w http.ResponseWriter, r *http.Request, id auth.Identity) error {
	codeID, err := pathID(r, "id")
	if err != nil {
		return err
	}

	var req referral.UpdateRequest
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
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return err
	}

	c, err := h.svc.Referrals.UpdateCode(r.Context(), id.UserID, codeID, req)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCode(e, c) })
	return nil
}

func (h *Handler) deleteCode(w http.ResponseWriter, r *http.Request, id auth.Identity) error {
	codeID, err := pathID(r, "id")
	if err != nil {
		return err
	}
	if err := h.svc.Referrals.DeleteCode(r.Context(), id.UserID, codeID); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) myCommissions(w http.ResponseWriter, r *http.Request, id auth.Identity) error {
	cs, totals, err := h.svc.Commissions.ForMarketer(r.Context(), id.UserID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		encodeTotals(e, totals)
		encodeArray(e, "commissions", cs, encodeCommission)
		e.ObjEnd()
	})
	return nil
}

func optDecimal(d *jx.Decoder, name string) (*decimal.Decimal, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := decodeDecimal(d, name)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// optInt decodes an integer or null. null reports whether the value was null.
func optInt(d *jx.Decoder, name string) (v *int, null bool, err error) {
	if d.Next() == jx.Null {
		return nil, true, d.Null()
	}
	n, err := decodeInt64(d, name)
	if err != nil {
		return nil, false, err
	}
	i := int(n)
	return &i, false, nil
}
