package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/academy-ledger/internal/domain/checkout"
)

// paymentCallback receives the gateway verdict:
// {"transaction_id", "purchase_ids": [...], "status": "succeeded"|"failed"}.
func (h *Handler) paymentCallback(w http.ResponseWriter, r *http.Request) error {
	var (
		c      checkout.Confirmation
		status string
	)
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "transaction_id":
			s, err := d.Str()
			c.TransactionID = s
			return err
		case "purchase_ids":
			return d.Arr(func(d *jx.Decoder) error {
				id, err := d.Str()
				if err != nil {
					return err
				}
				c.PurchaseIDs = append(c.PurchaseIDs, id)
				return nil
			})
		case "status":
			s, err := d.Str()
			status = s
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return err
	}

	switch status {
	case "succeeded":
		c.Succeeded = true
	case "failed":
	default:
		return invalidRequest("status must be succeeded or failed")
	}

	ps, err := h.svc.Checkout.ConfirmPayment(r.Context(), c)
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
