package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/academy-ledger/internal/domain/auth"
	"github.com/xenking/academy-ledger/internal/domain/marketer"
)

// submitMarketerRequest takes the application fields. experience_level and
// interest_area are enums; the optional fields default to empty.
func (h *Handler) submitMarketerRequest(w http.ResponseWriter, r *http.Request, id auth.Identity) error {
	var app marketer.Application
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var (
			dst *string
			s   string
			err error
		)
		switch key {
		case "full_name":
			dst = &app.FullName
		case "phone_number":
			dst = &app.PhoneNumber
		case "email":
			dst = &app.Email
		case "current_job":
			dst = &app.CurrentJob
		case "motivation":
			dst = &app.Motivation
		case "marketing_experience":
			dst = &app.MarketingExperience
		case "instagram_handle":
			dst = &app.InstagramHandle
		case "telegram_handle":
			dst = &app.TelegramHandle
		case "experience_level":
			s, err = decodeStr(d, key)
			app.Experience = marketer.Experience(s)
			return err
		case "interest_area":
			s, err = decodeStr(d, key)
			app.Interest = marketer.Interest(s)
			return err
		default:
			return d.Skip()
		}
		*dst, err = decodeStr(d, key)
		return err
	})
	if err != nil {
		return err
	}

	req, err := h.svc.Marketers.Submit(r.Context(), id.UserID, app)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeMarketerRequest(e, req) })
	return nil
}

func (h *Handler) myMarketerRequest(w http.ResponseWriter, r *http.Request, id auth.Identity) error {
	req, err := h.svc.Marketers.Mine(r.Context(), id.UserID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeMarketerRequest(e, req) })
	return nil
}

func (h *Handler) listMarketerRequests(w http.ResponseWriter, r *http.Request, _ auth.Identity) error {
	var status marketer.Status
	if s := r.URL.Query().Get("status"); s != "" {
		st, err := marketer.ParseStatus(s)
		if err != nil {
			return err
		}
		status = st
	}
	rs, err := h.svc.Marketers.List(r.Context(), status)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		encodeArray(e, "requests", rs, encodeMarketerRequest)
		e.ObjEnd()
	})
	return nil
}

// reviewMarketerRequest takes {"action": "approve"|"reject", "admin_notes"?}.
func (h *Handler) reviewMarketerRequest(w http.ResponseWriter, r *http.Request, id auth.Identity) error {
	reqID, err := pathID(r, "id")
	if err != nil {
		return err
	}

	var action, notes string
	err = decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "action":
			action, err = decodeStr(d, key)
		case "admin_notes":
			notes, err = decodeStr(d, key)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return err
	}

	var req *marketer.Request
	switch action {
	case "approve":
		req, err = h.svc.Marketers.Approve(r.Context(), id.UserID, reqID)
	case "reject":
		req, err = h.svc.Marketers.Reject(r.Context(), id.UserID, reqID, notes)
	default:
		return invalidRequest("action must be approve or reject")
	}
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeMarketerRequest(e, req) })
	return nil
}

func decodeStr(d *jx.Decoder, name string) (string, error) {
	if d.Next() != jx.String {
		return "", invalidRequest("%s must be a string", name)
	}
	return d.Str()
}
