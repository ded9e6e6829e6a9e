//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"slices"
	"testing"
)

type addItem struct {
	CourseID  int64 `json:"course_id,omitempty"`
	SectionID int64 `json:"section_id,omitempty"`
}

type applyCode struct {
	Code string `json:"code"`
}

type callback struct {
	TransactionID string   `json:"transaction_id"`
	PurchaseIDs   []string `json:"purchase_ids"`
	Status        string   `json:"status"`
}

func addToCart(t *testing.T, base string, u user, item addItem) cartResponse {
	t.Helper()

	resp := doPost(t, base, "/api/cart/items", item, u.token)
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusCreated)
	return decodeJSON[cartResponse](t, resp)
}

func checkoutCart(t *testing.T, base string, u user) checkoutResponse {
	t.Helper()

	resp := doPost(t, base, "/api/checkout", nil, u.token)
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusCreated)
	return decodeJSON[checkoutResponse](t, resp)
}

func TestCheckout_InstantWithReferral(t *testing.T) {
	course := getCourse(t)
	buyer := newUser(t, "customer")
	marketer := newUser(t, "marketer")
	admin := newUser(t, "admin")
	code := newCode(t, marketer.id, nil)

	addToCart(t, instantURL, buyer, addItem{CourseID: course.ID})

	resp := doPost(t, instantURL, "/api/cart/referral", applyCode{Code: code}, buyer.token)
	expectStatus(t, resp, http.StatusOK)
	cart := decodeJSON[cartResponse](t, resp)
	resp.Body.Close()

	if cart.Subtotal != "800000.00" || cart.Discount != "80000.00" || cart.Total != "720000.00" {
		t.Fatalf("pricing: got subtotal=%s discount=%s total=%s", cart.Subtotal, cart.Discount, cart.Total)
	}
	if !cart.ReferralApplied || cart.ReferralCode == nil || cart.ReferralCode.Code != code {
		t.Fatalf("referral not applied: %+v", cart.ReferralCode)
	}

	res := checkoutCart(t, instantURL, buyer)
	if res.PaymentMode != "instant" {
		t.Errorf("payment_mode: got %q", res.PaymentMode)
	}
	if len(res.Purchases) != 1 || len(res.Enrollments) != 1 {
		t.Fatalf("got %d purchases and %d enrollments, want 1 and 1", len(res.Purchases), len(res.Enrollments))
	}
	p := res.Purchases[0]
	if p.Status != "completed" || p.OriginalAmount != "800000.00" || p.DiscountAmount != "80000.00" || p.Amount != "720000.00" {
		t.Fatalf("purchase: %+v", p)
	}
	if p.ReferralCode != code {
		t.Errorf("referral_code: got %q, want %q", p.ReferralCode, code)
	}

	// Cart is emptied and the code detached.
	resp = doGet(t, instantURL, "/api/cart", buyer.token)
	expectStatus(t, resp, http.StatusOK)
	cart = decodeJSON[cartResponse](t, resp)
	resp.Body.Close()
	if len(cart.Items) != 0 || cart.ReferralCode != nil || cart.Total != "0.00" {
		t.Fatalf("cart not cleared: %+v", cart)
	}

	// A section of an owned course is already owned.
	expectError(t,
		doPost(t, instantURL, "/api/cart/items", addItem{SectionID: course.Sections[0].ID}, buyer.token),
		http.StatusConflict, "conflict", "already_owned",
	)

	// Marketer sees the pending commission, 15% of the original amount.
	resp = doGet(t, instantURL, "/api/marketer/commissions", marketer.token)
	expectStatus(t, resp, http.StatusOK)
	mine := decodeJSON[commissionsResponse](t, resp)
	resp.Body.Close()
	if len(mine.Commissions) != 1 || mine.Totals.Pending != "120000.00" || mine.Totals.Paid != "0.00" {
		t.Fatalf("marketer commissions: %+v", mine)
	}
	commissionID := mine.Commissions[0].ID

	// Admin pays it out; cancelling afterwards is an invalid transition.
	resp = doPost(t, instantURL, fmt.Sprintf("/api/admin/commissions/%d/mark-paid", commissionID), nil, admin.token)
	expectStatus(t, resp, http.StatusOK)
	paid := decodeJSON[commissionResponse](t, resp)
	resp.Body.Close()
	if paid.Status != "paid" || paid.PaidAt == nil {
		t.Fatalf("mark-paid: %+v", paid)
	}
	expectError(t,
		doPost(t, instantURL, fmt.Sprintf("/api/admin/commissions/%d/cancel", commissionID), nil, admin.token),
		http.StatusConflict, "conflict", "invalid_transition",
	)

	resp = doGet(t, instantURL, fmt.Sprintf("/api/admin/commissions?marketer_id=%d&status=paid", marketer.id), admin.token)
	expectStatus(t, resp, http.StatusOK)
	all := decodeJSON[commissionsResponse](t, resp)
	resp.Body.Close()
	if len(all.Commissions) != 1 || all.Totals.Paid != "120000.00" {
		t.Fatalf("admin commissions: %+v", all)
	}

	// Refund keeps the paid commission as it is.
	resp = doPost(t, instantURL, "/api/admin/purchases/"+p.ID+"/refund", nil, admin.token)
	expectStatus(t, resp, http.StatusOK)
	refunded := decodeJSON[purchaseResponse](t, resp)
	resp.Body.Close()
	if refunded.Status != "refunded" {
		t.Fatalf("refund: got status %q", refunded.Status)
	}
	expectError(t,
		doPost(t, instantURL, "/api/admin/purchases/"+p.ID+"/refund", nil, admin.token),
		http.StatusConflict, "conflict", "invalid_transition",
	)
}

func TestCheckout_EmptyCart(t *testing.T) {
	buyer := newUser(t, "customer")
	expectError(t, doPost(t, instantURL, "/api/checkout", nil, buyer.token), http.StatusBadRequest, "empty_state", "empty_cart")
}

func TestCart_Errors(t *testing.T) {
	course := getCourse(t)
	buyer := newUser(t, "customer")

	addToCart(t, instantURL, buyer, addItem{CourseID: course.ID})

	expectError(t,
		doPost(t, instantURL, "/api/cart/items", addItem{CourseID: course.ID}, buyer.token),
		http.StatusConflict, "conflict", "already_in_cart",
	)
	expectError(t,
		doPost(t, instantURL, "/api/cart/items", addItem{CourseID: course.ID, SectionID: course.Sections[0].ID}, buyer.token),
		http.StatusBadRequest, "validation_error", "invalid_item",
	)
	expectError(t,
		doPost(t, instantURL, "/api/cart/items", addItem{CourseID: 999_999_999}, buyer.token),
		http.StatusNotFound, "not_found", "invalid_item",
	)
	expectError(t,
		doPost(t, instantURL, "/api/cart/referral", applyCode{Code: "MISSING99"}, buyer.token),
		http.StatusNotFound, "not_found", "invalid_code",
	)
	expectError(t,
		do(t, instantURL, http.MethodDelete, "/api/cart/items/999999999", nil, buyer.token),
		http.StatusNotFound, "not_found", "not_found",
	)
}

func TestCheckout_SingleUseCode(t *testing.T) {
	course := getCourse(t)
	marketer := newUser(t, "marketer")
	one := 1
	code := newCode(t, marketer.id, &one)

	first := newUser(t, "customer")
	second := newUser(t, "customer")
	for _, u := range []user{first, second} {
		addToCart(t, instantURL, u, addItem{CourseID: course.ID})
		resp := doPost(t, instantURL, "/api/cart/referral", applyCode{Code: code}, u.token)
		expectStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	}

	res := checkoutCart(t, instantURL, first)
	if res.Total != "720000.00" || res.ReferralDropped != "" {
		t.Fatalf("first checkout: total=%s dropped=%q", res.Total, res.ReferralDropped)
	}

	// The second cart still holds the code but no longer prices it in.
	resp := doGet(t, instantURL, "/api/cart", second.token)
	expectStatus(t, resp, http.StatusOK)
	c := decodeJSON[cartResponse](t, resp)
	resp.Body.Close()
	if c.ReferralCode == nil || c.ReferralCode.Available || c.Total != "800000.00" {
		t.Fatalf("second cart: code=%+v total=%s", c.ReferralCode, c.Total)
	}

	res = checkoutCart(t, instantURL, second)
	if res.Total != c.Total || res.Discount != "0.00" || res.ReferralDropped != "code_exhausted" {
		t.Fatalf("second checkout: total=%s discount=%s dropped=%q", res.Total, res.Discount, res.ReferralDropped)
	}
	if len(res.Purchases) != 1 || res.Purchases[0].ReferralCode != "" {
		t.Fatalf("second checkout purchases: %+v", res.Purchases)
	}

	third := newUser(t, "customer")
	addToCart(t, instantURL, third, addItem{CourseID: course.ID})
	expectError(t,
		doPost(t, instantURL, "/api/cart/referral", applyCode{Code: code}, third.token),
		http.StatusUnprocessableEntity, "unavailable", "code_exhausted",
	)

	resp = doGet(t, instantURL, "/api/referral/validate?code="+code, "")
	expectStatus(t, resp, http.StatusOK)
	v := decodeJSON[struct {
		Valid  bool   `json:"valid"`
		Reason string `json:"reason"`
	}](t, resp)
	resp.Body.Close()
	if v.Valid || v.Reason != "code_exhausted" {
		t.Fatalf("validate: got %+v", v)
	}
}

func TestCheckout_GatewayCallback(t *testing.T) {
	course := getCourse(t)
	buyer := newUser(t, "customer")
	admin := newUser(t, "admin")

	addToCart(t, gatewayURL, buyer, addItem{SectionID: course.Sections[0].ID})
	addToCart(t, gatewayURL, buyer, addItem{SectionID: course.Sections[1].ID})

	res := checkoutCart(t, gatewayURL, buyer)
	if res.PaymentMode != "gateway" || res.Total != "500000.00" {
		t.Fatalf("checkout: mode=%s total=%s", res.PaymentMode, res.Total)
	}
	if len(res.Purchases) != 2 || len(res.Enrollments) != 0 {
		t.Fatalf("got %d purchases and %d enrollments, want 2 and 0", len(res.Purchases), len(res.Enrollments))
	}
	ids := make([]string, 0, len(res.Purchases))
	for _, p := range res.Purchases {
		if p.Status != "pending" {
			t.Fatalf("purchase %s: status %q, want pending", p.ID, p.Status)
		}
		ids = append(ids, p.ID)
	}

	body := callback{TransactionID: "txn-" + ids[0], PurchaseIDs: ids, Status: "succeeded"}

	expectError(t, doPost(t, gatewayURL, "/api/payments/callback", body, ""), http.StatusUnauthorized, "unauthorized", "unauthorized")
	expectError(t, doPostWithAPIKey(t, gatewayURL, "/api/payments/callback", body, "wrong-key"), http.StatusUnauthorized, "unauthorized", "unauthorized")

	// Delivered twice; the second delivery changes nothing.
	for range 2 {
		resp := doPostWithAPIKey(t, gatewayURL, "/api/payments/callback", body, apiKey)
		expectStatus(t, resp, http.StatusOK)
		got := decodeJSON[purchasesResponse](t, resp)
		resp.Body.Close()
		for _, p := range got.Purchases {
			if p.Status != "completed" || p.TransactionID != body.TransactionID {
				t.Fatalf("purchase after callback: %+v", p)
			}
		}
	}

	resp := doGet(t, gatewayURL, "/api/me/enrollments", buyer.token)
	expectStatus(t, resp, http.StatusOK)
	en := decodeJSON[struct {
		Enrollments []struct {
			Kind string `json:"kind"`
		} `json:"enrollments"`
	}](t, resp)
	resp.Body.Close()
	if len(en.Enrollments) != 2 {
		t.Fatalf("enrollments: got %d, want 2", len(en.Enrollments))
	}

	resp = doGet(t, gatewayURL, "/api/admin/purchases?status=completed", admin.token)
	expectStatus(t, resp, http.StatusOK)
	listed := decodeJSON[purchasesResponse](t, resp)
	resp.Body.Close()
	for _, id := range ids {
		if !slices.ContainsFunc(listed.Purchases, func(p purchaseResponse) bool { return p.ID == id }) {
			t.Errorf("purchase %s missing from completed list", id)
		}
	}

	// A completed purchase cannot fail afterwards.
	body.Status = "failed"
	expectError(t,
		doPostWithAPIKey(t, gatewayURL, "/api/payments/callback", body, apiKey),
		http.StatusConflict, "conflict", "invalid_transition",
	)
}

func TestCheckout_GatewayFailure(t *testing.T) {
	course := getCourse(t)
	buyer := newUser(t, "customer")
	marketer := newUser(t, "marketer")
	code := newCode(t, marketer.id, nil)

	addToCart(t, gatewayURL, buyer, addItem{CourseID: course.ID})
	resp := doPost(t, gatewayURL, "/api/cart/referral", applyCode{Code: code}, buyer.token)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	res := checkoutCart(t, gatewayURL, buyer)
	ids := []string{res.Purchases[0].ID}

	resp = doPostWithAPIKey(t, gatewayURL, "/api/payments/callback",
		callback{TransactionID: "txn-failed-" + ids[0], PurchaseIDs: ids, Status: "failed"}, apiKey)
	expectStatus(t, resp, http.StatusOK)
	got := decodeJSON[purchasesResponse](t, resp)
	resp.Body.Close()
	if got.Purchases[0].Status != "failed" {
		t.Fatalf("status: got %q, want failed", got.Purchases[0].Status)
	}

	// The pending commission is cancelled with the purchase.
	resp = doGet(t, gatewayURL, "/api/marketer/commissions", marketer.token)
	expectStatus(t, resp, http.StatusOK)
	mine := decodeJSON[commissionsResponse](t, resp)
	resp.Body.Close()
	if len(mine.Commissions) != 1 || mine.Commissions[0].Status != "cancelled" || mine.Totals.Pending != "0.00" {
		t.Fatalf("commissions after failure: %+v", mine)
	}

	resp = doGet(t, gatewayURL, "/api/me/enrollments", buyer.token)
	expectStatus(t, resp, http.StatusOK)
	en := decodeJSON[struct {
		Enrollments []struct{} `json:"enrollments"`
	}](t, resp)
	resp.Body.Close()
	if len(en.Enrollments) != 0 {
		t.Fatalf("enrollments: got %d, want 0", len(en.Enrollments))
	}

	expectError(t,
		doGet(t, gatewayURL, "/api/admin/purchases?status=paid", newUser(t, "admin").token),
		http.StatusBadRequest, "validation_error", "invalid_status",
	)
}

func TestMarketerCodes(t *testing.T) {
	marketer := newUser(t, "marketer")

	resp := doPost(t, instantURL, "/api/marketer/codes", map[string]any{"max_uses": 5}, marketer.token)
	expectStatus(t, resp, http.StatusCreated)
	created := decodeJSON[struct {
		ID                   int64  `json:"id"`
		Code                 string `json:"code"`
		DiscountPercentage   string `json:"discount_percentage"`
		CommissionPercentage string `json:"commission_percentage"`
		MaxUses              *int   `json:"max_uses"`
		IsActive             bool   `json:"is_active"`
	}](t, resp)
	resp.Body.Close()

	if len(created.Code) != 8 || !created.IsActive || created.MaxUses == nil || *created.MaxUses != 5 {
		t.Fatalf("created code: %+v", created)
	}

	expectError(t,
		doPost(t, instantURL, "/api/marketer/codes", map[string]any{"code": created.Code}, marketer.token),
		http.StatusConflict, "conflict", "code_taken",
	)

	resp = do(t, instantURL, http.MethodPatch, fmt.Sprintf("/api/marketer/codes/%d", created.ID),
		map[string]any{"is_active": false, "max_uses": nil}, marketer.token)
	expectStatus(t, resp, http.StatusOK)
	updated := decodeJSON[struct {
		IsActive bool `json:"is_active"`
		MaxUses  *int `json:"max_uses"`
	}](t, resp)
	resp.Body.Close()
	if updated.IsActive || updated.MaxUses != nil {
		t.Fatalf("updated code: %+v", updated)
	}

	other := newUser(t, "marketer")
	expectError(t,
		do(t, instantURL, http.MethodDelete, fmt.Sprintf("/api/marketer/codes/%d", created.ID), nil, other.token),
		http.StatusNotFound, "not_found", "invalid_code",
	)

	resp = do(t, instantURL, http.MethodDelete, fmt.Sprintf("/api/marketer/codes/%d", created.ID), nil, marketer.token)
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusNoContent)
}
