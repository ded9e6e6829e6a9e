// Package handler exposes the ledger over JSON/HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/xenking/academy-ledger/internal/domain/auth"
	"github.com/xenking/academy-ledger/internal/domain/cart"
	"github.com/xenking/academy-ledger/internal/domain/catalog"
	"github.com/xenking/academy-ledger/internal/domain/checkout"
	"github.com/xenking/academy-ledger/internal/domain/commission"
	"github.com/xenking/academy-ledger/internal/domain/dashboard"
	"github.com/xenking/academy-ledger/internal/domain/enrollment"
	"github.com/xenking/academy-ledger/internal/domain/marketer"
	"github.com/xenking/academy-ledger/internal/domain/purchase"
	"github.com/xenking/academy-ledger/internal/domain/referral"
)

// CartService manages the caller's cart.
type CartService interface {
	Get(ctx context.Context, userID int64) (*cart.View, error)
	AddItem(ctx context.Context, userID int64, ref catalog.ItemRef) (*cart.View, error)
	RemoveItem(ctx context.Context, userID, itemID int64) (*cart.View, error)
	ApplyReferral(ctx context.Context, userID int64, code string) (*cart.View, error)
	RemoveReferral(ctx context.Context, userID int64) (*cart.View, error)
}

// CheckoutService records purchases and drives their payment state.
type CheckoutService interface {
	Mode() checkout.Mode
	Checkout(ctx context.Context, userID int64) (*checkout.Result, error)
	ConfirmPayment(ctx context.Context, c checkout.Confirmation) ([]purchase.Purchase, error)
	Refund(ctx context.Context, purchaseID string) (*purchase.Purchase, error)
}

// CommissionService lists and settles marketer commissions.
type CommissionService interface {
	List(ctx context.Context, f commission.Filter) ([]commission.Commission, error)
	ForMarketer(ctx context.Context, marketerID int64) ([]commission.Commission, commission.Totals, error)
	MarkPaid(ctx context.Context, id int64) (*commission.Commission, error)
	Cancel(ctx context.Context, id int64) (*commission.Commission, error)
}

// ReferralService manages marketer codes and the program settings.
type ReferralService interface {
	ListCodes(ctx context.Context, marketerID int64) ([]referral.Code, error)
	CreateCode(ctx context.Context, marketerID int64, req referral.CreateRequest) (*referral.Code, error)
	UpdateCode(ctx context.Context, marketerID, id int64, req referral.UpdateRequest) (*referral.Code, error)
	DeleteCode(ctx context.Context, marketerID, id int64) error
	Settings(ctx context.Context) (*referral.Settings, error)
	UpdateSettings(ctx context.Context, st referral.Settings) (*referral.Settings, error)

	AdminListCodes(ctx context.Context, f referral.CodeFilter) ([]referral.Code, error)
	AdminUpdateCode(ctx context.Context, id int64, req referral.AdminUpdateRequest) (*referral.Code, error)
	AdminDeleteCode(ctx context.Context, id int64) error
}

// MarketerService runs marketer registration and lists marketers.
type MarketerService interface {
	Submit(ctx context.Context, userID int64, app marketer.Application) (*marketer.Request, error)
	Mine(ctx context.Context, userID int64) (*marketer.Request, error)
	List(ctx context.Context, status marketer.Status) ([]marketer.Request, error)
	Approve(ctx context.Context, adminID, id int64) (*marketer.Request, error)
	Reject(ctx context.Context, adminID, id int64, notes string) (*marketer.Request, error)
	Marketers(ctx context.Context, search string) ([]marketer.Summary, error)
}

// DashboardService builds the admin overview.
type DashboardService interface {
	Stats(ctx context.Context) (*dashboard.Stats, error)
}

// ReferralChecker reports whether a code can be applied.
type ReferralChecker interface {
	Check(ctx context.Context, code string) (*referral.Verdict, error)
}

// PurchaseLister lists purchases.
type PurchaseLister interface {
	List(ctx context.Context, f purchase.Filter) ([]purchase.Purchase, error)
}

// EnrollmentLister lists a user's enrollments.
type EnrollmentLister interface {
	ListForUser(ctx context.Context, userID int64) ([]enrollment.Enrollment, error)
}

// TokenVerifier resolves a bearer token to an identity.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// Services groups the domain dependencies of the Handler.
type Services struct {
	Catalog     catalog.Repository
	Carts       CartService
	Checkout    CheckoutService
	Commissions CommissionService
	Referrals   ReferralService
	Validator   ReferralChecker
	Purchases   PurchaseLister
	Enrollments EnrollmentLister
	Marketers   MarketerService
	Dashboard   DashboardService
}

// Handler serves the /api routes.
type Handler struct {
	svc      Services
	tokens   TokenVerifier
	security *SecurityHandler
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(svc Services, tokens TokenVerifier, security *SecurityHandler) *Handler {
	return &Handler{
		svc:      svc,
		tokens:   tokens,
		security: security,
	}
}

// Register adds every API route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	applicant := []auth.Role{auth.RoleCustomer}
	customer := []auth.Role{auth.RoleCustomer, auth.RoleMarketer}
	marketer := []auth.Role{auth.RoleMarketer}
	admin := []auth.Role{auth.RoleAdmin}

	// Public.
	mux.Handle("GET /api/courses", h.public(h.listCourses))
	mux.Handle("GET /api/courses/{slug}", h.public(h.getCourse))
	mux.Handle("GET /api/referral/validate", h.public(h.validateReferral))

	// Buyer.
	mux.Handle("GET /api/cart", h.authed(h.getCart, customer...))
	mux.Handle("POST /api/cart/items", h.authed(h.addCartItem, customer...))
	mux.Handle("DELETE /api/cart/items/{id}", h.authed(h.removeCartItem, customer...))
	mux.Handle("POST /api/cart/referral", h.authed(h.applyReferral, customer...))
	mux.Handle("DELETE /api/cart/referral", h.authed(h.removeReferral, customer...))
	mux.Handle("POST /api/checkout", h.authed(h.checkout, customer...))
	mux.Handle("GET /api/me/purchases", h.authed(h.myPurchases, customer...))
	mux.Handle("GET /api/me/enrollments", h.authed(h.myEnrollments, customer...))
	mux.Handle("POST /api/marketer/requests", h.authed(h.submitMarketerRequest, applicant...))
	mux.Handle("GET /api/marketer/requests/me", h.authed(h.myMarketerRequest, customer...))

	// Marketer.
	mux.Handle("GET /api/marketer/codes", h.authed(h.listCodes, marketer...))
	mux.Handle("POST /api/marketer/codes", h.authed(h.createCode, marketer...))
	mux.Handle("PATCH /api/marketer/codes/{id}", h.authed(h.updateCode, marketer...))
	mux.Handle("DELETE /api/marketer/codes/{id}", h.authed(h.deleteCode, marketer...))
	mux.Handle("GET /api/marketer/commissions", h.authed(h.myCommissions, marketer...))

	// Admin.
	mux.Handle("GET /api/admin/commissions", h.authed(h.listCommissions, admin...))
	mux.Handle("POST /api/admin/commissions/{id}/mark-paid", h.authed(h.markCommissionPaid, admin...))
	mux.Handle("POST /api/admin/commissions/{id}/cancel", h.authed(h.cancelCommission, admin...))
	mux.Handle("GET /api/admin/purchases", h.authed(h.listPurchases, admin...))
	mux.Handle("POST /api/admin/purchases/{id}/refund", h.authed(h.refundPurchase, admin...))
	mux.Handle("GET /api/admin/referral-settings", h.authed(h.getSettings, admin...))
	mux.Handle("PUT /api/admin/referral-settings", h.authed(h.putSettings, admin...))
	mux.Handle("GET /api/admin/referral-codes", h.authed(h.listAllCodes, admin...))
	mux.Handle("PATCH /api/admin/referral-codes/{id}", h.authed(h.adminUpdateCode, admin...))
	mux.Handle("DELETE /api/admin/referral-codes/{id}", h.authed(h.adminDeleteCode, admin...))
	mux.Handle("GET /api/admin/marketer-requests", h.authed(h.listMarketerRequests, admin...))
	mux.Handle("POST /api/admin/marketer-requests/{id}", h.authed(h.reviewMarketerRequest, admin...))
	mux.Handle("GET /api/admin/marketers", h.authed(h.listMarketers, admin...))
	mux.Handle("GET /api/admin/dashboard", h.authed(h.getDashboard, admin...))

	// Payment gateway.
	mux.Handle("POST /api/payments/callback", h.gateway(h.paymentCallback))
}

type (
	publicFunc func(w http.ResponseWriter, r *http.Request) error
	authedFunc func(w http.ResponseWriter, r *http.Request, id auth.Identity) error
)

func (h *Handler) public(fn publicFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			writeError(w, r, err)
		}
	})
}

// authed verifies the bearer token and the caller's role before calling fn.
func (h *Handler) authed(fn authedFunc, roles ...auth.Role) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := h.identify(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !id.Allows(roles...) {
			writeError(w, r, auth.ErrForbidden)
			return
		}
		ctx := auth.WithIdentity(r.Context(), id)
		if err := fn(w, r.WithContext(ctx), id); err != nil {
			writeError(w, r, err)
		}
	})
}

// gateway authenticates the payment gateway by API key.
func (h *Handler) gateway(fn publicFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h.security.HandleAPIKey(r.Context(), r.Header.Get(APIKeyHeader), auth.ScopePaymentsCallback); err != nil {
			writeError(w, r, err)
			return
		}
		if err := fn(w, r); err != nil {
			writeError(w, r, err)
		}
	})
}
