package handler

import (
	"github.com/go-faster/jx"

	"github.com/xenking/academy-ledger/internal/domain/cart"
	"github.com/xenking/academy-ledger/internal/domain/catalog"
	"github.com/xenking/academy-ledger/internal/domain/commission"
	"github.com/xenking/academy-ledger/internal/domain/dashboard"
	"github.com/xenking/academy-ledger/internal/domain/enrollment"
	"github.com/xenking/academy-ledger/internal/domain/marketer"
	"github.com/xenking/academy-ledger/internal/domain/purchase"
	"github.com/xenking/academy-ledger/internal/domain/referral"
)

func encodeRef(e *jx.Encoder, ref catalog.ItemRef) {
	e.FieldStart("kind")
	e.Str(string(ref.Kind()))
	if ref.Kind() == catalog.KindSection {
		e.FieldStart("section_id")
	} else {
		e.FieldStart("course_id")
	}
	e.Int64(ref.ID())
}

func encodePricing(e *jx.Encoder, p cart.Pricing) {
	encodeMoney(e, "subtotal", p.Subtotal)
	encodeMoney(e, "discount", p.Discount)
	encodeMoney(e, "total", p.Total)
	e.FieldStart("referral_applied")
	e.Bool(p.ReferralApplied)
}

func encodeCartView(e *jx.Encoder, v *cart.View) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(v.Cart.ID)
	encodeArray(e, "items", v.Cart.Items, func(e *jx.Encoder, it *cart.Item) {
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(it.ID)
		encodeRef(e, it.Ref)
		e.FieldStart("title")
		e.Str(it.Title)
		encodeMoney(e, "price", it.Price)
		encodeTime(e, "added_at", it.AddedAt)
		e.ObjEnd()
	})
	e.FieldStart("referral_code")
	if rc := v.Cart.Referral; rc != nil {
		e.ObjStart()
		e.FieldStart("code")
		e.Str(rc.Code)
		encodePercent(e, "discount_percentage", rc.DiscountPercentage)
		e.FieldStart("available")
		e.Bool(rc.IsAvailable())
		e.ObjEnd()
	} else {
		e.Null()
	}
	encodePricing(e, v.Pricing)
	encodeTime(e, "updated_at", v.Cart.UpdatedAt)
	e.ObjEnd()
}

func encodePurchase(e *jx.Encoder, p *purchase.Purchase) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("user_id")
	e.Int64(p.UserID)
	encodeRef(e, p.Ref)
	e.FieldStart("title")
	e.Str(p.Title)
	encodeMoney(e, "original_amount", p.OriginalAmount)
	encodeMoney(e, "discount_amount", p.DiscountAmount)
	encodeMoney(e, "amount", p.Amount)
	e.FieldStart("status")
	e.Str(string(p.Status))
	if p.ReferralCode != "" {
		e.FieldStart("referral_code")
		e.Str(p.ReferralCode)
	}
	if p.TransactionID != "" {
		e.FieldStart("transaction_id")
		e.Str(p.TransactionID)
	}
	encodeTime(e, "created_at", p.CreatedAt)
	encodeTime(e, "updated_at", p.UpdatedAt)
	e.ObjEnd()
}

func encodeEnrollment(e *jx.Encoder, en *enrollment.Enrollment) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(en.ID)
	encodeRef(e, en.Ref)
	e.FieldStart("title")
	e.Str(en.Title)
	e.FieldStart("purchase_id")
	e.Str(en.PurchaseID)
	encodeTime(e, "enrolled_at", en.EnrolledAt)
	e.ObjEnd()
}

func encodeCommission(e *jx.Encoder, c *commission.Commission) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(c.ID)
	e.FieldStart("marketer_id")
	e.Int64(c.MarketerID)
	e.FieldStart("referral_code")
	e.Str(c.ReferralCode)
	e.FieldStart("purchase_id")
	e.Str(c.PurchaseID)
	e.FieldStart("customer_id")
	e.Int64(c.CustomerID)
	encodeMoney(e, "amount", c.Amount)
	e.FieldStart("status")
	e.Str(string(c.Status))
	encodeTime(e, "created_at", c.CreatedAt)
	encodeOptTime(e, "paid_at", c.PaidAt)
	e.ObjEnd()
}

func encodeTotals(e *jx.Encoder, t commission.Totals) {
	e.FieldStart("totals")
	e.ObjStart()
	encodeMoney(e, "total", t.Total)
	encodeMoney(e, "pending", t.Pending)
	encodeMoney(e, "paid", t.Paid)
	e.ObjEnd()
}

func encodeCode(e *jx.Encoder, c *referral.Code) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(c.ID)
	e.FieldStart("marketer_id")
	e.Int64(c.MarketerID)
	e.FieldStart("code")
	e.Str(c.Code)
	encodePercent(e, "discount_percentage", c.DiscountPercentage)
	encodePercent(e, "commission_percentage", c.CommissionPercentage)
	e.FieldStart("is_active")
	e.Bool(c.IsActive)
	e.FieldStart("max_uses")
	if c.MaxUses != nil {
		e.Int(*c.MaxUses)
	} else {
		e.Null()
	}
	e.FieldStart("current_uses")
	e.Int(c.CurrentUses)
	encodeTime(e, "created_at", c.CreatedAt)
	e.ObjEnd()
}

func encodeSettings(e *jx.Encoder, s *referral.Settings) {
	e.ObjStart()
	encodePercent(e, "discount_percentage", s.DiscountPercentage)
	encodePercent(e, "commission_percentage", s.CommissionPercentage)
	encodeTime(e, "updated_at", s.UpdatedAt)
	e.ObjEnd()
}

func encodeCourse(e *jx.Encoder, c *catalog.Course, withSections bool) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(c.ID)
	e.FieldStart("slug")
	e.Str(c.Slug)
	e.FieldStart("title")
	e.Str(c.Title)
	e.FieldStart("category")
	e.Str(c.Category)
	encodeMoney(e, "price", c.Price)
	e.FieldStart("discount_price")
	if c.DiscountPrice != nil {
		e.Str(c.DiscountPrice.StringFixed(2))
	} else {
		e.Null()
	}
	encodeMoney(e, "effective_price", c.EffectivePrice())
	e.FieldStart("is_free")
	e.Bool(c.IsFree)
	e.FieldStart("is_published")
	e.Bool(c.IsPublished)
	if withSections {
		encodeArray(e, "sections", c.Sections, func(e *jx.Encoder, s *catalog.Section) {
			e.ObjStart()
			e.FieldStart("id")
			e.Int64(s.ID)
			e.FieldStart("course_id")
			e.Int64(s.CourseID)
			e.FieldStart("title")
			e.Str(s.Title)
			e.FieldStart("order")
			e.Int(s.Position)
			e.FieldStart("price")
			if s.Price != nil {
				e.Str(s.Price.StringFixed(2))
			} else {
				e.Null()
			}
			e.FieldStart("is_free")
			e.Bool(s.IsFree)
			e.ObjEnd()
		})
	}
	e.ObjEnd()
}

func encodeMarketerRequest(e *jx.Encoder, r *marketer.Request) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(r.ID)
	e.FieldStart("user_id")
	e.Int64(r.UserID)
	for _, f := range []struct{ name, value string }{
		{"full_name", r.FullName},
		{"phone_number", r.PhoneNumber},
		{"email", r.Email},
		{"experience_level", string(r.Experience)},
		{"current_job", r.CurrentJob},
		{"interest_area", string(r.Interest)},
		{"motivation", r.Motivation},
		{"marketing_experience", r.MarketingExperience},
		{"instagram_handle", r.InstagramHandle},
		{"telegram_handle", r.TelegramHandle},
		{"status", string(r.Status)},
		{"admin_notes", r.AdminNotes},
	} {
		e.FieldStart(f.name)
		e.Str(f.value)
	}
	e.FieldStart("reviewed_by")
	if r.ReviewedBy != nil {
		e.Int64(*r.ReviewedBy)
	} else {
		e.Null()
	}
	encodeOptTime(e, "reviewed_at", r.ReviewedAt)
	encodeTime(e, "created_at", r.CreatedAt)
	encodeTime(e, "updated_at", r.UpdatedAt)
	e.ObjEnd()
}

func encodeMarketerSummary(e *jx.Encoder, s *marketer.Summary) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(s.UserID)
	e.FieldStart("username")
	e.Str(s.Username)
	e.FieldStart("codes_count")
	e.Int(s.CodesCount)
	e.FieldStart("active_codes_count")
	e.Int(s.ActiveCodesCount)
	encodeMoney(e, "total_commissions", s.TotalCommissions)
	encodeMoney(e, "pending_commissions", s.PendingCommissions)
	encodeTime(e, "joined_at", s.JoinedAt)
	e.ObjEnd()
}

func encodeDashboard(e *jx.Encoder, st *dashboard.Stats) {
	count := func(name string, n int) {
		e.FieldStart(name)
		e.Int(n)
	}
	e.ObjStart()
	e.FieldStart("users")
	e.ObjStart()
	count("total", st.Users.Total)
	count("new_this_month", st.Users.NewThisMonth)
	count("admins", st.Users.Admins)
	count("marketers", st.Users.Marketers)
	count("customers", st.Users.Customers)
	e.ObjEnd()

	e.FieldStart("courses")
	e.ObjStart()
	count("total", st.Courses.Total)
	count("published", st.Courses.Published)
	e.ObjEnd()

	e.FieldStart("financial")
	e.ObjStart()
	encodeMoney(e, "total_revenue", st.Financial.TotalRevenue)
	encodeMoney(e, "this_month_revenue", st.Financial.ThisMonthRevenue)
	encodeMoney(e, "pending_commissions", st.Financial.PendingCommissions)
	encodeMoney(e, "paid_commissions", st.Financial.PaidCommissions)
	count("pending_marketer_requests", st.Financial.PendingRequests)
	e.ObjEnd()

	encodeArray(e, "recent_purchases", st.RecentPurchases, encodePurchase)
	encodeArray(e, "monthly_revenue", st.Monthly, func(e *jx.Encoder, m *dashboard.Month) {
		e.ObjStart()
		e.FieldStart("month")
		e.Str(m.Start.Format("2006-01"))
		encodeMoney(e, "revenue", m.Revenue)
		e.FieldStart("purchases")
		e.Int(m.Purchases)
		e.ObjEnd()
	})
	e.ObjEnd()
}
