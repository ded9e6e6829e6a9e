// Package marketer handles requests to join the marketer program and the
// admin view of active marketers.
package marketer

import (
	"context"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the review state of a registration request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ParseStatus parses s into a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusApproved, StatusRejected:
		return st, nil
	default:
		return "", errors.Wrapf(ErrInvalidStatus, "%q", s)
	}
}

// Experience is the applicant's self-assessed marketing level.
type Experience string

const (
	ExperienceBeginner     Experience = "beginner"
	ExperienceIntermediate Experience = "intermediate"
	ExperienceAdvanced     Experience = "advanced"
	ExperienceExpert       Experience = "expert"
)

func (e Experience) valid() bool {
	switch e {
	case ExperienceBeginner, ExperienceIntermediate, ExperienceAdvanced, ExperienceExpert:
		return true
	}
	return false
}

// Interest is the catalog area the applicant wants to promote.
type Interest string

const (
	InterestMedical    Interest = "medical"
	InterestTechnology Interest = "technology"
	InterestBusiness   Interest = "business"
	InterestEducation  Interest = "education"
	InterestAll        Interest = "all"
)

func (i Interest) valid() bool {
	switch i {
	case InterestMedical, InterestTechnology, InterestBusiness, InterestEducation, InterestAll:
		return true
	}
	return false
}

var (
	// ErrRequestNotFound is returned when a request does not exist.
	ErrRequestNotFound = errors.New("marketer request not found")
	// ErrRequestExists is returned when the user already applied.
	ErrRequestExists = errors.New("marketer request already submitted")
	// ErrAlreadyReviewed is returned when approving or rejecting a request
	// that is no longer pending.
	ErrAlreadyReviewed = errors.New("marketer request already reviewed")
	// ErrInvalidStatus is returned when parsing an unknown status.
	ErrInvalidStatus = errors.New("invalid marketer request status")
)

// InvalidFieldError reports an application field that failed validation.
type InvalidFieldError struct {
	Field  string
	Reason string
}

func (e *InvalidFieldError) Error() string {
	return e.Field + ": " + e.Reason
}

// Application is what a user submits to become a marketer.
type Application struct {
	FullName            string
	PhoneNumber         string
	Email               string
	Experience          Experience
	CurrentJob          string
	Interest            Interest
	Motivation          string
	MarketingExperience string
	InstagramHandle     string
	TelegramHandle      string
}

const (
	maxNameLen   = 100
	maxPhoneLen  = 15
	maxHandleLen = 100
)

// Validate trims every field and checks the required ones.
func (a *Application) Validate() error {
	for _, f := range []*string{
		&a.FullName, &a.PhoneNumber, &a.Email, &a.CurrentJob, &a.Motivation,
		&a.MarketingExperience, &a.InstagramHandle, &a.TelegramHandle,
	} {
		*f = strings.TrimSpace(*f)
	}

	switch {
	case a.FullName == "":
		return &InvalidFieldError{Field: "full_name", Reason: "required"}
	case utf8.RuneCountInString(a.FullName) > maxNameLen:
		return &InvalidFieldError{Field: "full_name", Reason: "too long"}
	case a.PhoneNumber == "":
		return &InvalidFieldError{Field: "phone_number", Reason: "required"}
	case len(a.PhoneNumber) > maxPhoneLen:
		return &InvalidFieldError{Field: "phone_number", Reason: "too long"}
	case a.Email == "":
		return &InvalidFieldError{Field: "email", Reason: "required"}
	case !a.Experience.valid():
		return &InvalidFieldError{Field: "experience_level", Reason: "unknown level"}
	case !a.Interest.valid():
		return &InvalidFieldError{Field: "interest_area", Reason: "unknown area"}
	case a.Motivation == "":
		return &InvalidFieldError{Field: "motivation", Reason: "required"}
	case utf8.RuneCountInString(a.CurrentJob) > maxNameLen:
		return &InvalidFieldError{Field: "current_job", Reason: "too long"}
	case utf8.RuneCountInString(a.InstagramHandle) > maxHandleLen:
		return &InvalidFieldError{Field: "instagram_handle", Reason: "too long"}
	case utf8.RuneCountInString(a.TelegramHandle) > maxHandleLen:
		return &InvalidFieldError{Field: "telegram_handle", Reason: "too long"}
	}
	if _, err := mail.ParseAddress(a.Email); err != nil {
		return &InvalidFieldError{Field: "email", Reason: "not an address"}
	}
	return nil
}

// Request is a stored application and its review.
type Request struct {
	ID     int64
	UserID int64
	Application
	Status     Status
	AdminNotes string
	ReviewedBy *int64
	ReviewedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Review is an admin decision on a pending request.
type Review struct {
	Status     Status
	ReviewerID int64
	Notes      string
	At         time.Time
}

// Summary is a marketer with their code and commission figures. Cancelled
// commissions are excluded from both sums.
type Summary struct {
	UserID             int64
	Username           string
	CodesCount         int
	ActiveCodesCount   int
	TotalCommissions   decimal.Decimal
	PendingCommissions decimal.Decimal
	JoinedAt           time.Time
}

// Repository stores registration requests.
type Repository interface {
	// Create inserts r and fills its generated fields. It returns
	// ErrRequestExists when the user already has a request.
	Create(ctx context.Context, r *Request) error
	GetByUser(ctx context.Context, userID int64) (*Request, error)
	List(ctx context.Context, status Status) ([]Request, error)
	// Review records the decision on a pending request. Approving also
	// grants the marketer role to a customer in the same statement. It
	// returns ErrAlreadyReviewed when the request is not pending.
	Review(ctx context.Context, id int64, rv Review) (*Request, error)
	// ListMarketers returns users with the marketer role whose username
	// contains search, case-insensitively.
	ListMarketers(ctx context.Context, search string) ([]Summary, error)
}
