package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/academy-ledger/db"
	"github.com/xenking/academy-ledger/internal/domain/auth"
	"github.com/xenking/academy-ledger/internal/domain/catalog"
	"github.com/xenking/academy-ledger/internal/domain/referral"
	"github.com/xenking/academy-ledger/internal/storage/postgres"
)

type courseJSON struct {
	Slug          string           `json:"slug"`
	Title         string           `json:"title"`
	Category      string           `json:"category"`
	Price         decimal.Decimal  `json:"price"`
	DiscountPrice *decimal.Decimal `json:"discount_price"`
	IsFree        bool             `json:"is_free"`
	IsPublished   bool             `json:"is_published"`
	Sections      []struct {
		Title    string           `json:"title"`
		Position int              `json:"position"`
		Price    *decimal.Decimal `json:"price"`
		IsFree   bool             `json:"is_free"`
	} `json:"sections"`
}

type options struct {
	databaseURL  string
	coursesFile  string
	apiKey       string
	apiKeyPepper string
	jwtSecret    string
	jwtIssuer    string
}

var demoUsers = []struct {
	username string
	role     auth.Role
}{
	{"admin", auth.RoleAdmin},
	{"sara_marketer", auth.RoleMarketer},
	{"ali_student", auth.RoleCustomer},
}

func main() {
	var opts options

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.coursesFile, "courses-file", "", "path to courses JSON file (default: embedded demo catalog)")
	flag.StringVar(&opts.apiKey, "api-key", "", "payment gateway API key to seed (or ACADEMY_SEED_API_KEY env)")
	flag.StringVar(&opts.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or ACADEMY_API_KEY_PEPPER env)")
	flag.StringVar(&opts.jwtSecret, "jwt-secret", "", "secret for printing demo tokens (or ACADEMY_JWT_SECRET env)")
	flag.StringVar(&opts.jwtIssuer, "jwt-issuer", "academy", "issuer for demo tokens")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if opts.apiKey == "" {
		opts.apiKey = os.Getenv("ACADEMY_SEED_API_KEY")
	}
	if opts.apiKey == "" {
		slog.Error("API key is required: set --api-key or ACADEMY_SEED_API_KEY")
		os.Exit(1)
	}
	if opts.apiKeyPepper == "" {
		opts.apiKeyPepper = os.Getenv("ACADEMY_API_KEY_PEPPER")
	}
	if opts.jwtSecret == "" {
		opts.jwtSecret = os.Getenv("ACADEMY_JWT_SECRET")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, opts options) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedCourses(ctx, postgres.NewCatalogRepository(pool), opts.coursesFile); err != nil {
		return errors.Wrap(err, "seed courses")
	}

	users, err := seedUsers(ctx, postgres.NewUserRepository(pool))
	if err != nil {
		return errors.Wrap(err, "seed users")
	}

	settings := postgres.NewSettingsRepository(pool)
	if err := settings.EnsureSettings(ctx, referral.Settings{
		DiscountPercentage:   decimal.NewFromInt(10),
		CommissionPercentage: decimal.NewFromInt(15),
	}); err != nil {
		return errors.Wrap(err, "seed referral settings")
	}

	if err := seedReferralCode(ctx, postgres.NewReferralRepository(pool), settings, users["sara_marketer"]); err != nil {
		return errors.Wrap(err, "seed referral code")
	}

	if err := seedAPIKey(ctx, postgres.NewAPIKeyRepository(pool), opts.apiKey, opts.apiKeyPepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	if opts.jwtSecret != "" {
		if err := printTokens(auth.NewTokens([]byte(opts.jwtSecret), opts.jwtIssuer), users); err != nil {
			return errors.Wrap(err, "issue demo tokens")
		}
	}

	return nil
}

func seedCourses(ctx context.Context, repo *postgres.CatalogRepository, coursesFile string) error {
	data := db.SeedCourses
	if coursesFile != "" {
		slog.Info("reading courses file", slog.String("path", coursesFile))

		var err error
		if data, err = os.ReadFile(coursesFile); err != nil {
			return errors.Wrap(err, "read courses file")
		}
	}

	var courses []courseJSON
	if err := json.Unmarshal(data, &courses); err != nil {
		return errors.Wrap(err, "parse courses JSON")
	}

	slog.Info("upserting courses", slog.Int("count", len(courses)))

	for _, c := range courses {
		course := catalog.Course{
			Slug:          c.Slug,
			Title:         c.Title,
			Category:      c.Category,
			Price:         c.Price,
			DiscountPrice: c.DiscountPrice,
			IsFree:        c.IsFree,
			IsPublished:   c.IsPublished,
		}
		for _, s := range c.Sections {
			course.Sections = append(course.Sections, catalog.Section{
				Title:    s.Title,
				Position: s.Position,
				Price:    s.Price,
				IsFree:   s.IsFree,
			})
		}

		id, err := repo.UpsertCourse(ctx, course)
		if err != nil {
			return errors.Wrapf(err, "upsert course %s", c.Slug)
		}

		slog.Info("upserted course",
			slog.Int64("id", id),
			slog.String("slug", c.Slug),
			slog.Int("sections", len(c.Sections)),
		)
	}

	return nil
}

func seedUsers(ctx context.Context, repo *postgres.UserRepository) (map[string]auth.User, error) {
	slog.Info("seeding demo users")

	users := make(map[string]auth.User, len(demoUsers))
	for _, u := range demoUsers {
		id, err := repo.Upsert(ctx, u.username, u.role)
		if err != nil {
			return nil, errors.Wrapf(err, "upsert user %s", u.username)
		}
		users[u.username] = auth.User{ID: id, Username: u.username, Role: u.role}

		slog.Info("upserted user", slog.Int64("id", id), slog.String("username", u.username), slog.String("role", string(u.role)))
	}

	return users, nil
}

func seedReferralCode(ctx context.Context, codes *postgres.ReferralRepository, settings *postgres.SettingsRepository, marketer auth.User) error {
	slog.Info("seeding demo referral code")

	defaults, err := settings.GetSettings(ctx)
	if err != nil {
		return errors.Wrap(err, "load referral settings")
	}

	c := &referral.Code{
		MarketerID:           marketer.ID,
		Code:                 "WELCOME10",
		DiscountPercentage:   defaults.DiscountPercentage,
		CommissionPercentage: defaults.CommissionPercentage,
		IsActive:             true,
	}
	switch err := codes.Create(ctx, c); {
	case errors.Is(err, referral.ErrCodeTaken):
		slog.Info("referral code already exists", slog.String("code", c.Code))
		return nil
	case err != nil:
		return err
	}

	slog.Info("created referral code", slog.String("code", c.Code), slog.String("marketer", marketer.Username))

	return nil
}

func seedAPIKey(ctx context.Context, repo *postgres.APIKeyRepository, apiKey, pepper string) error {
	slog.Info("seeding payment gateway API key")

	if err := repo.Upsert(ctx, auth.APIKeyInfo{
		ID:      "gateway",
		KeyHash: auth.HashAPIKey([]byte(pepper), apiKey),
		Name:    "Payment gateway callback",
		Scopes:  []string{auth.ScopePaymentsCallback},
	}); err != nil {
		return errors.Wrap(err, "upsert gateway API key")
	}

	slog.Info("upserted API key", slog.String("id", "gateway"), slog.String("scope", auth.ScopePaymentsCallback))

	return nil
}

// printTokens writes a bearer token for every demo user to stdout.
func printTokens(tokens *auth.Tokens, users map[string]auth.User) error {
	for _, u := range demoUsers {
		user := users[u.username]
		token, err := tokens.Issue(auth.Identity{UserID: user.ID, Role: user.Role}, 30*24*time.Hour)
		if err != nil {
			return errors.Wrapf(err, "issue token for %s", u.username)
		}
		fmt.Printf("%s\t%s\t%s\n", u.username, u.role, token)
	}
	return nil
}
