package main

import (
	"bufio"
	"context"
	"log/slog"
	"math/bits"
	"os"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/academy-ledger/internal/domain/auth"
	"github.com/xenking/academy-ledger/internal/domain/referral"
	"github.com/xenking/academy-ledger/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	maxFiles      = bits.UintSize
	progressEvery = 1_000_000
)

// row is one parsed line: marketer_username,CODE[,discount,commission].
type row struct {
	marketer   string
	code       string
	discount   *decimal.Decimal
	commission *decimal.Decimal
}

// parseLine parses a CSV line. Blank lines and #-comments yield ok=false and
// no error.
func parseLine(line string) (r row, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return row{}, false, nil
	}

	fields := strings.Split(line, ",")
	if len(fields) != 2 && len(fields) != 4 {
		return row{}, false, errors.Errorf("want 2 or 4 fields, got %d", len(fields))
	}

	r.marketer = strings.TrimSpace(fields[0])
	if r.marketer == "" {
		return row{}, false, errors.New("empty marketer")
	}
	r.code = referral.Normalize(fields[1])
	if !referral.ValidFormat(r.code) {
		return row{}, false, errors.Wrapf(referral.ErrInvalidCodeFormat, "%q", r.code)
	}

	if len(fields) == 4 {
		if r.discount, err = parsePercent(fields[2]); err != nil {
			return row{}, false, errors.Wrap(err, "discount")
		}
		if r.commission, err = parsePercent(fields[3]); err != nil {
			return row{}, false, errors.Wrap(err, "commission")
		}
	}
	return r, true, nil
}

func parsePercent(s string) (*decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	if err := referral.ValidatePercentage(v); err != nil {
		return nil, err
	}
	return &v, nil
}

type collectStats struct {
	conflicts int
	invalid   int
}

// fileResult holds what pass 2 found in a single file.
type fileResult struct {
	// unique are rows whose code no other file can contain.
	unique []row
	// candidates are rows whose code another file's filter reports, keyed by
	// code, with a bitmask of the files seen.
	candidates map[string]candidate
	invalid    int
}

type candidate struct {
	mask uint
	row  row
}

// collect returns the rows of all files, skipping codes that appear in more
// than one file. Such codes are claimed by several marketers and need manual
// resolution.
func collect(ctx context.Context, files []string) ([]row, collectStats, error) {
	// Pass 1: Build bloom filters concurrently.
	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))

	filters, err := buildBloomFilters(ctx, files)
	if err != nil {
		return nil, collectStats{}, errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: Split rows into unique ones and cross-file candidates.
	slog.Info("pass 2: finding cross-file codes")

	results := make([]fileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(scanFile(gctx, i, f, filters, results))
	}
	if err := g.Wait(); err != nil {
		return nil, collectStats{}, err
	}

	var (
		rows   []row
		stats  collectStats
		merged = make(map[string]candidate)
	)
	for _, r := range results {
		rows = append(rows, r.unique...)
		stats.invalid += r.invalid
		for code, c := range r.candidates {
			m, ok := merged[code]
			if !ok {
				m.row = c.row
			}
			m.mask |= c.mask
			merged[code] = m
		}
	}

	// Bloom false positives come back with a single file bit.
	for code, c := range merged {
		if bits.OnesCount(c.mask) >= 2 {
			stats.conflicts++
			slog.Warn("code listed in several files, skipped", slog.String("code", code))
			continue
		}
		rows = append(rows, c.row)
	}
	return rows, stats, nil
}

// buildBloomFilters creates one bloom filter per file, concurrently.
func buildBloomFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
			var count uint64
			err := streamGzFile(ctx, f, func(_ int, line string) {
				r, ok, err := parseLine(line)
				if err != nil || !ok {
					return
				}
				filter.AddString(r.code)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.String("file", f), slog.Uint64("codes", count))
				}
			})
			if err != nil {
				return errors.Wrapf(err, "build filter for %s", f)
			}

			slog.Info("pass 1 complete", slog.String("file", f), slog.Uint64("total_codes", count))
			filters[i] = filter
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

func scanFile(
	ctx context.Context,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
	results []fileResult,
) func() error {
	return func() error {
		res := fileResult{candidates: make(map[string]candidate)}
		seen := make(map[string]struct{})
		fileBit := uint(1) << uint(idx)

		err := streamGzFile(ctx, path, func(lineNo int, line string) {
			r, ok, err := parseLine(line)
			if err != nil {
				res.invalid++
				slog.Warn("invalid line skipped",
					slog.String("file", path),
					slog.Int("line", lineNo),
					slog.String("error", err.Error()),
				)
				return
			}
			if !ok {
				return
			}
			if _, dup := seen[r.code]; dup {
				return
			}
			seen[r.code] = struct{}{}

			for j, f := range filters {
				if j != idx && f.TestString(r.code) {
					res.candidates[r.code] = candidate{mask: fileBit, row: r}
					return
				}
			}
			res.unique = append(res.unique, r)
		})
		if err != nil {
			return errors.Wrapf(err, "scan %s", path)
		}

		slog.Info("pass 2 complete",
			slog.String("file", path),
			slog.Int("unique", len(res.unique)),
			slog.Int("candidates", len(res.candidates)),
		)
		results[idx] = res
		return nil
	}
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(lineNo int, line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	lineNo := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		lineNo++
		fn(lineNo, scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

type (
	codeImporter interface {
		Import(ctx context.Context, codes []referral.Code) (int64, error)
	}
	userFinder interface {
		FindByUsername(ctx context.Context, username string) (*auth.User, error)
	}
	settingsGetter interface {
		GetSettings(ctx context.Context) (*referral.Settings, error)
	}
)

// importer resolves marketers and writes codes in batches. Codes that already
// exist are left untouched.
type importer struct {
	codes     codeImporter
	users     userFinder
	settings  settingsGetter
	batchSize int
}

func (im importer) importRows(ctx context.Context, rows []row) (int64, error) {
	defaults, err := im.settings.GetSettings(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "load referral settings")
	}

	marketers := make(map[string]int64)
	batchSize := max(im.batchSize, 1)
	batch := make([]referral.Code, 0, batchSize)
	var inserted int64

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := im.codes.Import(ctx, batch)
		if err != nil {
			return err
		}
		inserted += n
		slog.Info("write progress", slog.Int64("inserted", inserted))
		batch = batch[:0]
		return nil
	}

	for _, r := range rows {
		id, ok := marketers[r.marketer]
		if !ok {
			u, err := im.users.FindByUsername(ctx, r.marketer)
			switch {
			case errors.Is(err, postgres.ErrUserNotFound):
				slog.Warn("unknown marketer, codes skipped", slog.String("marketer", r.marketer))
			case err != nil:
				return inserted, errors.Wrapf(err, "find marketer %q", r.marketer)
			case u.Role != auth.RoleMarketer:
				slog.Warn("user is not a marketer, codes skipped",
					slog.String("marketer", r.marketer),
					slog.String("role", string(u.Role)),
				)
			default:
				id = u.ID
			}
			marketers[r.marketer] = id
		}
		if id == 0 {
			continue
		}

		c := referral.Code{
			MarketerID:           id,
			Code:                 r.code,
			DiscountPercentage:   defaults.DiscountPercentage,
			CommissionPercentage: defaults.CommissionPercentage,
			IsActive:             true,
		}
		if r.discount != nil {
			c.DiscountPercentage = *r.discount
		}
		if r.commission != nil {
			c.CommissionPercentage = *r.commission
		}

		batch = append(batch, c)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return inserted, err
			}
		}
	}
	if err := flush(); err != nil {
		return inserted, err
	}
	return inserted, nil
}
