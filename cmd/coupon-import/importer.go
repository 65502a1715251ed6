package main

import (
	"context"
	"log/slog"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront-checkout/internal/domain/coupon"
)

// store persists a batch of coupons, skipping codes that already exist.
type store interface {
	Import(ctx context.Context, coupons []coupon.Coupon) (int, error)
}

// duplicate is a code seen in File after Owner, an earlier file, claimed it.
type duplicate struct {
	Code  string
	File  string
	Owner string
}

type report struct {
	Read       int
	Invalid    int
	Inserted   int
	Duplicates []duplicate
}

type importer struct {
	store     store
	batchSize int
	capacity  uint
	fpr       float64
}

// run imports sources in order. A code present in more than one source is
// kept from the first source that has it.
//
// Pass 1 builds a bloom filter per source concurrently. Pass 2 concurrently
// marks codes that an earlier source's filter may contain. Pass 3 streams the
// sources in order, resolving only those suspects exactly, and writes batches.
func (im *importer) run(ctx context.Context, sources []source) (*report, error) {
	filters, err := im.buildFilters(ctx, sources)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}

	suspects, err := im.findSuspects(ctx, sources, filters)
	if err != nil {
		return nil, errors.Wrap(err, "find suspects")
	}
	slog.Info("cross-file candidates", slog.Int("count", len(suspects)))

	return im.write(ctx, sources, suspects)
}

func (im *importer) buildFilters(ctx context.Context, sources []source) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(sources))

	g, ctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(im.capacity, im.fpr)
			var count int
			if err := src.scan(ctx, func(r row) error {
				if r.Err == nil {
					filter.AddString(r.Coupon.Code)
					count++
				}
				return nil
			}); err != nil {
				return errors.Wrapf(err, "index %s", src.name)
			}

			slog.Info("pass 1 complete", slog.String("file", src.name), slog.Int("codes", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

func (im *importer) findSuspects(ctx context.Context, sources []source, filters []*bloom.BloomFilter) (map[string]struct{}, error) {
	perFile := make([]map[string]struct{}, len(sources))

	g, ctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		if i == 0 {
			continue
		}
		g.Go(func() error {
			found := make(map[string]struct{})
			if err := src.scan(ctx, func(r row) error {
				if r.Err != nil {
					return nil
				}
				for _, f := range filters[:i] {
					if f.TestString(r.Coupon.Code) {
						found[r.Coupon.Code] = struct{}{}
						break
					}
				}
				return nil
			}); err != nil {
				return errors.Wrapf(err, "scan %s", src.name)
			}

			slog.Info("pass 2 complete", slog.String("file", src.name), slog.Int("candidates", len(found)))
			perFile[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]struct{})
	for _, found := range perFile {
		for code := range found {
			merged[code] = struct{}{}
		}
	}
	return merged, nil
}

func (im *importer) write(ctx context.Context, sources []source, suspects map[string]struct{}) (*report, error) {
	var (
		rep     report
		batch   = make([]coupon.Coupon, 0, im.batchSize)
		claimed = make(map[string]string)
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := im.store.Import(ctx, batch)
		if err != nil {
			return err
		}
		rep.Inserted += n
		batch = batch[:0]
		return nil
	}

	for _, src := range sources {
		err := src.scan(ctx, func(r row) error {
			rep.Read++
			if r.Err != nil {
				rep.Invalid++
				slog.Warn("skipping invalid row",
					slog.String("file", src.name),
					slog.Int("line", r.Line),
					slog.String("error", r.Err.Error()),
				)
				return nil
			}

			code := r.Coupon.Code
			if _, ok := suspects[code]; ok {
				owner, seen := claimed[code]
				switch {
				case !seen:
					claimed[code] = src.name
				case owner != src.name:
					rep.Duplicates = append(rep.Duplicates, duplicate{Code: code, File: src.name, Owner: owner})
					return nil
				}
			}

			batch = append(batch, r.Coupon)
			if len(batch) >= im.batchSize {
				return flush()
			}
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "import %s", src.name)
		}
	}
	if err := flush(); err != nil {
		return nil, errors.Wrap(err, "import final batch")
	}
	return &rep, nil
}
