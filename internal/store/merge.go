package store

import (
	"context"
	"fmt"

	"github.com/banshee-data/tagprobe/internal/hist"
)

// Merge sums same-named histograms across inputs into a new store at dst.
// Every input must exist. A histogram present in only some inputs is
// copied as it is; same-named histograms with different axes are an error.
func Merge(ctx context.Context, dst string, inputs []string) error {
	var (
		order  []string
		merged = map[string]*hist.Histogram{}
	)
	for _, in := range inputs {
		if err := accumulate(ctx, in, merged, &order); err != nil {
			return fmt.Errorf("merge into %s: %w", dst, err)
		}
	}

	out, err := Create(ctx, dst)
	if err != nil {
		return fmt.Errorf("merge into %s: %w", dst, err)
	}
	hs := make([]*hist.Histogram, len(order))
	for i, name := range order {
		hs[i] = merged[name]
	}
	if err := out.PutAll(ctx, hs); err != nil {
		out.Close()
		return fmt.Errorf("merge into %s: %w", dst, err)
	}
	return out.Close()
}

func accumulate(ctx context.Context, path string, merged map[string]*hist.Histogram, order *[]string) error {
	s, err := Open(ctx, path)
	if err != nil {
		return err
	}
	defer s.Close()

	names, err := s.Names(ctx)
	if err != nil {
		return fmt.Errorf("list %s: %w", path, err)
	}
	for _, name := range names {
		h, err := s.Get(ctx, name)
		if err != nil {
			return err
		}
		prev, ok := merged[name]
		if !ok {
			merged[name] = h
			*order = append(*order, name)
			continue
		}
		if err := prev.Add(h); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}
