package storage

import (
	"context"
	"fmt"
)

// Snapshot copies the samples, latest ATH and channel registry of src into a
// fresh in-memory BuntStore. Writes to the copy never reach src.
func Snapshot(ctx context.Context, src Store) (*BuntStore, error) {
	dst, err := NewBuntStore(":memory:")
	if err != nil {
		return nil, err
	}

	if err := copyInto(ctx, src, dst); err != nil {
		dst.Close()
		return nil, fmt.Errorf("snapshot store: %w", err)
	}
	return dst, nil
}

func copyInto(ctx context.Context, src Store, dst *BuntStore) error {
	samples, err := src.ReadSamples(ctx)
	if err != nil {
		return err
	}
	for _, sample := range samples {
		if err := dst.AppendSample(ctx, sample); err != nil {
			return err
		}
	}

	ath, found, err := src.LatestATH(ctx)
	if err != nil {
		return err
	}
	if found {
		if err := dst.AppendATH(ctx, AthRecord{Price: ath}); err != nil {
			return err
		}
	}

	channels, err := src.ListChannels(ctx)
	if err != nil {
		return err
	}
	for _, id := range channels {
		if _, err := dst.AddChannel(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
