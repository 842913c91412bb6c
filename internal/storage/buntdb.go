package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/buntdb"
)

const (
	buntSamplePrefix  = "sample:"
	buntATHPrefix     = "ath:"
	buntChannelPrefix = "channel:"
)

// BuntStore implements Store on an embedded BuntDB database.
type BuntStore struct {
	lastID int64
	db     *buntdb.DB
}

type buntSample struct {
	Time  time.Time `json:"time"`
	Price *string   `json:"price,omitempty"`
}

type buntATH struct {
	Time  time.Time `json:"time"`
	Price string    `json:"ath_price"`
}

type buntChannel struct {
	ID           int64     `json:"id"`
	RegisteredAt time.Time `json:"registered_at"`
}

// NewBuntStore opens (or creates) a BuntDB file. Use ":memory:" for tests.
func NewBuntStore(path string) (*BuntStore, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open buntdb: %w", err)
	}

	store := &BuntStore{db: db}
	if err := store.loadLastID(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// loadLastID resumes the key sequence so insertion order survives restarts.
func (b *BuntStore) loadLastID() error {
	return b.db.View(func(tx *buntdb.Tx) error {
		for _, prefix := range []string{buntSamplePrefix, buntATHPrefix} {
			err := tx.DescendKeys(prefix+"*", func(key, _ string) bool {
				id, err := strconv.ParseInt(strings.TrimPrefix(key, prefix), 10, 64)
				if err == nil && id > b.lastID {
					b.lastID = id
				}
				return false
			})
			if err != nil {
				return fmt.Errorf("scan %s keys: %w", prefix, err)
			}
		}
		return nil
	})
}

func (b *BuntStore) nextKey(prefix string) string {
	return fmt.Sprintf("%s%020d", prefix, atomic.AddInt64(&b.lastID, 1))
}

// Close closes the database.
func (b *BuntStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// AppendSample stores a sample after every existing one.
func (b *BuntStore) AppendSample(_ context.Context, sample Sample) error {
	content, err := encodeBuntSample(sample)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *buntdb.Tx) error {
		if _, _, err := tx.Set(b.nextKey(buntSamplePrefix), content, nil); err != nil {
			return fmt.Errorf("failed to store sample: %w", err)
		}
		return nil
	})
}

// ReadSamples returns samples in insertion order.
func (b *BuntStore) ReadSamples(_ context.Context) ([]Sample, error) {
	samples := make([]Sample, 0)
	err := b.db.View(func(tx *buntdb.Tx) error {
		var decodeErr error
		err := tx.AscendKeys(buntSamplePrefix+"*", func(key, value string) bool {
			sample, err := decodeBuntSample(value)
			if err != nil {
				decodeErr = fmt.Errorf("decode %s: %w", key, err)
				return false
			}
			samples = append(samples, sample)
			return true
		})
		if err != nil {
			return fmt.Errorf("failed to iterate over samples: %w", err)
		}
		return decodeErr
	})
	if err != nil {
		return nil, err
	}
	return samples, nil
}

// CollapseSamples replaces the whole series with one sample in a single transaction.
func (b *BuntStore) CollapseSamples(_ context.Context, sample Sample) error {
	content, err := encodeBuntSample(sample)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *buntdb.Tx) error {
		var keys []string
		if err := tx.AscendKeys(buntSamplePrefix+"*", func(key, _ string) bool {
			keys = append(keys, key)
			return true
		}); err != nil {
			return fmt.Errorf("failed to iterate over samples: %w", err)
		}
		for _, key := range keys {
			if _, err := tx.Delete(key); err != nil {
				return fmt.Errorf("failed to delete %s: %w", key, err)
			}
		}
		if _, _, err := tx.Set(b.nextKey(buntSamplePrefix), content, nil); err != nil {
			return fmt.Errorf("failed to store sample: %w", err)
		}
		return nil
	})
}

// AppendATH records a new all-time-high.
func (b *BuntStore) AppendATH(_ context.Context, record AthRecord) error {
	content, err := json.Marshal(buntATH{Time: record.Time.UTC(), Price: record.Price.String()})
	if err != nil {
		return fmt.Errorf("failed to marshal ath: %w", err)
	}
	return b.db.Update(func(tx *buntdb.Tx) error {
		if _, _, err := tx.Set(b.nextKey(buntATHPrefix), string(content), nil); err != nil {
			return fmt.Errorf("failed to store ath: %w", err)
		}
		return nil
	})
}

// LatestATH returns the most recently appended all-time-high.
func (b *BuntStore) LatestATH(_ context.Context) (decimal.Decimal, bool, error) {
	var (
		price decimal.Decimal
		found bool
	)
	err := b.db.View(func(tx *buntdb.Tx) error {
		var decodeErr error
		err := tx.DescendKeys(buntATHPrefix+"*", func(key, value string) bool {
			var rec buntATH
			if err := json.Unmarshal([]byte(value), &rec); err != nil {
				decodeErr = fmt.Errorf("decode %s: %w", key, err)
				return false
			}
			price, decodeErr = decimal.NewFromString(rec.Price)
			found = decodeErr == nil
			return false
		})
		if err != nil {
			return fmt.Errorf("failed to iterate over ath records: %w", err)
		}
		return decodeErr
	})
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	return price, found, nil
}

// AddChannel registers a channel id if it is not already present.
func (b *BuntStore) AddChannel(_ context.Context, id int64) (bool, error) {
	added := false
	err := b.db.Update(func(tx *buntdb.Tx) error {
		key := channelKey(id)
		if _, err := tx.Get(key); err == nil {
			return nil
		} else if !errors.Is(err, buntdb.ErrNotFound) {
			return fmt.Errorf("failed to read channel: %w", err)
		}

		content, err := json.Marshal(buntChannel{ID: id, RegisteredAt: time.Now().UTC()})
		if err != nil {
			return fmt.Errorf("failed to marshal channel: %w", err)
		}
		if _, _, err := tx.Set(key, string(content), nil); err != nil {
			return fmt.Errorf("failed to store channel: %w", err)
		}
		added = true
		return nil
	})
	return added, err
}

// HasChannel reports whether the channel id is registered.
func (b *BuntStore) HasChannel(_ context.Context, id int64) (bool, error) {
	found := false
	err := b.db.View(func(tx *buntdb.Tx) error {
		_, err := tx.Get(channelKey(id))
		switch {
		case err == nil:
			found = true
			return nil
		case errors.Is(err, buntdb.ErrNotFound):
			return nil
		default:
			return fmt.Errorf("failed to read channel: %w", err)
		}
	})
	return found, err
}

// ListChannels returns every registered channel id.
func (b *BuntStore) ListChannels(_ context.Context) ([]int64, error) {
	ids := make([]int64, 0)
	err := b.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(buntChannelPrefix+"*", func(key, _ string) bool {
			id, err := strconv.ParseInt(strings.TrimPrefix(key, buntChannelPrefix), 10, 64)
			if err == nil {
				ids = append(ids, id)
			}
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate over channels: %w", err)
	}
	return ids, nil
}

func channelKey(id int64) string {
	return buntChannelPrefix + strconv.FormatInt(id, 10)
}

func encodeBuntSample(sample Sample) (string, error) {
	doc := buntSample{Time: sample.Time.UTC()}
	if sample.HasPrice() {
		price := sample.Price.Decimal.String()
		doc.Price = &price
	}
	content, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal sample: %w", err)
	}
	return string(content), nil
}

func decodeBuntSample(value string) (Sample, error) {
	var doc buntSample
	if err := json.Unmarshal([]byte(value), &doc); err != nil {
		return Sample{}, err
	}
	sample := Sample{Time: doc.Time}
	if doc.Price != nil {
		price, err := decimal.NewFromString(*doc.Price)
		if err != nil {
			return Sample{}, err
		}
		sample.Price = decimal.NewNullDecimal(price)
	}
	return sample, nil
}

var _ Store = (*BuntStore)(nil)
