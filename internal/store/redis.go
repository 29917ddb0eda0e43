package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/erazemk/najdbe/internal/model"
)

// Verify at compile time that Redis implements Store.
var _ Store = (*Redis)(nil)

// redisPage is how many report keys are fetched per round trip when iterating.
const redisPage = 100

// Redis is a Store kept in Redis. Reports are JSON values; insertion order and
// the category index are sorted sets scored by a per-kind sequence. Commits
// use WATCH/MULTI so a concurrent write to either report aborts the commit.
type Redis struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedis creates a store using keys under prefix.
func NewRedis(client *redis.Client, prefix string, opts ...Option) *Redis {
	o := newOptions(opts)
	return &Redis{client: client, prefix: prefix, now: o.now}
}

func (s *Redis) key(parts ...string) string {
	k := s.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

// Lost returns the lost report collection.
func (s *Redis) Lost() Collection[*model.LostReport] {
	return &redisCollection[*model.LostReport]{s: s, kind: model.KindLost, prepare: prepareLost,
		alloc: func() *model.LostReport { return &model.LostReport{} }}
}

// Found returns the found report collection.
func (s *Redis) Found() Collection[*model.FoundReport] {
	return &redisCollection[*model.FoundReport]{s: s, kind: model.KindFound, prepare: prepareFound,
		alloc: func() *model.FoundReport { return &model.FoundReport{} }}
}

// Commit applies a transition inside MULTI/EXEC, watching both report keys.
func (s *Redis) Commit(ctx context.Context, tr Transition) error {
	var keys []string
	if tr.Lost != nil {
		keys = append(keys, s.key(string(model.KindLost), tr.Lost.ID))
	}
	if tr.Found != nil {
		keys = append(keys, s.key(string(model.KindFound), tr.Found.ID))
	}
	now := s.now()

	var lost *model.LostReport
	var found *model.FoundReport
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		lost, found = nil, nil
		if tr.Lost != nil {
			stored := &model.LostReport{}
			if err := s.load(ctx, tx, model.KindLost, tr.Lost.ID, stored); err != nil {
				return err
			}
			if err := checkVersion(model.KindLost, stored.ID, stored.Version, tr.Lost.Version); err != nil {
				return err
			}
			applyLostState(stored, tr.Lost, now)
			lost = stored
		}
		if tr.Found != nil {
			stored := &model.FoundReport{}
			if err := s.load(ctx, tx, model.KindFound, tr.Found.ID, stored); err != nil {
				return err
			}
			if err := checkVersion(model.KindFound, stored.ID, stored.Version, tr.Found.Version); err != nil {
				return err
			}
			applyFoundState(stored, tr.Found, now)
			found = stored
		}

		events := make([][]byte, len(tr.Events))
		for i := range tr.Events {
			id, err := tx.Incr(ctx, s.key("events", "seq")).Result()
			if err != nil {
				return fmt.Errorf("allocating event id: %w", err)
			}
			tr.Events[i].ID = id
			if tr.Events[i].At.IsZero() {
				tr.Events[i].At = now
			}
			if events[i], err = json.Marshal(tr.Events[i]); err != nil {
				return fmt.Errorf("encoding event: %w", err)
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if lost != nil {
				data, err := json.Marshal(lost)
				if err != nil {
					return err
				}
				pipe.Set(ctx, s.key(string(model.KindLost), lost.ID), data, 0)
			}
			if found != nil {
				data, err := json.Marshal(found)
				if err != nil {
					return err
				}
				pipe.Set(ctx, s.key(string(model.KindFound), found.ID), data, 0)
			}
			for i, e := range tr.Events {
				pipe.RPush(ctx, s.key("events", string(e.ReportKind), e.ReportID), events[i])
			}
			return nil
		})
		return err
	}, keys...)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: reports changed during commit", model.ErrConflict)
	}
	if err != nil {
		return err
	}

	if lost != nil {
		tr.Lost.Version, tr.Lost.UpdatedAt = lost.Version, lost.UpdatedAt
	}
	if found != nil {
		tr.Found.Version, tr.Found.UpdatedAt = found.Version, found.UpdatedAt
	}
	return nil
}

// getter is the part of *redis.Client and *redis.Tx that load needs.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *Redis) load(ctx context.Context, c getter, kind model.Kind, id string, dst any) error {
	data, err := c.Get(ctx, s.key(string(kind), id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return notFound(kind, id)
	}
	if err != nil {
		return fmt.Errorf("getting %s report: %w", kind, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decoding %s report: %w", kind, err)
	}
	return nil
}

// History returns the events of one report, newest first.
func (s *Redis) History(ctx context.Context, kind model.Kind, id string) ([]model.Event, error) {
	raw, err := s.client.LRange(ctx, s.key("events", string(kind), id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("getting report history: %w", err)
	}
	events := make([]model.Event, 0, len(raw))
	for _, r := range raw {
		var e model.Event
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("decoding event: %w", err)
		}
		events = append(events, e)
	}
	slices.Reverse(events)
	return events, nil
}

// PutImage stores an image and returns its reference.
func (s *Redis) PutImage(ctx context.Context, data []byte, mime string) (string, error) {
	ref := imageRef()
	if err := s.client.HSet(ctx, s.key(ref), "data", data, "mime", mime).Err(); err != nil {
		return "", fmt.Errorf("storing image: %w", err)
	}
	return ref, nil
}

// GetImage returns an image and its MIME type.
func (s *Redis) GetImage(ctx context.Context, ref string) ([]byte, string, error) {
	fields, err := s.client.HGetAll(ctx, s.key(ref)).Result()
	if err != nil {
		return nil, "", fmt.Errorf("getting image: %w", err)
	}
	if len(fields) == 0 {
		return nil, "", fmt.Errorf("%w: image %s", model.ErrNotFound, ref)
	}
	return []byte(fields["data"]), fields["mime"], nil
}

// DeleteImage removes an image.
func (s *Redis) DeleteImage(ctx context.Context, ref string) error {
	if err := s.client.Del(ctx, s.key(ref)).Err(); err != nil {
		return fmt.Errorf("deleting image: %w", err)
	}
	return nil
}

type redisCollection[R model.Report] struct {
	s       *Redis
	kind    model.Kind
	prepare func(stored, next R, now time.Time) error
	alloc   func() R
}

func (c *redisCollection[R]) Put(ctx context.Context, r R) error {
	id := r.ReportID()
	key := c.s.key(string(c.kind), id)

	err := c.s.client.Watch(ctx, func(tx *redis.Tx) error {
		var stored R
		exists := false
		existing := c.alloc()
		switch err := c.s.load(ctx, tx, c.kind, id, existing); {
		case err == nil:
			stored, exists = existing, true
		case errors.Is(err, model.ErrNotFound):
		default:
			return err
		}

		if err := c.prepare(stored, r, c.s.now()); err != nil {
			return err
		}
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encoding %s report: %w", c.kind, err)
		}

		// New reports take the next sequence number; replacements keep theirs.
		allKey := c.s.key(string(c.kind), "all")
		var seq float64
		if exists {
			if seq, err = tx.ZScore(ctx, allKey, id).Result(); err != nil {
				return fmt.Errorf("reading sequence: %w", err)
			}
		} else {
			n, err := tx.Incr(ctx, c.s.key(string(c.kind), "seq")).Result()
			if err != nil {
				return fmt.Errorf("allocating sequence: %w", err)
			}
			seq = float64(n)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.ZAdd(ctx, allKey, &redis.Z{Score: seq, Member: id})
			if exists && stored.ReportCategory() != r.ReportCategory() {
				pipe.ZRem(ctx, c.categoryKey(stored.ReportCategory()), id)
			}
			pipe.ZAdd(ctx, c.categoryKey(r.ReportCategory()), &redis.Z{Score: seq, Member: id})
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: %s report %s changed during save", model.ErrConflict, c.kind, id)
	}
	return err
}

func (c *redisCollection[R]) categoryKey(cat model.Category) string {
	return c.s.key(string(c.kind), "category", string(cat))
}

func (c *redisCollection[R]) Get(ctx context.Context, id string) (R, error) {
	r := c.alloc()
	if err := c.s.load(ctx, c.s.client, c.kind, id, r); err != nil {
		var zero R
		return zero, err
	}
	return r, nil
}

func (c *redisCollection[R]) All(ctx context.Context) iter.Seq2[R, error] {
	return c.scan(ctx, c.s.key(string(c.kind), "all"))
}

func (c *redisCollection[R]) InCategory(ctx context.Context, cat model.Category) iter.Seq2[R, error] {
	return c.scan(ctx, c.categoryKey(cat))
}

// scan walks a sorted set in pages, fetching the report values with MGET.
func (c *redisCollection[R]) scan(ctx context.Context, setKey string) iter.Seq2[R, error] {
	return func(yield func(R, error) bool) {
		var zero R
		for start := int64(0); ; start += redisPage {
			ids, err := c.s.client.ZRange(ctx, setKey, start, start+redisPage-1).Result()
			if err != nil {
				yield(zero, fmt.Errorf("listing %s reports: %w", c.kind, err))
				return
			}
			if len(ids) == 0 {
				return
			}

			keys := make([]string, len(ids))
			for i, id := range ids {
				keys[i] = c.s.key(string(c.kind), id)
			}
			values, err := c.s.client.MGet(ctx, keys...).Result()
			if err != nil {
				yield(zero, fmt.Errorf("listing %s reports: %w", c.kind, err))
				return
			}
			for _, v := range values {
				data, ok := v.(string)
				if !ok {
					continue
				}
				r := c.alloc()
				if err := json.Unmarshal([]byte(data), r); err != nil {
					yield(zero, fmt.Errorf("decoding %s report: %w", c.kind, err))
					return
				}
				if !yield(r, nil) {
					return
				}
			}
			if len(ids) < redisPage {
				return
			}
		}
	}
}
