package discount

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Store persists the discounts attached to orders. Add must reject a second
// discount with the same code on the same order.
type Store interface {
	List(ctx context.Context, orderID string) ([]Discount, error)
	Add(ctx context.Context, d Discount) error
	Remove(ctx context.Context, orderID, discountID string) (Discount, error)
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[string]map[string]Discount
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[string]map[string]Discount)}
}

func (s *MemoryStore) List(_ context.Context, orderID string) ([]Discount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Discount, 0, len(s.orders[orderID]))
	for _, d := range s.orders[orderID] {
		out = append(out, d)
	}
	SortByCreation(out)
	return out, nil
}

func (s *MemoryStore) Add(_ context.Context, d Discount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	attached := s.orders[d.OrderID]
	if attached == nil {
		attached = make(map[string]Discount)
		s.orders[d.OrderID] = attached
	}
	if d.Code != "" {
		for _, existing := range attached {
			if existing.Code == d.Code {
				return fmt.Errorf("%w: %s", ErrCodeAlreadyRedeemed, d.Code)
			}
		}
	}
	attached[d.ID] = d
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, orderID, discountID string) (Discount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.orders[orderID][discountID]
	if !ok {
		return Discount{}, ErrDiscountNotFound
	}
	delete(s.orders[orderID], discountID)
	return d, nil
}

// RedisStore keeps one hash of JSON discounts per order plus a code index
// hash that enforces one redemption per code and order.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis backed store. Keys are prefixed with prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(orderID string) string {
	return s.prefix + "discounts:" + orderID
}

func (s *RedisStore) codesKey(orderID string) string {
	return s.key(orderID) + ":codes"
}

func (s *RedisStore) List(ctx context.Context, orderID string) ([]Discount, error) {
	values, err := s.client.HGetAll(ctx, s.key(orderID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Discount, 0, len(values))
	for id, raw := range values {
		var d Discount
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, fmt.Errorf("decode discount %s: %w", id, err)
		}
		out = append(out, d)
	}
	SortByCreation(out)
	return out, nil
}

func (s *RedisStore) Add(ctx context.Context, d Discount) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	if d.Code != "" {
		ok, err := s.client.HSetNX(ctx, s.codesKey(d.OrderID), d.Code, d.ID).Result()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrCodeAlreadyRedeemed, d.Code)
		}
	}
	if err := s.client.HSet(ctx, s.key(d.OrderID), d.ID, data).Err(); err != nil {
		if d.Code != "" {
			_ = s.client.HDel(ctx, s.codesKey(d.OrderID), d.Code).Err()
		}
		return err
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, orderID, discountID string) (Discount, error) {
	raw, err := s.client.HGet(ctx, s.key(orderID), discountID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Discount{}, ErrDiscountNotFound
		}
		return Discount{}, err
	}
	var d Discount
	if err := json.Unmarshal(raw, &d); err != nil {
		return Discount{}, fmt.Errorf("decode discount %s: %w", discountID, err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, s.key(orderID), discountID)
		if d.Code != "" {
			pipe.HDel(ctx, s.codesKey(orderID), d.Code)
		}
		return nil
	})
	if err != nil {
		return Discount{}, err
	}
	return d, nil
}
