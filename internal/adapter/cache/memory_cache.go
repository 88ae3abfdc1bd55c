package cache

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/example/wb-order-pipeline/internal/domain"
)

const shardCount = 32

// MemoryOrderCache — потокобезопасный кэш заказов. Ключи разнесены по шардам,
// поэтому запись одного ключа не блокирует чтение ключей из других шардов.
type MemoryOrderCache struct {
	shards [shardCount]*shard
}

type shard struct {
	mu    sync.RWMutex
	store map[string]domain.Order
}

func NewMemoryOrderCache() *MemoryOrderCache {
	c := &MemoryOrderCache{}
	for i := range c.shards {
		c.shards[i] = &shard{store: make(map[string]domain.Order)}
	}
	return c
}

func (c *MemoryOrderCache) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return c.shards[h.Sum32()%shardCount]
}

func (c *MemoryOrderCache) Get(id string) (domain.Order, bool) {
	s := c.shardFor(id)
	s.mu.RLock()
	o, ok := s.store[id]
	s.mu.RUnlock()
	if !ok {
		return domain.Order{}, false
	}
	return o.Clone(), true
}

// Put — безусловная запись, последний писатель выигрывает.
func (c *MemoryOrderCache) Put(id string, o domain.Order) {
	o = o.Clone()
	s := c.shardFor(id)
	s.mu.Lock()
	s.store[id] = o
	s.mu.Unlock()
}

func (c *MemoryOrderCache) PutIfAbsent(id string, o domain.Order) bool {
	o = o.Clone()
	s := c.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.store[id]; ok {
		return false
	}
	s.store[id] = o
	return true
}

func (c *MemoryOrderCache) All() []domain.Order {
	out := make([]domain.Order, 0, c.Size())
	for _, s := range c.shards {
		s.mu.RLock()
		for _, o := range s.store {
			out = append(out, o.Clone())
		}
		s.mu.RUnlock()
	}
	return out
}

func (c *MemoryOrderCache) Size() int {
	n := 0
	for _, s := range c.shards {
		s.mu.RLock()
		n += len(s.store)
		s.mu.RUnlock()
	}
	return n
}

// WarmLoad — заполнить кэш последними заказами из хранилища. Ошибка загрузки
// отдельного заказа не прерывает прогрев: она попадает в отчёт.
func (c *MemoryOrderCache) WarmLoad(ctx context.Context, src domain.WarmSource, limit int) (domain.WarmReport, error) {
	var report domain.WarmReport
	ids, err := src.ListRecentIDs(ctx, limit)
	if err != nil {
		return report, fmt.Errorf("list recent orders: %w", err)
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		o, err := src.FindByID(ctx, id)
		if err != nil {
			// заказ мог быть удалён между выборками — это тоже пропуск
			if errors.Is(err, domain.ErrNotFound) {
				err = fmt.Errorf("vanished during warm-up: %w", err)
			}
			report.Failed++
			report.Errors = append(report.Errors, &domain.CacheWarmError{OrderUID: id, Err: err})
			continue
		}
		c.PutIfAbsent(id, o)
		report.Loaded++
	}
	return report, nil
}

var _ domain.OrderCache = (*MemoryOrderCache)(nil)
