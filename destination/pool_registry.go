package destination

import (
	"sync"

	"github.com/BemiHQ/BemiSync/common"
)

// poolRegistry lazily opens one pool per destination id and shares it across runs
type poolRegistry[T any] struct {
	mutex sync.Mutex
	pools map[string]T
	open  func(destination common.DestinationConfig) (T, error)
	close func(pool T)
}

func newPoolRegistry[T any](open func(destination common.DestinationConfig) (T, error), close func(pool T)) *poolRegistry[T] {
	return &poolRegistry[T]{pools: make(map[string]T), open: open, close: close}
}

func (registry *poolRegistry[T]) Get(destination common.DestinationConfig) (T, error) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	if pool, ok := registry.pools[destination.Id]; ok {
		return pool, nil
	}

	pool, err := registry.open(destination)
	if err != nil {
		return pool, err
	}
	registry.pools[destination.Id] = pool
	return pool, nil
}

func (registry *poolRegistry[T]) Len() int {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	return len(registry.pools)
}

func (registry *poolRegistry[T]) Close() {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	for id, pool := range registry.pools {
		registry.close(pool)
		delete(registry.pools, id)
	}
}
