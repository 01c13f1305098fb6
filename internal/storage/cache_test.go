package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat_gateway/internal/models"
)

// countingProviderRepository wraps the memory repository and counts GetByID
// calls so cache hits are observable.
type countingProviderRepository struct {
	*MemoryProviderRepository
	mu   sync.Mutex
	gets int
}

func (r *countingProviderRepository) GetByID(ctx context.Context, id string) (*models.Provider, error) {
	r.mu.Lock()
	r.gets++
	r.mu.Unlock()
	return r.MemoryProviderRepository.GetByID(ctx, id)
}

func (r *countingProviderRepository) getCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gets
}

func TestCachedProviderRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("serves repeated lookups from cache", func(t *testing.T) {
		inner := &countingProviderRepository{MemoryProviderRepository: NewMemoryProviderRepository()}
		repo := NewCachedProviderRepository(inner, 10, time.Minute)

		require.NoError(t, repo.Create(ctx, memProvider("openai")))

		for i := 0; i < 5; i++ {
			_, err := repo.GetByID(ctx, "openai")
			require.NoError(t, err)
		}
		assert.Equal(t, 1, inner.getCount())
	})

	t.Run("update invalidates cached entry", func(t *testing.T) {
		inner := &countingProviderRepository{MemoryProviderRepository: NewMemoryProviderRepository()}
		repo := NewCachedProviderRepository(inner, 10, time.Minute)

		require.NoError(t, repo.Create(ctx, memProvider("openai")))
		_, err := repo.GetByID(ctx, "openai")
		require.NoError(t, err)

		update := memProvider("openai")
		update.DisplayName = "Renamed"
		require.NoError(t, repo.Update(ctx, update))

		got, err := repo.GetByID(ctx, "openai")
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.DisplayName)
	})

	t.Run("delete invalidates cached entry", func(t *testing.T) {
		inner := &countingProviderRepository{MemoryProviderRepository: NewMemoryProviderRepository()}
		repo := NewCachedProviderRepository(inner, 10, time.Minute)

		require.NoError(t, repo.Create(ctx, memProvider("openai")))
		_, err := repo.GetByID(ctx, "openai")
		require.NoError(t, err)

		require.NoError(t, repo.Delete(ctx, "openai"))
		_, err = repo.GetByID(ctx, "openai")
		assert.ErrorIs(t, err, ErrProviderNotFound)
	})

	t.Run("expired entries are refetched", func(t *testing.T) {
		inner := &countingProviderRepository{MemoryProviderRepository: NewMemoryProviderRepository()}
		repo := NewCachedProviderRepository(inner, 10, 10*time.Millisecond)

		require.NoError(t, repo.Create(ctx, memProvider("openai")))
		_, err := repo.GetByID(ctx, "openai")
		require.NoError(t, err)

		time.Sleep(20 * time.Millisecond)
		_, err = repo.GetByID(ctx, "openai")
		require.NoError(t, err)
		assert.Equal(t, 2, inner.getCount())
	})

	t.Run("evicts least recently used past capacity", func(t *testing.T) {
		inner := &countingProviderRepository{MemoryProviderRepository: NewMemoryProviderRepository()}
		repo := NewCachedProviderRepository(inner, 2, time.Minute)

		for _, id := range []string{"a", "b", "c"} {
			require.NoError(t, repo.Create(ctx, memProvider(id)))
			_, err := repo.GetByID(ctx, id)
			require.NoError(t, err)
		}

		// "a" was evicted, so this lookup hits the inner repository again.
		before := inner.getCount()
		_, err := repo.GetByID(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, before+1, inner.getCount())
	})

	t.Run("cached results are copies", func(t *testing.T) {
		inner := &countingProviderRepository{MemoryProviderRepository: NewMemoryProviderRepository()}
		repo := NewCachedProviderRepository(inner, 10, time.Minute)

		require.NoError(t, repo.Create(ctx, memProvider("openai")))
		got, err := repo.GetByID(ctx, "openai")
		require.NoError(t, err)
		got.DisplayName = "mutated"

		fresh, err := repo.GetByID(ctx, "openai")
		require.NoError(t, err)
		assert.Equal(t, "Test Provider", fresh.DisplayName)
	})
}
