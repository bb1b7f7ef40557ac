package ids

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsMonotonic(t *testing.T) {
	now := time.Now()
	prev := NewAt(now)
	for range 100 {
		next := NewAt(now)
		require.Greater(t, next, prev)
		prev = next
	}
}

func TestWithPrefixUniqueUnderConcurrency(t *testing.T) {
	const n = 500
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, n)
		wg   sync.WaitGroup
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := WithPrefix("TXN")
			mu.Lock()
			seen[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
	for id := range seen {
		assert.True(t, strings.HasPrefix(id, "TXN"))
		assert.Len(t, id, 3+26)
	}
}
