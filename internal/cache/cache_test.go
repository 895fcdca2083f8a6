package cache

import (
	"fmt"
	"sync"
	"testing"
)

func TestLRU(t *testing.T) {
	c := NewLRU[string, int](2)

	c.Set("key1", 1)

	got, found := c.Get("key1")
	if !found {
		t.Fatal("Get(key1) not found")
	}
	if got != 1 {
		t.Errorf("Get(key1) = %d, want 1", got)
	}

	if _, found := c.Get("nonexistent"); found {
		t.Error("Get(nonexistent) found, want miss")
	}
}

func TestLRUEviction(t *testing.T) {
	c := NewLRU[string, int](2)

	c.Set("key1", 1)
	c.Set("key2", 2)
	c.Get("key1")    // key1 is now the most recently used
	c.Set("key3", 3) // Evicts key2

	if _, found := c.Get("key2"); found {
		t.Error("key2 should be evicted")
	}
	if _, found := c.Get("key1"); !found {
		t.Error("key1 should exist")
	}
	if _, found := c.Get("key3"); !found {
		t.Error("key3 should exist")
	}
}

func TestLRUUpdate(t *testing.T) {
	c := NewLRU[string, int](2)

	c.Set("key1", 1)
	c.Set("key1", 10)

	if got, _ := c.Get("key1"); got != 10 {
		t.Errorf("Get(key1) = %d, want 10", got)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestLRUZeroCapacity(t *testing.T) {
	c := NewLRU[string, int](0)
	c.Set("key1", 1)

	if _, found := c.Get("key1"); found {
		t.Error("zero-capacity cache should not store entries")
	}
}

func TestLRUDeleteAndClear(t *testing.T) {
	c := NewLRU[string, int](10)

	c.Set("key1", 1)
	c.Set("key2", 2)
	c.Delete("key1")

	if _, found := c.Get("key1"); found {
		t.Error("key1 should be deleted")
	}

	c.Clear()
	if stats := c.Stats(); stats.Entries != 0 {
		t.Errorf("Entries after Clear() = %d, want 0", stats.Entries)
	}
}

func TestLRUStats(t *testing.T) {
	c := NewLRU[string, int](10)

	c.Set("key1", 1)
	c.Get("key1")
	c.Get("key1")
	c.Get("key2")

	stats := c.Stats()
	if stats.Hits != 2 {
		t.Errorf("Hits = %d, want 2", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("Misses = %d, want 1", stats.Misses)
	}
	if stats.Entries != 1 {
		t.Errorf("Entries = %d, want 1", stats.Entries)
	}
	if rate := stats.HitRate(); rate < 0.66 || rate > 0.67 {
		t.Errorf("HitRate() = %f, want ~0.667", rate)
	}
	if (Stats{}).HitRate() != 0 {
		t.Error("HitRate() of empty stats should be 0")
	}
}

func TestLRUConcurrent(t *testing.T) {
	c := NewLRU[string, int](50)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("key%d", (g*i)%100)
				c.Set(key, i)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 50 {
		t.Errorf("Len() = %d, exceeds capacity 50", c.Len())
	}
}

func BenchmarkLRU_Get(b *testing.B) {
	c := NewLRU[string, int](1000)
	for i := 0; i < 1000; i++ {
		c.Set(fmt.Sprintf("key%d", i), i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get(fmt.Sprintf("key%d", i%1000))
	}
}
