package cmap

import (
	"sort"
	"strconv"
	"sync"
	"testing"
)

func TestMap_Basic(t *testing.T) {
	m := New[string, int]()

	m.Set("a", 1)
	m.Set("b", 2)
	if v, ok := m.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v", v, ok)
	}
	if _, ok := m.Get("c"); ok {
		t.Error("Get(c) found a missing key")
	}
	if m.Count() != 2 {
		t.Errorf("Count() = %d", m.Count())
	}

	m.Delete("a")
	if _, ok := m.Get("a"); ok {
		t.Error("key still present after Delete")
	}

	m.Clear()
	if m.Count() != 0 {
		t.Errorf("Count() after Clear = %d", m.Count())
	}
}

func TestMap_NonStringKeys(t *testing.T) {
	m := NewWithShards[uint64, string](4)
	for i := uint64(0); i < 100; i++ {
		m.Set(i, strconv.FormatUint(i, 10))
	}
	if m.Count() != 100 {
		t.Fatalf("Count() = %d", m.Count())
	}
	if v, _ := m.Get(42); v != "42" {
		t.Errorf("Get(42) = %q", v)
	}
}

func TestNewWithShards_InvalidCount(t *testing.T) {
	for _, n := range []int{0, -1, 3, 12} {
		if got := len(NewWithShards[string, int](n).shards); got != DefaultShardCount {
			t.Errorf("NewWithShards(%d) has %d shards", n, got)
		}
	}
}

func TestMap_RangeAndValues(t *testing.T) {
	m := New[string, int]()
	for i := 0; i < 10; i++ {
		m.Set(strconv.Itoa(i), i)
	}

	values := m.Values()
	sort.Ints(values)
	if len(values) != 10 || values[0] != 0 || values[9] != 9 {
		t.Errorf("Values() = %v", values)
	}

	seen := 0
	m.Range(func(string, int) bool {
		seen++
		return seen < 3
	})
	if seen != 3 {
		t.Errorf("Range visited %d entries after stop", seen)
	}
}

func TestMap_Upsert(t *testing.T) {
	m := New[string, int]()
	newer := func(existing int, exists bool) int {
		if exists && existing > 5 {
			return existing
		}
		return 5
	}

	if got := m.Upsert("k", 5, newer); got != 5 {
		t.Errorf("insert = %d", got)
	}
	m.Set("k", 9)
	if got := m.Upsert("k", 5, newer); got != 9 {
		t.Errorf("upsert kept %d, want 9", got)
	}
}

func TestMap_Concurrent(t *testing.T) {
	m := New[string, int]()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				m.Upsert("counter", 1, func(existing int, exists bool) int {
					if !exists {
						return 1
					}
					return existing + 1
				})
			}
		}()
	}
	wg.Wait()

	if v, _ := m.Get("counter"); v != 1600 {
		t.Errorf("counter = %d, want 1600", v)
	}
}
