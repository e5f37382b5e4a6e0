package texcache

import (
	"errors"
	"strconv"
	"sync"
	"testing"
)

func TestNewDefaultCapacity(t *testing.T) {
	c := New[string, int](0, nil)
	if c.Capacity() != DefaultCapacity {
		t.Errorf("Capacity() = %d, want %d", c.Capacity(), DefaultCapacity)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestGetAdd(t *testing.T) {
	c := New[string, int](4, nil)
	c.Add("a", 1)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v; want 1, true", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("Get(missing) should miss")
	}

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.HitRate != 0.5 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestEvictionOrder(t *testing.T) {
	var evicted []string
	c := New[string, int](2, func(k string, _ int) {
		evicted = append(evicted, k)
	})

	c.Add("a", 1)
	c.Add("b", 2)
	c.Get("a") // b is now the oldest
	c.Add("c", 3)

	if len(evicted) != 1 || evicted[0] != "b" {
		t.Fatalf("evicted = %v, want [b]", evicted)
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should survive")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
	if c.Stats().Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", c.Stats().Evictions)
	}
}

func TestAddReplaceCallsEvict(t *testing.T) {
	var got []int
	c := New[string, int](2, func(_ string, v int) { got = append(got, v) })

	c.Add("a", 1)
	c.Add("a", 2)
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("replacement evicted %v, want [1]", got)
	}
	if v, _ := c.Get("a"); v != 2 {
		t.Errorf("Get(a) = %d, want 2", v)
	}
	if c.Stats().Evictions != 0 {
		t.Error("replacement is not a capacity eviction")
	}
}

func TestGetOrCreate(t *testing.T) {
	c := New[string, int](4, nil)
	calls := 0
	create := func() (int, error) {
		calls++
		return 42, nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrCreate("k", create)
		if err != nil || v != 42 {
			t.Fatalf("GetOrCreate = %d, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("create called %d times, want 1", calls)
	}

	errBoom := errors.New("boom")
	if _, err := c.GetOrCreate("bad", func() (int, error) { return 0, errBoom }); !errors.Is(err, errBoom) {
		t.Errorf("GetOrCreate error = %v, want errBoom", err)
	}
	if _, ok := c.Get("bad"); ok {
		t.Error("failed create must not be cached")
	}
}

func TestRemovePurge(t *testing.T) {
	var evicted []string
	c := New[string, int](8, func(k string, _ int) { evicted = append(evicted, k) })
	c.Add("a", 1)
	c.Add("b", 2)
	c.Add("c", 3)

	if !c.Remove("b") {
		t.Error("Remove(b) = false")
	}
	if c.Remove("b") {
		t.Error("second Remove(b) = true")
	}

	c.Purge()
	if c.Len() != 0 {
		t.Errorf("Len() after Purge = %d", c.Len())
	}
	want := []string{"b", "a", "c"}
	if len(evicted) != len(want) {
		t.Fatalf("evicted = %v, want %v", evicted, want)
	}
	for i := range want {
		if evicted[i] != want[i] {
			t.Fatalf("evicted = %v, want %v", evicted, want)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New[string, int](16, nil)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := strconv.Itoa((g*7 + i) % 40)
				if _, err := c.GetOrCreate(key, func() (int, error) { return i, nil }); err != nil {
					t.Error(err)
					return
				}
			}
		}(g)
	}
	wg.Wait()
	if c.Len() > 16 {
		t.Errorf("Len() = %d exceeds capacity", c.Len())
	}
}

func TestLRUList(t *testing.T) {
	var l lruList[string, int]
	a := l.PushFront("a", 1)
	b := l.PushFront("b", 2)
	l.PushFront("c", 3)

	l.MoveToFront(a)
	if l.head != a || l.tail != b {
		t.Fatalf("head/tail = %s/%s, want a/b", l.head.key, l.tail.key)
	}
	l.Remove(b)
	if l.Len() != 2 || l.tail.key != "c" {
		t.Errorf("after Remove: len %d, tail %s", l.Len(), l.tail.key)
	}
	if n := l.RemoveOldest(); n == nil || n.key != "c" {
		t.Errorf("RemoveOldest = %v", n)
	}
	if n := l.RemoveOldest(); n == nil || n.key != "a" {
		t.Errorf("RemoveOldest = %v", n)
	}
	if l.RemoveOldest() != nil {
		t.Error("RemoveOldest on empty list should return nil")
	}
}
