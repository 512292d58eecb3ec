package task

import "testing"

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := newLRUCache(2)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3) // evicts "a"

	if c.Len() != 2 {
		t.Fatalf("expected len 2, got %d", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected a to be evicted")
	}
	if v, ok := c.Get("b"); !ok || v.(int) != 2 {
		t.Fatal("expected b to survive")
	}
}

func TestLRUCache_GetBumpsRecency(t *testing.T) {
	c := newLRUCache(2)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")     // bump a to front
	c.Set("c", 3) // should evict b, not a

	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a to survive after being touched")
	}
	if _, ok := c.Get("b"); ok {
		t.Fatal("expected b to be evicted")
	}
}

func TestLRUCache_SetExistingKeyDoesNotGrow(t *testing.T) {
	c := newLRUCache(2)
	c.Set("a", 1)
	c.Set("a", 2)

	if c.Len() != 1 {
		t.Fatalf("expected len 1, got %d", c.Len())
	}
	v, ok := c.Get("a")
	if !ok || v.(int) != 2 {
		t.Fatal("expected updated value for existing key")
	}
}

func TestLRUCache_Delete(t *testing.T) {
	c := newLRUCache(2)
	c.Set("a", 1)
	c.Delete("a")

	if c.Has("a") {
		t.Fatal("expected a to be removed")
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got len %d", c.Len())
	}
}

func TestLRUCache_ZeroCapacityIsUnbounded(t *testing.T) {
	c := newLRUCache(0)
	for i := 0; i < 100; i++ {
		c.Set(string(rune(i)), i)
	}
	if c.Len() != 100 {
		t.Fatalf("expected all 100 entries retained, got %d", c.Len())
	}
}
