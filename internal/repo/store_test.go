package repo

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type contact struct {
	Name   string
	Groups []string
}

func TestStoreSetReportsChange(t *testing.T) {
	s := NewStore[string, contact](nil)

	assert.True(t, s.Set("alice", contact{Name: "Alice"}))
	assert.False(t, s.Set("alice", contact{Name: "Alice"}), "same value is not a change")
	assert.True(t, s.Set("alice", contact{Name: "Alice", Groups: []string{"Friends"}}))

	v, ok := s.Get("alice")
	assert.True(t, ok)
	assert.Equal(t, []string{"Friends"}, v.Groups)
}

func TestStoreUpdate(t *testing.T) {
	s := NewStore[string, int](func(a, b int) bool { return a == b })

	changed := s.Update("n", func(v *int) bool {
		*v += 2
		return true
	})
	assert.True(t, changed)

	changed = s.Update("n", func(v *int) bool { return false })
	assert.False(t, changed)

	v, _ := s.Get("n")
	assert.Equal(t, 2, v)

	assert.False(t, s.UpdateExisting("missing", func(v *int) bool { return true }))
	_, ok := s.Get("missing")
	assert.False(t, ok)
}

func TestStoreDelete(t *testing.T) {
	s := NewStore[string, int](nil)
	s.Set("a", 1)
	s.Set("b", 2)
	s.Set("c", 3)

	assert.True(t, s.Delete("a"))
	assert.False(t, s.Delete("a"))

	removed := s.DeleteFunc(func(_ string, v int) bool { return v > 2 })
	assert.Equal(t, []string{"c"}, removed)
	assert.Equal(t, map[string]int{"b": 2}, s.All())

	s.Clear()
	assert.Equal(t, 0, s.Len())
}

func TestStoreConcurrentReaders(t *testing.T) {
	s := NewStore[int, int](nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Get(j)
				s.All()
			}
		}()
	}
	for j := 0; j < 100; j++ {
		s.Set(j, j)
	}
	wg.Wait()

	assert.Equal(t, 100, s.Len())
}
