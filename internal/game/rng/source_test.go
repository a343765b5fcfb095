package rng

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestCryptoSource_Range(t *testing.T) {
	src := NewCryptoSource()
	for i := 0; i < 1000; i++ {
		v := src.Float64()
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Less(t, v, 1.0)
	}
}

func TestSeededSource_Deterministic(t *testing.T) {
	a := NewSeededSource(42)
	b := NewSeededSource(42)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Float64(), b.Float64())
	}
}

func TestSeededSource_ConcurrentUse(t *testing.T) {
	src := NewSeededSource(7)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = src.Float64()
			}
		}()
	}
	wg.Wait()
}

func TestPropertyBetweenStaysInRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.Uint64().Draw(t, "seed")
		lo := rapid.Float64Range(-1000, 1000).Draw(t, "lo")
		width := rapid.Float64Range(0.001, 5000).Draw(t, "width")
		v := Between(NewSeededSource(seed), lo, lo+width)
		if v < lo || v > lo+width {
			t.Fatalf("Between(%v, %v) = %v out of range", lo, lo+width, v)
		}
	})
}
