package hashtable

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/creachadair/cityhash"
)

// AlphabetIndex is the default string bucket hash: the bytes of s read as
// digits of a number in base g.AlphabetLength, reduced modulo g.IndexSize at
// every step.
func AlphabetIndex(g Geometry, s string) uint32 {
	size := uint64(g.IndexSize)
	radix := uint64(g.AlphabetLength)

	h := uint64(1)
	for i := 0; i < len(s); i++ {
		h = (h*radix + uint64(s[i])) % size
	}
	return uint32(h)
}

// ClassicOrder is the default ordering hash, h*31 + c starting from 1.
func ClassicOrder(s string) uint64 {
	h := uint64(1)
	for i := 0; i < len(s); i++ {
		h = (h << 5) - h + uint64(s[i])
	}
	return h
}

// XXHashOrder orders by the 64-bit xxHash of s.
func XXHashOrder(s string) uint64 {
	return xxhash.Sum64String(s)
}

// CityHashOrder orders by the 64-bit CityHash of s.
func CityHashOrder(s string) uint64 {
	return cityhash.Hash64([]byte(s))
}

// OrderFunc computes an ordering value from a string.
type OrderFunc func(string) uint64

// Known ordering hash names, as accepted by OrderFuncByName.
const (
	OrderClassic  = "classic"
	OrderXXHash   = "xxhash"
	OrderCityHash = "cityhash"
)

// OrderFuncByName returns the ordering hash registered under name.
// The empty name selects the classic hash.
func OrderFuncByName(name string) (OrderFunc, error) {
	switch strings.ToLower(name) {
	case "", OrderClassic:
		return ClassicOrder, nil
	case OrderXXHash:
		return XXHashOrder, nil
	case OrderCityHash:
		return CityHashOrder, nil
	default:
		return nil, fmt.Errorf("unknown order hash %q (expected %s, %s or %s)",
			name, OrderClassic, OrderXXHash, OrderCityHash)
	}
}

// StringKeys is a ready-made KeyOps for plain string keys.
type StringKeys struct {
	// OrderFn defaults to ClassicOrder.
	OrderFn OrderFunc
}

func (s StringKeys) Index(g Geometry, key string) uint32 {
	return AlphabetIndex(g, key)
}

func (s StringKeys) Order(_ Geometry, key string) uint64 {
	if s.OrderFn == nil {
		return ClassicOrder(key)
	}
	return s.OrderFn(key)
}

func (StringKeys) Equal(a, b string) bool { return a == b }

func (StringKeys) Format(key string) string { return key }
