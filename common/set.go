package common

import (
	"cmp"
	"slices"
)

type Set[T cmp.Ordered] map[T]struct{}

func NewSet[T cmp.Ordered](items ...T) Set[T] {
	set := make(Set[T], len(items))
	return set.AddAll(items)
}

func (set Set[T]) Add(item T) Set[T] {
	set[item] = struct{}{}
	return set
}

func (set Set[T]) AddAll(items []T) Set[T] {
	for _, item := range items {
		set.Add(item)
	}
	return set
}

func (set Set[T]) Contains(item T) bool {
	_, ok := set[item]
	return ok
}

// Sorted, for stable log and error messages
func (set Set[T]) Values() []T {
	values := make([]T, 0, len(set))
	for val := range set {
		values = append(values, val)
	}
	slices.Sort(values)

	return values
}

func (set Set[T]) IsEmpty() bool {
	return len(set) == 0
}
