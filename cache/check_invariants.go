// +build !debug

package cache

func (q *queue[K, V]) checkInvariants() {}
func (s *store[K, V]) checkInvariants() {}
