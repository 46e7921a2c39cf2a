// Bounded dissatisfaction memory: a fixed-capacity FIFO that evicts the oldest
// sample when full.
package agents

// History is a fixed-capacity FIFO ring. Pushing into a full History drops the
// oldest element. The zero value has capacity 0 and discards everything.
type History[T any] struct {
	buf   []T
	start int // index of the oldest element
	size  int
}

// NewHistory creates an empty History holding at most capacity elements.
func NewHistory[T any](capacity int) *History[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &History[T]{buf: make([]T, capacity)}
}

// Push appends v, evicting the oldest element first when the history is full.
func (h *History[T]) Push(v T) {
	if len(h.buf) == 0 {
		return
	}
	if h.size == len(h.buf) {
		h.buf[h.start] = v
		h.start = (h.start + 1) % len(h.buf)
		return
	}
	h.buf[(h.start+h.size)%len(h.buf)] = v
	h.size++
}

// Len returns the number of retained elements.
func (h *History[T]) Len() int { return h.size }

// Cap returns the fixed capacity.
func (h *History[T]) Cap() int { return len(h.buf) }

// Each visits retained elements oldest to newest.
func (h *History[T]) Each(fn func(T)) {
	for i := 0; i < h.size; i++ {
		fn(h.buf[(h.start+i)%len(h.buf)])
	}
}

// Values returns a copy of the retained elements, oldest first.
func (h *History[T]) Values() []T {
	out := make([]T, 0, h.size)
	h.Each(func(v T) { out = append(out, v) })
	return out
}

// Last returns the newest element, if any.
func (h *History[T]) Last() (T, bool) {
	var zero T
	if h.size == 0 {
		return zero, false
	}
	return h.buf[(h.start+h.size-1)%len(h.buf)], true
}

// Sum adds up a numeric history in insertion order. An empty history sums to 0.
func Sum[T ~int | ~int64 | ~float32 | ~float64](h *History[T]) T {
	var total T
	if h == nil {
		return total
	}
	h.Each(func(v T) { total += v })
	return total
}
