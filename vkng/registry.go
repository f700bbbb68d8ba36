package vkng

// registry maps the opaque handles handed out through the gfx interfaces to
// the wrapped Vulkan objects. Handles come from a counter shared by every
// registry of a device, so a handle is never reused for a different object.
type registry[T any] struct {
	counter *uint64
	items   map[uint64]T
}

func newRegistry[T any](counter *uint64) registry[T] {
	return registry[T]{counter: counter, items: make(map[uint64]T)}
}

func (r *registry[T]) add(v T) uint64 {
	*r.counter++
	r.items[*r.counter] = v
	return *r.counter
}

func (r *registry[T]) get(h uint64) (T, bool) {
	v, ok := r.items[h]
	return v, ok
}

func (r *registry[T]) remove(h uint64) (T, bool) {
	v, ok := r.items[h]
	delete(r.items, h)
	return v, ok
}

func (r *registry[T]) len() int {
	return len(r.items)
}
