package addr

// rangeElem is the surface Range needs from an address type. IPv4, IPv6 and
// MAC all satisfy it.
type rangeElem[A any] interface {
	Compare(A) int
	Inc() (A, bool)
	And(A) A
	Or(A) A
	Not() A
}

// Range is the closed interval [first, last] over an address type. When
// onlyHosts is set the network and broadcast endpoints are skipped during
// iteration, but still count as members.
type Range[A rangeElem[A]] struct {
	first     A
	last      A
	onlyHosts bool
}

// NewRange builds a range from explicit endpoints. first must not order
// after last; endpoints are swapped if it does.
func NewRange[A rangeElem[A]](first, last A) Range[A] {
	if first.Compare(last) > 0 {
		first, last = last, first
	}
	return Range[A]{first: first, last: last}
}

// RangeFromMask builds the range covered by base/mask. The resulting range
// iterates hosts only.
func RangeFromMask[A rangeElem[A]](base, mask A) Range[A] {
	return Range[A]{
		first:     base.And(mask),
		last:      base.And(mask).Or(mask.Not()),
		onlyHosts: true,
	}
}

func (r Range[A]) First() A { return r.first }
func (r Range[A]) Last() A  { return r.last }

// OnlyHosts reports whether iteration skips the interval endpoints.
func (r Range[A]) OnlyHosts() bool { return r.onlyHosts }

// Contains tests membership. Endpoints are members even for host-only
// ranges.
func (r Range[A]) Contains(a A) bool {
	return r.first.Compare(a) <= 0 && a.Compare(r.last) <= 0
}

// IsIterable reports whether iteration would yield at least one address.
// A /31 or /32 host-only range is not iterable.
func (r Range[A]) IsIterable() bool {
	if !r.onlyHosts {
		return true
	}
	next, ok := r.first.Inc()
	return ok && next.Compare(r.last) < 0
}

// Iter is a forward iterator over the range.
type Iter[A rangeElem[A]] struct {
	next A
	last A
	excl bool // stop strictly before last (host-only ranges)
	done bool
}

func (r Range[A]) Iterator() *Iter[A] {
	it := &Iter[A]{last: r.last, excl: r.onlyHosts}
	start := r.first
	if r.onlyHosts {
		next, ok := start.Inc()
		if !ok {
			it.done = true
			return it
		}
		start = next
	}
	c := start.Compare(r.last)
	if c > 0 || (it.excl && c >= 0) {
		it.done = true
		return it
	}
	it.next = start
	return it
}

// Next yields the next address; ok is false once the range is exhausted.
func (it *Iter[A]) Next() (a A, ok bool) {
	if it.done {
		return a, false
	}
	a = it.next
	if a.Compare(it.last) >= 0 {
		it.done = true
		return a, true
	}
	next, carried := a.Inc()
	if !carried || (it.excl && next.Compare(it.last) >= 0) {
		it.done = true
		return a, true
	}
	it.next = next
	return a, true
}

// Count walks the range and returns the number of addresses iteration
// yields. Intended for small ranges.
func (r Range[A]) Count() int {
	n := 0
	for it := r.Iterator(); ; {
		if _, ok := it.Next(); !ok {
			break
		}
		n++
	}
	return n
}
