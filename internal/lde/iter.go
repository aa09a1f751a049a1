package lde

import "iter"

// Iter walks the instructions of a buffer, tracking their virtual address.
//
// It stops for good at the first position where the decoder fails; the
// bytes from there on are left in Remaining.
type Iter[VA Addr] struct {
	isa   Isa[VA]
	bytes []byte
	va    VA
	done  bool
}

// NewIter returns an iterator over code starting at va.
func NewIter[VA Addr](isa Isa[VA], code []byte, va VA) *Iter[VA] {
	return &Iter[VA]{isa: isa, bytes: code, va: va}
}

// Peek decodes the instruction at the current position without advancing.
func (it *Iter[VA]) Peek() (OpCode, bool) {
	if it.done {
		return nil, false
	}
	n := it.isa.Len(it.bytes)
	if n == 0 {
		return nil, false
	}
	return OpCode(it.bytes[:n:n]), true
}

// Next returns the next instruction and its address.
func (it *Iter[VA]) Next() (OpCode, VA, bool) {
	op, ok := it.Peek()
	if !ok {
		it.done = true
		return nil, it.va, false
	}
	op, va := it.Consume(len(op))
	return op, va, true
}

// Consume skips n bytes without decoding them and returns them with
// their address. n is clamped to the remaining length.
func (it *Iter[VA]) Consume(n int) (OpCode, VA) {
	n = max(0, min(n, len(it.bytes)))
	head := OpCode(it.bytes[:n:n])
	va := it.va
	it.bytes = it.bytes[n:]
	it.va += VA(n)
	return head, va
}

// VA returns the current virtual address.
func (it *Iter[VA]) VA() VA { return it.va }

// SetVA sets the current virtual address and returns the previous one.
func (it *Iter[VA]) SetVA(va VA) VA {
	old := it.va
	it.va = va
	return old
}

// Remaining returns the bytes not yet consumed.
func (it *Iter[VA]) Remaining() []byte { return it.bytes }

// Done reports whether the iterator has stopped at an undecodable position.
func (it *Iter[VA]) Done() bool { return it.done }

// All returns a sequence over the remaining instructions. Ranging over it
// advances the iterator.
func (it *Iter[VA]) All() iter.Seq2[OpCode, VA] {
	return func(yield func(OpCode, VA) bool) {
		for {
			op, va, ok := it.Next()
			if !ok || !yield(op, va) {
				return
			}
		}
	}
}

// clone copies the position; the bytes are shared.
func (it *Iter[VA]) clone() *Iter[VA] {
	c := *it
	return &c
}
