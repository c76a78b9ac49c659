package audio

import "sync"

// Consumer receives PCM pushed by a producer (a file decoder, a capture
// device). The slice is only valid for the duration of the call; consumers
// that retain samples must copy them.
type Consumer interface {
	Consume(samples []int16)
}

// ConsumerFunc adapts a function to the Consumer interface.
type ConsumerFunc func(samples []int16)

func (f ConsumerFunc) Consume(samples []int16) { f(samples) }

// Buffer is a Consumer that accumulates pushed samples. It is safe for use
// by a producer goroutine concurrent with Samples readers.
type Buffer struct {
	mu      sync.Mutex
	samples []int16
}

func (b *Buffer) Consume(samples []int16) {
	b.mu.Lock()
	b.samples = append(b.samples, samples...)
	b.mu.Unlock()
}

// Samples returns a copy of everything consumed so far.
func (b *Buffer) Samples() []int16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]int16, len(b.samples))
	copy(out, b.samples)
	return out
}

// Len reports the number of samples consumed so far.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}
