package bot

import "time"

const (
	defaultBackoffInitial = 1 * time.Second
	defaultBackoffMax     = 30 * time.Second
)

// backoff produces a doubling delay sequence with a cap. Any
// successful iteration resets it to the initial delay.
type backoff struct {
	initial time.Duration
	max     time.Duration
	next    time.Duration
}

func newBackoff(initial, max time.Duration) *backoff {
	if initial <= 0 {
		initial = defaultBackoffInitial
	}
	if max <= 0 {
		max = defaultBackoffMax
	}
	return &backoff{
		initial: initial,
		max:     max,
		next:    initial,
	}
}

// Next returns the current delay and doubles the next one, up to the
// cap.
func (b *backoff) Next() time.Duration {
	delay := b.next
	b.next *= 2
	if b.next > b.max {
		b.next = b.max
	}
	return delay
}

// Reset restores the initial delay.
func (b *backoff) Reset() {
	b.next = b.initial
}
