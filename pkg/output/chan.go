package output

// NewLimitedChan returns a channel buffer holding at most limit values.
func NewLimitedChan[T any](limit int) LimitedChan[T] {
	if limit < 1 {
		limit = 1
	}
	return make(LimitedChan[T], limit)
}

// LimitedChan is a buffered channel whose writers never block: when it is full the oldest value is dropped.
type LimitedChan[T any] chan T

// Push enqueues v, evicting the oldest pending value while the buffer is full.
func (lc LimitedChan[T]) Push(v T) {
	for {
		select {
		case lc <- v:
			return
		default:
		}

		select {
		case <-lc:
		default:
		}
	}
}
