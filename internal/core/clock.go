package core

import "time"

// Clock supplies millisecond timestamps for metadata records.
type Clock interface {
	Millis() uint32
}

// MonotonicClock counts milliseconds since it was created using the
// monotonic reading of time.Now. The value wraps after ~49 days.
type MonotonicClock struct {
	start time.Time
}

// NewMonotonicClock returns a clock anchored at now.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

func (c *MonotonicClock) Millis() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}

// Legal 2.4 GHz channel range.
const (
	MinChannel uint8 = 1
	MaxChannel uint8 = 14
)

// ValidChannel reports whether ch can be tuned.
func ValidChannel(ch uint8) bool {
	return ch >= MinChannel && ch <= MaxChannel
}

// ChannelFrequency returns the centre frequency in MHz for a 2.4 GHz channel.
func ChannelFrequency(ch uint8) int {
	if ch == 14 {
		return 2484
	}
	return 2407 + 5*int(ch)
}

// FrequencyChannel maps a centre frequency in MHz back to its channel number,
// covering 2.4 GHz and 5 GHz. It returns 0 for unknown frequencies.
func FrequencyChannel(mhz int) uint8 {
	switch {
	case mhz == 2484:
		return 14
	case mhz >= 2412 && mhz <= 2472:
		return uint8((mhz - 2407) / 5)
	case mhz >= 5000 && mhz <= 5900:
		return uint8((mhz - 5000) / 5)
	default:
		return 0
	}
}
