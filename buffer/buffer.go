package buffer

import (
	"math"
	"sync"
)

type Average float64
type Minimum float64
type Maximum float64

// SampleBuffer keeps the last size samples. Statistics only cover samples
// actually added, so a part-filled buffer is not skewed by zeros.
type SampleBuffer struct {
	position int
	size     int
	count    int
	data     []float64
	lock     sync.Mutex
}

func NewBuffer(size int) *SampleBuffer {
	if size < 1 {
		size = 1
	}
	return &SampleBuffer{
		size: size,
		data: make([]float64, size),
	}
}

func (b *SampleBuffer) AddItem(val float64) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.data[b.position] = val
	b.position++
	if b.position == b.size {
		b.position = 0
	}
	if b.count < b.size {
		b.count++
	}
}

// Len is the number of samples held.
func (b *SampleBuffer) Len() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.count
}

// GetAverageMinMax returns false while the buffer is empty.
func (b *SampleBuffer) GetAverageMinMax() (Average, Minimum, Maximum, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.count == 0 {
		return 0, 0, 0, false
	}
	min := math.MaxFloat64
	max := -math.MaxFloat64
	sum := 0.0
	for i := 0; i < b.count; i++ {
		x := b.at(i)
		sum += x
		if x > max {
			max = x
		}
		if x < min {
			min = x
		}
	}
	return Average(sum / float64(b.count)), Minimum(min), Maximum(max), true
}

// Change is the newest sample minus the oldest one held. It needs at least
// two samples.
func (b *SampleBuffer) Change() (float64, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.count < 2 {
		return 0, false
	}
	return b.at(b.count-1) - b.at(0), true
}

// at returns the i-th oldest sample. Caller holds the lock.
func (b *SampleBuffer) at(i int) float64 {
	start := b.position - b.count
	if start < 0 {
		// reverse wrap
		start += b.size
	}
	return b.data[(start+i)%b.size]
}
