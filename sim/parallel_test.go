package sim

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkerPool_CoversEverySlotOnce(t *testing.T) {
	tests := []struct {
		name      string
		workers   int
		threshold int
		n         int
	}{
		{"serial below threshold", 4, 64, 10},
		{"single worker", 1, 1, 1000},
		{"even split", 4, 1, 1000},
		{"uneven split", 3, 1, 1001},
		{"more workers than slots", 8, 1, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newWorkerPool(tt.workers, tt.threshold)
			defer p.stopWorkers()

			visits := make([]int32, tt.n)
			var maxWorker int32
			p.run(tt.n, func(start, end, worker int) {
				for {
					cur := atomic.LoadInt32(&maxWorker)
					if int32(worker) <= cur || atomic.CompareAndSwapInt32(&maxWorker, cur, int32(worker)) {
						break
					}
				}
				for i := start; i < end; i++ {
					atomic.AddInt32(&visits[i], 1)
				}
			})

			for i, v := range visits {
				if !assert.Equal(t, int32(1), v, "slot %d", i) {
					break
				}
			}
			assert.Less(t, int(maxWorker), p.numWorkers, "worker ids index per-worker accumulators")
		})
	}
}

func TestWorkerPool_ReusableAfterStop(t *testing.T) {
	p := newWorkerPool(2, 1)
	var count int64
	add := func(start, end, _ int) { atomic.AddInt64(&count, int64(end-start)) }

	p.run(100, add)
	p.stopWorkers()
	p.run(100, add)
	p.stopWorkers()

	assert.Equal(t, int64(200), count)
}
