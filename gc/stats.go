package gc

import "time"

// Stats holds collector statistics.
type Stats struct {
	Cycles      uint64
	Allocated   uint64
	Live        int
	LastSwept   int
	TotalSwept  int
	WeakCleared int
	BarrierHits uint64
	LastPause   time.Duration
	Timestamp   time.Time
}
