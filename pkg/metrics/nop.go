package metrics

// Nop is a no-op recorder for tests and disabled metrics.
type Nop struct{}

func (Nop) RecordCacheHit(string)                   {}
func (Nop) RecordCacheMiss(string)                  {}
func (Nop) RecordProviderCall(string, string)       {}
func (Nop) RecordCoalescedWait(string)              {}
func (Nop) RecordReconcileDuration(string, float64) {}
func (Nop) RecordStreamState(string)                {}
