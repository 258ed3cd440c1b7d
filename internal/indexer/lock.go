package indexer

import "sync/atomic"

// ingestLock admits one ingest at a time. Callers that lose the race fail
// fast instead of queueing behind a long dataset load.
type ingestLock struct {
	held atomic.Bool
}

func (l *ingestLock) tryAcquire() bool {
	return l.held.CompareAndSwap(false, true)
}

func (l *ingestLock) release() {
	l.held.Store(false)
}

func (l *ingestLock) busy() bool {
	return l.held.Load()
}
