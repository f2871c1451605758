// Package poll implements the client-side synchronization contract: a
// fixed-interval timer that re-fetches the caller's thread list and, when a
// thread is open, that thread's full message view. There is no push channel
// and no delivery guarantee; a failed fetch is logged and the next tick
// proceeds.
package poll

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/tradeboard/chat/httpapi"
)

// DefaultInterval matches the interval advertised by the server.
const DefaultInterval = httpapi.DefaultPollIntervalSec * time.Second

// Fetcher retrieves the poller's two views. Implementations carry the
// caller's credential explicitly; the poller itself holds no session state.
type Fetcher interface {
	Threads(ctx context.Context) ([]httpapi.PreviewView, error)
	Thread(ctx context.Context, threadID int64) (*httpapi.ThreadView, error)
}

// Snapshot is the wholesale replacement state produced by one poll cycle.
// Open is nil when no thread is open or its fetch failed this cycle.
type Snapshot struct {
	Threads []httpapi.PreviewView
	Open    *httpapi.ThreadView
}

// Poller drives the fetch loop. One Poller per mounted chat view.
type Poller struct {
	fetcher  Fetcher
	interval time.Duration
	apply    func(Snapshot)

	mu   sync.Mutex
	open int64 // 0 = no open thread
}

func New(fetcher Fetcher, interval time.Duration, apply func(Snapshot)) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{fetcher: fetcher, interval: interval, apply: apply}
}

// Open marks a thread as the one whose messages each cycle refetches.
func (p *Poller) Open(threadID int64) {
	p.mu.Lock()
	p.open = threadID
	p.mu.Unlock()
}

// CloseThread clears the open thread; the list keeps refreshing.
func (p *Poller) CloseThread() {
	p.Open(0)
}

// Run polls until ctx is cancelled. It performs one immediate cycle so a
// freshly mounted view is not blank for a full interval, then ticks.
// Cancellation is deterministic: the ticker is stopped and Run returns.
func (p *Poller) Run(ctx context.Context) {
	p.cycle(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			glog.V(5).Infof("poller stopped: %v", ctx.Err())
			return
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

func (p *Poller) cycle(ctx context.Context) {
	threads, err := p.fetcher.Threads(ctx)
	if err != nil {
		if ctx.Err() == nil {
			glog.Errorf("poll: fetch threads err: %v", err)
		}
		return
	}

	snap := Snapshot{Threads: threads}

	p.mu.Lock()
	open := p.open
	p.mu.Unlock()

	if open != 0 {
		t, err := p.fetcher.Thread(ctx, open)
		if err != nil {
			if ctx.Err() == nil {
				glog.Errorf("poll: fetch thread %d err: %v", open, err)
			}
		} else {
			snap.Open = t
		}
	}

	if p.apply != nil {
		p.apply(snap)
	}
}
