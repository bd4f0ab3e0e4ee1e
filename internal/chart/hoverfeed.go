package chart

import "sync"

const hoverBuffer = 16

// HoverFeed fans hover events out to subscribers. It stands in for the chart
// widget's hover callback: consumers subscribe on mount and must release the
// subscription on teardown.
type HoverFeed struct {
	mu   sync.Mutex
	subs map[int]chan HoverEvent
	next int
}

func NewHoverFeed() *HoverFeed {
	return &HoverFeed{subs: make(map[int]chan HoverEvent)}
}

// Subscribe registers a consumer. The returned func removes the subscription
// and closes the channel; calling it more than once is safe.
func (f *HoverFeed) Subscribe() (<-chan HoverEvent, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	ch := make(chan HoverEvent, hoverBuffer)
	f.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber. Slow consumers drop events
// rather than block the publisher; hover updates are superseded by the next
// pointer move anyway.
func (f *HoverFeed) Publish(ev HoverEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers reports the current subscription count.
func (f *HoverFeed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
