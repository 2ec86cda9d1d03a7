package export

import "sync"

// Guard allows at most one running export per report.
type Guard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// Acquire claims reportID. The returned release must be called once the
// export is terminal; ok is false if another export holds the report.
func (g *Guard) Acquire(reportID string) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active == nil {
		g.active = make(map[string]struct{})
	}
	if _, busy := g.active[reportID]; busy {
		return nil, false
	}
	g.active[reportID] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.active, reportID)
			g.mu.Unlock()
		})
	}, true
}

// Busy reports whether an export for reportID is running.
func (g *Guard) Busy(reportID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.active[reportID]
	return ok
}
