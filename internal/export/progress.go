package export

import "sync"

// Stage is the export state machine position.
type Stage string

const (
	StagePreparing  Stage = "preparing"
	StageGenerating Stage = "generating"
	StageComplete   Stage = "complete"
	StageError      Stage = "error"
)

// Terminal reports whether no further updates follow.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageError
}

// Update is one progress report. Each update replaces the previous one.
type Update struct {
	Stage   Stage  `json:"stage"`
	Percent int    `json:"percent"`
	Message string `json:"message,omitempty"`
}

// Reporter receives progress updates.
type Reporter interface {
	Report(Update)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Update)

func (f ReporterFunc) Report(u Update) { f(u) }

// MultiReporter forwards each update to every reporter in order.
type MultiReporter []Reporter

func (m MultiReporter) Report(u Update) {
	for _, r := range m {
		if r != nil {
			r.Report(u)
		}
	}
}

type discard struct{}

func (discard) Report(Update) {}

// Recorder keeps the latest update and the full history.
type Recorder struct {
	mu      sync.Mutex
	history []Update
}

func (r *Recorder) Report(u Update) {
	r.mu.Lock()
	r.history = append(r.history, u)
	r.mu.Unlock()
}

// Latest returns the most recent update, or the zero Update.
func (r *Recorder) Latest() Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.history) == 0 {
		return Update{}
	}
	return r.history[len(r.history)-1]
}

// History returns a copy of every update received.
func (r *Recorder) History() []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Update(nil), r.history...)
}
