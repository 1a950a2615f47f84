package report

import "sync"

// Recorder captures every update for later inspection. Used by tests.
type Recorder struct {
	mu    sync.Mutex
	logs  []LogEntry
	steps []StepUpdate
	items []ItemUpdate
	files []FileUpdate
	runs  []RunStatus
}

// LogEntry is a captured Log call.
type LogEntry struct {
	Level   Level
	Message string
}

// NewRecorder constructs an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Log(level Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, LogEntry{Level: level, Message: message})
}

func (r *Recorder) Step(update StepUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, update)
}

func (r *Recorder) Item(update ItemUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, update)
}

func (r *Recorder) File(update FileUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = append(r.files, update)
}

func (r *Recorder) Run(status RunStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, status)
}

// Logs returns a copy of the captured log entries.
func (r *Recorder) Logs() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LogEntry(nil), r.logs...)
}

// Steps returns a copy of the captured step updates.
func (r *Recorder) Steps() []StepUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]StepUpdate(nil), r.steps...)
}

// Items returns a copy of the captured item updates.
func (r *Recorder) Items() []ItemUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ItemUpdate(nil), r.items...)
}

// Files returns a copy of the captured file updates.
func (r *Recorder) Files() []FileUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]FileUpdate(nil), r.files...)
}

// Runs returns a copy of the captured run status transitions.
func (r *Recorder) Runs() []RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RunStatus(nil), r.runs...)
}
