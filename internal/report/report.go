package report

// Level classifies free-text log lines.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// StepStatus is the lifecycle of one pipeline step as seen by observers.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepActive    StepStatus = "active"
	StepCompleted StepStatus = "completed"
	StepError     StepStatus = "error"
)

// ItemStatus is the lifecycle of one queue item.
type ItemStatus string

const (
	ItemProcessing ItemStatus = "processing"
	ItemCompleted  ItemStatus = "completed"
	ItemError      ItemStatus = "error"
)

// RunStatus is the top-level run state. Exactly one terminal transition is
// emitted per run: completed on success, error on failure, idle after
// cancellation.
type RunStatus string

const (
	RunIdle       RunStatus = "idle"
	RunProcessing RunStatus = "processing"
	RunCompleted  RunStatus = "completed"
	RunError      RunStatus = "error"
)

// WorkersUnknown marks an item update that carries no live worker count.
const WorkersUnknown = -1

// StepUpdate reports progress for a single pipeline step.
type StepUpdate struct {
	ID      int
	Name    string
	Status  StepStatus
	Percent int
}

// ItemUpdate reports aggregate progress for one queue item.
type ItemUpdate struct {
	ID            string
	Status        ItemStatus
	Percent       int
	CurrentStep   string
	ActiveWorkers int
	FileTotal     int
}

// FileUpdate reports progress for one file inside a batch item.
type FileUpdate struct {
	ID      string
	ItemID  string
	Name    string
	Percent int
}

// Reporter receives progress and status updates from the processing engine.
type Reporter interface {
	Log(level Level, message string)
	Step(update StepUpdate)
	Item(update ItemUpdate)
	File(update FileUpdate)
	Run(status RunStatus)
}
