package report

import (
	"log/slog"
	"sync"

	"hybridmux/internal/logging"
)

// NewLogReporter builds a Reporter that forwards updates to a slog logger.
// Step and file updates are sampled so steady progress does not flood the log.
func NewLogReporter(logger *slog.Logger) Reporter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &logReporter{
		logger:   logging.NewComponentLogger(logger, "report"),
		samplers: make(map[string]*logging.ProgressSampler),
	}
}

type logReporter struct {
	logger *slog.Logger

	mu       sync.Mutex
	samplers map[string]*logging.ProgressSampler
}

func (r *logReporter) Log(level Level, message string) {
	switch level {
	case LevelError:
		r.logger.Error(message)
	case LevelWarning:
		r.logger.Warn(message)
	default:
		r.logger.Info(message)
	}
}

func (r *logReporter) Step(update StepUpdate) {
	if update.Status == StepActive && !r.shouldLog("step:"+update.Name, float64(update.Percent)) {
		return
	}
	r.logger.Info("step update",
		logging.Int("step_id", update.ID),
		logging.String(logging.FieldStep, update.Name),
		logging.String("status", string(update.Status)),
		logging.Int(logging.FieldProgressPercent, update.Percent),
	)
}

func (r *logReporter) Item(update ItemUpdate) {
	if update.Status == ItemProcessing && !r.shouldLog("item:"+update.ID, float64(update.Percent)) {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldQueueItemID, update.ID),
		logging.String("status", string(update.Status)),
		logging.Int(logging.FieldProgressPercent, update.Percent),
		logging.Int("file_total", update.FileTotal),
	}
	if update.CurrentStep != "" {
		attrs = append(attrs, logging.String(logging.FieldStep, update.CurrentStep))
	}
	if update.ActiveWorkers != WorkersUnknown {
		attrs = append(attrs, logging.Int(logging.FieldActiveWorkers, update.ActiveWorkers))
	}
	r.logger.Info("queue update", logging.Args(attrs...)...)
}

func (r *logReporter) File(update FileUpdate) {
	if !r.shouldLog("file:"+update.ID, float64(update.Percent)) {
		return
	}
	r.logger.Info("file update",
		logging.String("file_id", update.ID),
		logging.String(logging.FieldQueueItemID, update.ItemID),
		logging.String("file_name", update.Name),
		logging.Int(logging.FieldProgressPercent, update.Percent),
	)
}

func (r *logReporter) Run(status RunStatus) {
	r.logger.Info("run status", logging.String("status", string(status)))
}

func (r *logReporter) shouldLog(key string, percent float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sampler, ok := r.samplers[key]
	if !ok {
		sampler = logging.NewProgressSampler(5)
		r.samplers[key] = sampler
	}
	return sampler.ShouldLog(percent, key)
}

// Nop returns a Reporter that drops every update.
func Nop() Reporter { return nopReporter{} }

type nopReporter struct{}

func (nopReporter) Log(Level, string) {}
func (nopReporter) Step(StepUpdate)   {}
func (nopReporter) Item(ItemUpdate)   {}
func (nopReporter) File(FileUpdate)   {}
func (nopReporter) Run(RunStatus)     {}
