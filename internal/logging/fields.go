package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID is the standardized structured logging key for run identifiers.
	FieldRunID = "run_id"
	// FieldQueueItemID is the standardized structured logging key for queue item identifiers.
	FieldQueueItemID = "queue_item_id"
	// FieldStep is the standardized structured logging key for pipeline step names.
	FieldStep = "step"
	// FieldTaskIndex is the standardized structured logging key for the zero-based
	// position of a task inside a batch.
	FieldTaskIndex = "task_index"
	// FieldTaskLabel is the standardized structured logging key for human-readable task labels.
	FieldTaskLabel = "task_label"
	// FieldEventType is the standardized structured logging key for machine-filterable event names.
	FieldEventType = "event_type"
	// FieldProgressPercent is the standardized structured logging key for progress percentages.
	FieldProgressPercent = "progress_percent"
	// FieldActiveWorkers is the standardized structured logging key for live worker counts.
	FieldActiveWorkers = "active_workers"
)
