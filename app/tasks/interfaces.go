package tasks

// SchedulerInterface defines the lifecycle of background task processing.
// Used by the main application to start and stop the schedule scan loop and
// the worker pool together.
type SchedulerInterface interface {
	Start()
	Stop()
}
