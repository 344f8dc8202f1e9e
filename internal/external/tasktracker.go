package external

// TaskTracker is the external task-tracking collaborator (§6): dependency
// ordering and done-marking are delegated here, never decided in-process.
type TaskTracker interface {
	DependenciesSatisfied(taskID string) (bool, error)
	MarkDone(taskID, commitSHA string) error
}

// NoopTaskTracker is the stub the spec explicitly allows (§6: "Out of
// scope; a stub implementation may return true / no-op") for deployments
// that don't wire a real task tracker.
type NoopTaskTracker struct{}

func (NoopTaskTracker) DependenciesSatisfied(taskID string) (bool, error) { return true, nil }
func (NoopTaskTracker) MarkDone(taskID, commitSHA string) error           { return nil }
