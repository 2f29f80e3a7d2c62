package engine

// busyError signals that the generation queue is full or the wait expired.
type busyError struct{ reqID int64 }

func (e busyError) Error() string { return "engine busy" }

// IsBusy reports whether err indicates admission backpressure.
func IsBusy(err error) bool {
	_, ok := err.(busyError)
	return ok
}

// dependencyUnavailableError signals a generation backend that cannot run in
// this build or environment.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing runtime dependency.
func IsDependencyUnavailable(err error) bool {
	_, ok := err.(dependencyUnavailableError)
	return ok
}
