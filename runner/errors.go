package runner

type WorkerError string

func (e WorkerError) Error() string {
	return string(e)
}

const (
	ErrWorkerAlreadyStarted = WorkerError("ErrWorkerAlreadyStarted")
	ErrRaceOccuredOnStart   = WorkerError("ErrRaceOccuredOnStart")
	ErrNoSource             = WorkerError("ErrNoSource")
	ErrNoConsumer           = WorkerError("ErrNoConsumer")
)
