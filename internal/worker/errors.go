package worker

import "errors"

// Ошибки воркера.
var (
	// ErrPanic — шаг flow завершился паникой.
	ErrPanic = errors.New("worker panic")

	// ErrPoolStarted — пул уже запущен.
	ErrPoolStarted = errors.New("worker pool already started")

	// ErrNoQueues — не задан источник flows.
	ErrNoQueues = errors.New("queue source is required")

	// ErrNoAssignments — пулу не назначено ни одного воркера.
	ErrNoAssignments = errors.New("no worker assignments")
)
