package queue

import "errors"

// Ошибки очередей.
var (
	// ErrQueueFull — в очереди (или во всех очередях раздела) нет места.
	ErrQueueFull = errors.New("queue is full")

	// ErrQueueExists — очередь с таким именем уже зарегистрирована.
	ErrQueueExists = errors.New("queue already registered")

	// ErrNoRoute — для WorkKey нет ни одной очереди.
	ErrNoRoute = errors.New("no queue for work key")
)
