// Package queue содержит очереди task flows и менеджер очередей.
//
// TaskQueue — ограниченная FIFO-очередь с весом и фильтром допуска (Gate).
// Manager группирует очереди по WorkKey и выдаёт воркерам flows:
//
//	Take(key)             — очередь с наименьшим весом, готовая и непустая
//	Next(ctx, key, wait)  — то же, но с ожиданием
//	Put(key, flow)        — в первую очередь раздела, где есть место
//	RouteBack(flow)       — вернуть незавершённый flow в раздел по правилу Router
//
// Переполнение — ErrQueueFull, Put никогда не блокирует.
package queue
