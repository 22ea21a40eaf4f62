// Package telemetry обеспечивает наблюдаемость движка.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики (шаги flows, dispatch, глубина очередей)
//
// Все компоненты принимают *slog.Logger в Config и пишут ключи
// в snake_case (flow_id, work_key, record_id). Метрики экспортируются
// на /metrics endpoint демона.
package telemetry
