package domain

// FlowStatus — статус task flow.
//
// Жизненный цикл:
//
//	HANDLING(pre) → EXECUTING → HANDLING(post) → COMPLETED
//	        ↘                          ↘
//	         TERMINATED                 TERMINATED
type FlowStatus string

const (
	// FlowStatusHandling — flow ждёт запуска pre- или post-обработчиков.
	FlowStatusHandling FlowStatus = "HANDLING"

	// FlowStatusExecuting — flow ждёт отправки команды коннектору.
	FlowStatusExecuting FlowStatus = "EXECUTING"

	// FlowStatusCompleted — все фазы пройдены успешно.
	FlowStatusCompleted FlowStatus = "COMPLETED"

	// FlowStatusTerminated — flow остановлен (отказ обработчика, маршрутизации, таймаут).
	FlowStatusTerminated FlowStatus = "TERMINATED"
)

// IsTerminal возвращает true, если статус финальный.
func (s FlowStatus) IsTerminal() bool {
	switch s {
	case FlowStatusCompleted, FlowStatusTerminated:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление FlowStatus.
func (s FlowStatus) String() string {
	return string(s)
}
