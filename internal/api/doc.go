// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go          — Handler с DI (intake, очереди, журнал, расписания)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (request id, logging, recovery)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - flow_handler.go     — приём заявок и список типов flows
//   - queue_handler.go    — состояние очередей и коннекторов
//   - outcome_handler.go  — журнал завершённых flows
//   - schedule_handler.go — расписания
//
// Журнал и расписания необязательны: без них соответствующие маршруты
// отвечают 404.
package api
