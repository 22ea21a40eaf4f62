// Package worker продвигает task flows по их жизненному циклу.
//
// # Обзор
//
// Worker привязан к одному разделу очередей (WorkKey) и крутит цикл:
//
//  1. Next — ждёт flow из раздела
//  2. Advance — ровно один переход состояния flow
//  3. Незавершённый flow возвращается в очередь (RouteBack)
//  4. Завершённый flow передаётся ResultHandler (только COMPLETED) и Sinks
//
// Паника или ошибка шага не останавливает цикл: flow переводится в
// TERMINATED, ошибка пишется в лог. Цикл завершается только по отмене ctx.
//
// # Pool
//
// Pool запускает несколько воркеров на разделы:
//
//	pool := worker.NewPool(worker.PoolConfig{
//	    Assignments: []worker.Assignment{
//	        {Key: domain.NewWorkKey(domain.RoleFollower, domain.PhaseHandle), Count: 4},
//	    },
//	    Queues:     manager,
//	    Dispatcher: registry,
//	    Sinks:      []worker.Sink{journal, publisher},
//	    Logger:     logger,
//	})
//
//	if err := pool.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer pool.Stop()
//
// # Sink
//
// Sink получает каждый завершённый flow. Реализации: repo.OutcomeRepo
// (журнал в PostgreSQL) и mq.Publisher (событие flow.finished).
package worker
