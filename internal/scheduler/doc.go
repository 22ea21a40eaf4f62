// Package scheduler периодически подаёт заявки на запуск flows.
//
// Каждая запись (Entry) — cron-выражение и шаблон заявки. На каждом
// срабатывании заявка уходит в intake как будто пришла из API.
//
// Структура:
//   - scheduler.go — Scheduler (Start, Stop, Fire, Entries)
//   - cron.go      — парсинг cron-выражений и вычисление следующего времени
//
// Использование:
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Entries: entries,
//	    Intake:  in,
//	    Logger:  logger,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sched.Start(ctx)
//	defer sched.Stop()
//
// Ошибка одной заявки пишется в лог и не влияет на остальные записи.
package scheduler
