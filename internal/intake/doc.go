// Package intake превращает внешние заявки в task flows.
//
// Заявка (SubmitRequest) приходит из HTTP API, из очереди RabbitMQ
// flows.submit или от планировщика. Intake проверяет её, строит Record,
// находит Spec в каталоге, создаёт TaskFlow и кладёт его в раздел очередей.
package intake
