// Package config загружает, нормализует и проверяет конфигурацию Conveyor.
//
// Источники по возрастанию приоритета:
//   - значения по умолчанию (Default)
//   - TOML-файл (Load)
//   - переменные окружения: DB_URL, RABBITMQ_URL, LOG_LEVEL, LOG_FORMAT,
//     CONVEYOR_HTTP_ADDR
//
// Если в файле нет ни одной очереди, создаётся топология по умолчанию:
// Follower:HANDLE и Follower:EXECUTE по одной очереди и два воркера на каждую.
package config
