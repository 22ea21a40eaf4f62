package config

const (
	defaultLogLevel               = "info"
	defaultLogFormat              = "json"
	defaultHTTPAddr               = ":8080"
	defaultReadTimeoutSeconds     = 15
	defaultWriteTimeoutSeconds    = 30
	defaultShutdownTimeoutSeconds = 15
	defaultMaxWaitMS              = 100
	defaultSinkTimeoutSeconds     = 10
	defaultRouter                 = RouterOrigin
	defaultWorkKey                = "Follower:HANDLE"
	defaultPrefetch               = 10
	defaultDBMaxConns             = 10
	defaultDialTimeoutSeconds     = 60
	defaultConnectorTimeout       = 30
	defaultConnector              = "http"
	defaultRateIntervalMS         = 200
	defaultWorkersPerKey          = 2
)

// Правила возврата flows в очереди.
const (
	RouterOrigin = "origin"
	RouterPhase  = "phase"
)

// Default возвращает конфигурацию со значениями по умолчанию.
// Очереди и воркеры заполняются в Load, если файл их не задаёт.
func Default() Config {
	return Config{
		Log: Log{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		HTTP: HTTP{
			Addr:                   defaultHTTPAddr,
			ReadTimeoutSeconds:     defaultReadTimeoutSeconds,
			WriteTimeoutSeconds:    defaultWriteTimeoutSeconds,
			ShutdownTimeoutSeconds: defaultShutdownTimeoutSeconds,
		},
		Engine: Engine{
			MaxWaitMS:          defaultMaxWaitMS,
			SinkTimeoutSeconds: defaultSinkTimeoutSeconds,
			Router:             defaultRouter,
			DefaultWorkKey:     defaultWorkKey,
		},
		Database: Database{
			MaxConns: defaultDBMaxConns,
		},
		RabbitMQ: RabbitMQ{
			Prefetch:           defaultPrefetch,
			DialTimeoutSeconds: defaultDialTimeoutSeconds,
			ConsumeSubmit:      true,
			PublishFinished:    true,
		},
		HTTPConnector: HTTPConnector{
			TimeoutSeconds: defaultConnectorTimeout,
		},
	}
}
