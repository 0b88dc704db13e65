package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvDirectoryBaseURL = "DIRECTORY_BASE_URL"
	EnvDirectoryTimeout = "DIRECTORY_TIMEOUT"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvBookingGracePeriod = "BOOKING_GRACE_PERIOD"
	EnvMaxLectureDuration = "MAX_LECTURE_DURATION"

	EnvResourceLockTTL      = "RESOURCE_LOCK_TTL"
	EnvResourceLockRetry    = "RESOURCE_LOCK_RETRY"
	EnvResourceLockDeadline = "RESOURCE_LOCK_DEADLINE"
)
