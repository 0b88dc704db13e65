package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "lectio"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort = "8080"

	DefaultDirectoryBaseURL = "http://localhost:8081"
	DefaultDirectoryTimeout = 10 * time.Second

	DefaultRateLimitRequests = 30
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	// Bookings whose (rounded) start is within this much of the past are
	// still accepted, to absorb clock skew between caller and server.
	DefaultBookingGracePeriod = 5 * time.Minute
	DefaultMaxLectureDuration = 8 * time.Hour

	DefaultResourceLockTTL      = 10 * time.Second
	DefaultResourceLockRetry    = 25 * time.Millisecond
	DefaultResourceLockDeadline = 5 * time.Second

	DefaultPaginationLimit = 100
)
