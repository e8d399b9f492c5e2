package kafka

import (
	"time"
)

// Config holds the producer settings the fabric uses for deployment-event
// fan-out.
type Config struct {
	Brokers      []string      // broker addresses
	RequiredAcks string        // "none", "local", or "all"
	Compression  string        // "none", "gzip", "snappy", "lz4", "zstd"
	BatchSize    int           // producer batch size in bytes
	BatchTimeout time.Duration // linger before sending a partial batch
	RetryMax     int           // delivery retries before reporting failure
	RetryBackoff time.Duration // wait between delivery retries
}
