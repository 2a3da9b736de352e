package constants

const (
	Title = "dmsxfer - chunked file transfer over TCP"

	HEADER_SIZE           = 20              // path_length(4) + offset(8) + length(8), packed
	STREAM_BUFFER_SIZE    = 4 * 1024 * 1024 // Point-to-point read/write buffer
	DEFAULT_CHUNK_SIZE_KB = 1024            // 1M chunks for the transfer engine
	MIN_CHECKSUM_BUFFER   = 4 * 1024        // Checksum pass never reads less than 4K at a time
	MAX_CHECKSUM_BUFFER   = 1024 * 1024     // ...nor more than 1M
	DEFAULT_NUM_WORKERS   = 4               // Transfer engine worker goroutines
	DEFAULT_PORT          = 6969            // Nice
	DEFAULT_BIND          = "0.0.0.0"       // All interfaces
	DEFAULT_DSCP          = 0x0A            // QoS for high throughput
	DEFAULT_DIAL_TIMEOUT  = 30              // Seconds
	MAX_PATH_LENGTH       = 4096            // Reject absurd path_length values from peers
	MAX_CHECKSUM_LENGTH   = 255             // Checksum field is length-prefixed by one byte
	MAX_CHUNK_PAYLOAD     = 64 * 1024 * 1024
)
