package realtime

import "time"

// Security/performance limits for the push transport.
const (
	// Max bytes per websocket frame read (hard limit).
	maxFrameBytes = 64 << 10 // 64 KiB

	// Per-connection rate limits (events per window).
	rateLimitEvents = 120
	rateLimitWindow = 10 * time.Second

	// Heartbeat defaults (can be overridden by env in ws_gateway.go).
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second
)

// Presence timing defaults.
const (
	// A heartbeat-only user stays online this long after the last heartbeat.
	defaultLivenessWindow = 60 * time.Second

	// Interval of the background sweep that expires heartbeat-only users.
	defaultSweepInterval = 30 * time.Second
)

// Long-poll bounds.
const (
	// Hard ceiling on a single awaitUpdates suspension.
	maxLongPollWait = 25 * time.Second

	defaultLongPollWait = 20 * time.Second
)

// Mailbox and event-log retention.
const (
	// Cap on accumulated (non-coalesced) signals per recipient; oldest dropped.
	mailboxQueueCap = 200

	// Retained room events available to the since cursor.
	roomLogCap = 512
)

// Per-kind signal TTLs. Anything older is dropped at drain time.
const (
	typingSignalTTL  = 5 * time.Second
	callSignalTTL    = 30 * time.Second
	receiptSignalTTL = 60 * time.Second
)
