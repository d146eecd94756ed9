package queue

// Failure kind tags reported to Observer.ObserveFailure and mirrored by
// the root package's Kind taxonomy (wsflush.Kind values share these
// strings so metrics label cardinality stays stable regardless of which
// layer raised the failure).
const (
	KindClosed            = "closed"
	KindLatchedFailure    = "latched_failure"
	KindWriteFailure      = "write_failure"
	KindPoolExhaustion    = "pool_exhaustion"
	KindCallbackException = "callback_exception"
	KindQueueFull         = "queue_full"
)
