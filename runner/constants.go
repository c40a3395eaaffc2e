package runner

const (
	// MaxReasonableConcurrency caps auto-determined concurrency to avoid resource exhaustion
	MaxReasonableConcurrency = 32

	// Directory permissions for mirrored log directories
	logDirPerm = 0755
)
