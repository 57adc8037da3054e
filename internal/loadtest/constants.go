package loadtest

// HTTP status code constants.
const (
	StatusOK        = 200
	StatusForbidden = 403
)

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// PercentageMultiplier converts ratios to percentages.
const PercentageMultiplier = 100
