package transport

// Channel names mirror the rooms the pipeline backend publishes to.
const (
	// ChannelJobsAll receives every job event (administrator view).
	ChannelJobsAll = "jobs:all"
	// ChannelStats receives stats:updated signals.
	ChannelStats = "stats:admin"

	jobsPrefix       = "jobs:"
	validationPrefix = "validation:"
)

// JobsChannel returns the per-owner job event channel.
func JobsChannel(ownerID string) string {
	return jobsPrefix + ownerID
}

// ValidationChannel returns the per-owner config validation channel.
func ValidationChannel(ownerID string) string {
	return validationPrefix + ownerID
}
