package interfaces

// SchedulerService runs periodic maintenance jobs (session sweeps, database
// garbage collection) on cron schedules.
type SchedulerService interface {
	// Start registers and starts all maintenance jobs.
	Start() error

	// Stop halts the scheduler and waits for running jobs to finish.
	Stop() error
}
