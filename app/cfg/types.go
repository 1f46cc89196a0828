package cfg

type Cfg struct {
	// Storage configuration
	DBPath string

	// Application configuration
	SeedFile          string
	Port              string
	WorkerCount       int
	SchedulerInterval int
	QueueSize         int
	APIAccessKey      string

	// Outbound HTTP
	UserAgent    string
	FetchTimeout int

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}
