package instance

import "os"

// GetID returns the process instance identifier used in log fields and lock
// ownership. TRIPOPS_INSTANCE_ID wins, then the platform dyno name, then the
// hostname.
func GetID() string {
	for _, key := range []string{"TRIPOPS_INSTANCE_ID", "DYNO"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
