package instance

import "os"

// GetID identifies the running replica in logs. DYNO and HOSTNAME are
// consulted in that order.
func GetID() string {
	for _, key := range []string{"DYNO", "HOSTNAME"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	return "local"
}
