package instance

import (
	"os"

	"github.com/chryzcode/ycsyh-site/pkg/env"
)

// GetID identifies this process in lock owners and logs: YCSYH_WORKER_ID, else the hostname.
func GetID() string {
	if id := env.Get("YCSYH_WORKER_ID", ""); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
