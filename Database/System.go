package Database

import (
	"time"
)

// version is overridden at build time with -ldflags "-X Washoku/Database.version=...".
var version = "dev"

var startTime = time.Now()

func GetVersion() string {
	return version
}

func GetUptime() time.Duration {
	return time.Since(startTime)
}
