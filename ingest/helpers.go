package ingest

import (
	"strconv"
	"time"
)

func durationSeconds(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
