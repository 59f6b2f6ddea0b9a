package engine

import (
	"time"

	"go.branchstack.dev/bse/internal/random"
)

func defaultClock() func() int64 {
	return func() int64 { return time.Now().UnixMilli() }
}

func defaultIDGen() func() string {
	return func() string { return random.Alnum(12) }
}
