package mutex

import (
	"time"

	"github.com/hashicorp/go-hclog"
	lktime "github.com/pixperk/rowlock/pkg/time"
	"golang.org/x/time/rate"
)

const (
	// Lease length when none is configured.
	DefaultLeaseTimeout = 60 * time.Second

	// Maximum age of a candidate batch before the scanner queries again.
	DefaultRefresh = 60 * time.Second

	// Pace of acquire attempts once the first attempt failed.
	DefaultAttemptRate  = rate.Limit(20)
	DefaultAttemptBurst = 5

	// Pace of candidate scans.
	DefaultScanRate  = rate.Limit(2)
	DefaultScanBurst = 1
)

// Config configures a Manager.
type Config struct {
	// Table is the name or ID of the lock table. Required.
	Table string

	// Owner is written to the owner column whenever a call does not name one.
	// Empty leaves the column untouched.
	Owner string

	// LeaseTimeout is how long an acquired lock stays valid without an update.
	// Defaults to 60 seconds.
	LeaseTimeout time.Duration

	// Refresh bounds the staleness of the scanner's candidate list.
	// Defaults to 60 seconds.
	Refresh time.Duration

	// AttemptRate and AttemptBurst pace the acquire loop after a miss.
	AttemptRate  rate.Limit
	AttemptBurst int

	// ScanRate and ScanBurst pace re-scans of the table.
	ScanRate  rate.Limit
	ScanBurst int

	// Clock is the lease clock. Defaults to the system clock.
	Clock lktime.Clock

	Logger hclog.Logger
}

func (c Config) withDefaults() Config {
	if c.LeaseTimeout <= 0 {
		c.LeaseTimeout = DefaultLeaseTimeout
	}
	if c.Refresh <= 0 {
		c.Refresh = DefaultRefresh
	}
	if c.AttemptRate <= 0 {
		c.AttemptRate = DefaultAttemptRate
	}
	if c.AttemptBurst <= 0 {
		c.AttemptBurst = DefaultAttemptBurst
	}
	if c.ScanRate <= 0 {
		c.ScanRate = DefaultScanRate
	}
	if c.ScanBurst <= 0 {
		c.ScanBurst = DefaultScanBurst
	}
	if c.Clock == nil {
		c.Clock = lktime.SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = hclog.NewNullLogger()
	}
	return c
}
