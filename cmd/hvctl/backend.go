package main

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cdmslab/hvctl/pkg/client"
	"github.com/cdmslab/hvctl/pkg/odb"
	"github.com/cdmslab/hvctl/pkg/ramp"
)

const (
	backendOdbedit = "odbedit"
	backendDaemon  = "daemon"
	// backendMock simulates the ODB in memory and never sleeps. Every
	// command becomes a dry run that prints what it would have done.
	backendMock = "mock"
)

var (
	odbOnce   sync.Once
	odbClient odb.Client

	mockODB   *odb.Mock
	mockClock *ramp.FakeClock
)

func checkBackend(b string) error {
	switch b {
	case backendOdbedit, backendDaemon, backendMock:
		return nil
	}
	return usageErrorf("unknown backend %q", b)
}

// newODBClient returns the process-wide ODB client for the selected backend.
func newODBClient() odb.Client {
	odbOnce.Do(func() {
		logrus.WithField("backend", backend).Debug("connecting to ODB")
		switch backend {
		case backendDaemon:
			odbClient = client.NewClient(unixSocketPath)
		case backendMock:
			mockODB = odb.NewMock(nil)
			// Flash reads the 15V power state before changing it.
			mockODB.SetFallback("y")
			odbClient = mockODB
		default:
			odbClient = odb.NewOdbedit(conf.OdbeditPath(), conf.Experiment(), conf.Host())
		}
	})
	return odbClient
}

func clock() ramp.Clock {
	if backend != backendMock {
		return ramp.RealClock
	}
	if mockClock == nil {
		mockClock = ramp.NewFakeClock(time.Now())
	}
	return mockClock
}

// printMockSummary prints every simulated ODB operation of a mock run.
func printMockSummary(cmd *cobra.Command) {
	if mockODB == nil {
		return
	}

	ops := mockODB.Ops()
	cmd.Println(bold("Simulated ODB operations (%d):", len(ops)))
	for _, op := range ops {
		cmd.Printf("  %s\n", op)
	}
	if mockClock != nil {
		cmd.Printf("Simulated duration: %s\n", bold("%s", mockClock.Elapsed()))
	}
}
