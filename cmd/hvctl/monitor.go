package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cdmslab/hvctl/pkg/client"
	"github.com/cdmslab/hvctl/pkg/events"
)

func NewMonitorCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "monitor",
		Short:   "Print ODB writes and run changes made through the daemon",
		GroupID: gAdvanced,
		Long: `Print ODB writes and run changes made through the daemon.

Only commands run with '--backend daemon' are visible. Stop with Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ch, err := client.NewClient(unixSocketPath).SubscribeEvents(ctx)
			if err != nil {
				return err
			}

			for ev := range ch {
				printEvent(cmd, ev)
			}
			if ctx.Err() == nil {
				return errors.New("hvctl daemon closed the event stream")
			}
			return nil
		},
	}
}

func printEvent(cmd *cobra.Command, ev events.Event) {
	stamp := func(ts int64) string {
		return time.Unix(ts, 0).Format(time.TimeOnly)
	}

	switch ev.Name {
	case events.DaemonHello:
		p, err := events.DecodeAs[events.HelloEvent](ev)
		if err != nil {
			break
		}
		cmd.Printf("%s connected to hvctl daemon %s\n", stamp(p.Ts), bold("%s", p.Version))
		return
	case events.ODBWrite:
		p, err := events.DecodeAs[events.ODBWriteEvent](ev)
		if err != nil {
			break
		}
		cmd.Printf("%s %s = %s\n", stamp(p.Ts), p.Path, bold("%s", p.Value))
		return
	case events.RunControl:
		p, err := events.DecodeAs[events.RunControlEvent](ev)
		if err != nil {
			break
		}
		cmd.Printf("%s %s\n", stamp(p.Ts), color.New(color.Bold, color.FgCyan).Sprintf("run %s", p.Action))
		return
	}

	logrus.WithFields(logrus.Fields{
		"event": ev.Name,
		"data":  string(ev.Data),
	}).Debug("unhandled event")
}
