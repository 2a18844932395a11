package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/exp/slices"

	"github.com/dreamware/ptpstandby/internal/channel"
	"github.com/dreamware/ptpstandby/internal/servo"
	"github.com/dreamware/ptpstandby/internal/shm"
	"github.com/dreamware/ptpstandby/internal/status"
)

// readResult is what every get subcommand prints.
type readResult struct {
	Value   any    `json:"value,omitempty"`
	Channel string `json:"channel"`
	Error   string `json:"error,omitempty"`
	Domain  int    `json:"domain"`
	Found   bool   `json:"found"`
}

// printRead prints a filtered read. A record written by another domain is
// reported, not failed; any other error fails the command.
func printRead(cmd *cobra.Command, name string, domain int, value any, err error) error {
	res := readResult{Channel: name, Domain: domain}
	switch {
	case err == nil:
		res.Found = true
		res.Value = value
	case errors.Is(err, shm.ErrNoData):
		res.Error = err.Error()
	default:
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func parseBoolArg(raw string) (bool, error) {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("expected true or false, got %q", raw)
	}
	return v, nil
}

func newServoStateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "servo-state",
		Short: "Read or publish a domain's servo state",
	}
	var domain int
	cmd.PersistentFlags().IntVar(&domain, "domain", 0, "domain id")

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the servo state written by --domain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := channel.OpenServoState(a.shmOptions()...)
			if err != nil {
				return err
			}
			defer c.Close()
			state, err := c.Read(domain)
			return printRead(cmd, channel.ServoStateName, domain, state.String(), err)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:       "set STATE",
		Short:     "Publish STATE as --domain",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"unlocked", "jump", "locked", "locked_stable"},
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := servo.ParseState(args[0])
			if err != nil {
				return err
			}
			c, err := channel.OpenServoState(a.shmOptions()...)
			if err != nil {
				return err
			}
			defer c.Close()
			return c.Update(state, domain)
		},
	})
	return cmd
}

func newMasterRestartCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "master-restart",
		Short: "Read or write a domain's master-restart flag",
	}
	var domain int
	cmd.PersistentFlags().IntVar(&domain, "domain", 0, "domain id")

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the flag written by --domain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := channel.OpenMasterRestart(a.shmOptions()...)
			if err != nil {
				return err
			}
			defer c.Close()
			detected, err := c.Read(domain)
			return printRead(cmd, channel.MasterRestartName, domain, detected, err)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set true|false",
		Short: "Write the flag as --domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			detected, err := parseBoolArg(args[0])
			if err != nil {
				return err
			}
			c, err := channel.OpenMasterRestart(a.shmOptions()...)
			if err != nil {
				return err
			}
			defer c.Close()
			return c.Update(detected, domain)
		},
	})
	return cmd
}

func newSlaveStableCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slave-stable",
		Short: "Read or write a domain's slave stability",
	}
	var domain int
	cmd.PersistentFlags().IntVar(&domain, "domain", 0, "domain id")

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the stability written by --domain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := channel.OpenSlaveStability(a.shmOptions()...)
			if err != nil {
				return err
			}
			defer c.Close()
			stable, err := c.Read(domain)
			return printRead(cmd, channel.SlaveStabilityName, domain, stable, err)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set true|false",
		Short: "Write the stability as --domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stable, err := parseBoolArg(args[0])
			if err != nil {
				return err
			}
			c, err := channel.OpenSlaveStability(a.shmOptions()...)
			if err != nil {
				return err
			}
			defer c.Close()
			return c.Update(stable, domain)
		},
	})
	return cmd
}

func newSyncCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Read or write the sync-received handshake",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the handshake and the domain that wrote it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := channel.OpenSlaveStability(a.shmOptions()...)
			if err != nil {
				return err
			}
			defer c.Close()
			sync, err := c.ReadSync()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"received":  sync.Received,
				"domain_id": sync.DomainID,
			})
		},
	})

	var domain int
	set := &cobra.Command{
		Use:   "set true|false",
		Short: "Write the handshake as --domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			received, err := parseBoolArg(args[0])
			if err != nil {
				return err
			}
			c, err := channel.OpenSlaveStability(a.shmOptions()...)
			if err != nil {
				return err
			}
			defer c.Close()
			return c.UpdateSync(received, domain)
		},
	}
	set.Flags().IntVar(&domain, "domain", 1, "domain id")
	cmd.AddCommand(set)
	return cmd
}

func newDumpCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Print every channel without filtering on the writer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := channel.OpenAll(a.shmOptions()...)
			if err != nil {
				return err
			}
			defer set.Close()
			return printJSON(cmd.OutOrStdout(), status.Channels(set))
		},
	}
}

func newRemoveCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "remove [NAME...]",
		Short: "Unlink channel segments",
		Long: `Unlink channel segments from the namespace. Processes that have a
segment open keep using it; the next process to open the name creates a
fresh one. Nothing in ptpstandby removes segments on its own.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			names := args
			if all {
				names = channel.Names
			}
			if len(names) == 0 {
				return errors.New("name a channel or pass --all")
			}
			var errs []error
			for _, name := range names {
				if !slices.Contains(channel.Names, name) {
					errs = append(errs, fmt.Errorf("%s: not a channel (one of %s)", name, strings.Join(channel.Names, ", ")))
					continue
				}
				if err := shm.Remove(name, a.shmOptions()...); err != nil {
					errs = append(errs, err)
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), "removed", name)
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "remove every channel")
	return cmd
}

func newStatusCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running standbyd",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()

			report, err := status.FetchReport(ctx, addr)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:9470", "standbyd address")
	return cmd
}
