package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dreamware/ptpstandby/internal/logging"
	"github.com/dreamware/ptpstandby/internal/shm"
)

// app carries the global flags every subcommand opens channels with.
type app struct {
	namespace shm.Namespace // Overrides dir; set by tests
	dir       string
	logLevel  string
	timeout   time.Duration
}

func (a *app) shmOptions() []shm.Option {
	opts := []shm.Option{
		shm.WithDir(a.dir),
		shm.WithTimeout(a.timeout),
		shm.WithLogger(log.Logger),
	}
	if a.namespace != nil {
		opts = append(opts, shm.WithNamespace(a.namespace))
	}
	return opts
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "shmctl",
		Short: "Inspect and modify ptpstandby shared channels",
		Long: `shmctl reads and writes the shared memory channels hot-standby PTP
instances use to coordinate:

  /ptp_servo_state         servo lock state
  /ptp_master_restart      master restart flag
  /ptp_slave_servo_stable  slave stability and sync handshake

Opening a channel that does not exist creates it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logging.Configure("shmctl", logging.ProfileCLI)
			if a.logLevel == "" {
				return nil
			}
			lvl, ok := logging.ParseLevel(a.logLevel)
			if !ok {
				return fmt.Errorf("invalid --log-level %q", a.logLevel)
			}
			zerolog.SetGlobalLevel(lvl)
			log.Logger = log.Logger.Level(lvl)
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.dir, "dir", shm.DefaultDir, "directory holding the shared segments")
	flags.DurationVar(&a.timeout, "timeout", shm.DefaultTimeout, "how long to wait for a segment's creator")
	flags.StringVar(&a.logLevel, "log-level", "", "trace|debug|info|warn|error|disabled")

	root.AddCommand(
		newServoStateCmd(a),
		newMasterRestartCmd(a),
		newSlaveStableCmd(a),
		newSyncCmd(a),
		newDumpCmd(a),
		newRemoveCmd(a),
		newStatusCmd(a),
	)
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
