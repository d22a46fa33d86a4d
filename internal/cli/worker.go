package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewWorkerCmd создаёт группу команд для управления worker'ами.
func NewWorkerCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Manage workers",
	}

	cmd.AddCommand(
		newWorkerListCmd(clientFn, outputFn),
		newWorkerShowCmd(clientFn, outputFn),
		newWorkerDrainCmd(clientFn, outputFn, true),
		newWorkerDrainCmd(clientFn, outputFn, false),
		newWorkerRemoveCmd(clientFn, outputFn),
	)

	return cmd
}

var workerHeaders = []string{"ID", "ACCEPTING", "PAUSED", "DRAINING", "RUNNING", "COMPLETED", "LAST_UPDATE"}

func workerRow(w WorkerResponse) []string {
	return []string{
		w.ID,
		strconv.FormatBool(w.CanAcceptWork),
		strconv.FormatBool(w.IsPaused),
		strconv.FormatBool(w.IsDraining),
		strconv.Itoa(len(w.RunningOperations)),
		strconv.FormatUint(w.ActionsCompleted, 10),
		formatWorkerTimestamp(w.LastUpdateTimestamp),
	}
}

func newWorkerListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			workers, err := client.ListWorkers()
			if err != nil {
				return err
			}

			rows := make([][]string, len(workers))
			for i, w := range workers {
				rows[i] = workerRow(w)
			}

			out.Print(workerHeaders, rows, workers)
			return nil
		},
	}
}

func newWorkerShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show worker details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			w, err := client.GetWorker(args[0])
			if err != nil {
				return err
			}

			out.Details([]Field{
				{"ID", w.ID},
				{"Accepting work", strconv.FormatBool(w.CanAcceptWork)},
				{"Paused", strconv.FormatBool(w.IsPaused)},
				{"Draining", strconv.FormatBool(w.IsDraining)},
				{"Properties", formatProperties(w.PlatformProperties)},
				{"Running", strings.Join(w.RunningOperations, ",")},
				{"Completed", strconv.FormatUint(w.ActionsCompleted, 10)},
				{"Connected", formatWorkerTimestamp(w.ConnectedTimestamp)},
				{"Last update", formatWorkerTimestamp(w.LastUpdateTimestamp)},
			}, w)
			return nil
		},
	}
}

func newWorkerDrainCmd(clientFn func() *Client, outputFn func() *Output, draining bool) *cobra.Command {
	use, short, done := "drain ID", "Stop assigning new operations to a worker", "Worker draining"
	if !draining {
		use, short, done = "undrain ID", "Resume assigning operations to a worker", "Worker accepting work"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			w, err := client.SetDrain(args[0], draining)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("%s: %s", done, w.ID))
			return nil
		},
	}
}

func newWorkerRemoveCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "remove ID",
		Short: "Remove a worker and requeue its operations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.RemoveWorker(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Worker removed: %s", args[0]))
			return nil
		},
	}
}
