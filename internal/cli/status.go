package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewStatusCmd создаёт команду сводки планировщика.
func NewStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show scheduler status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			status, err := client.Status()
			if err != nil {
				return err
			}
			health, err := client.Health()
			if err != nil {
				return err
			}

			out.Print(
				[]string{"WORKERS", "ACCEPTING", "DRAINING", "PAUSED", "OPERATIONS", "QUEUED", "EXECUTING", "COMPLETED", "UPTIME"},
				[][]string{{
					strconv.Itoa(status.Workers),
					strconv.Itoa(status.WorkersAcceptingWork),
					strconv.Itoa(status.WorkersDraining),
					strconv.Itoa(status.WorkersPaused),
					strconv.Itoa(status.Operations.Total),
					strconv.Itoa(status.Operations.Queued),
					strconv.Itoa(status.Operations.Executing),
					strconv.Itoa(status.Operations.Completed),
					health.Uptime,
				}},
				map[string]any{"status": status, "health": health},
			)
			return nil
		},
	}
}
