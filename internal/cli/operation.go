package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewOperationCmd создаёт группу команд для operations.
func NewOperationCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "op",
		Aliases: []string{"operation"},
		Short:   "Inspect and submit operations",
	}

	cmd.AddCommand(
		newOpListCmd(clientFn, outputFn),
		newOpShowCmd(clientFn, outputFn),
		newOpSubmitCmd(clientFn, outputFn),
	)

	return cmd
}

func newOpListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListOperationsOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			ops, err := client.ListOperations(opts)
			if err != nil {
				return err
			}

			headers := []string{"ID", "STAGE", "WORKER", "PRIORITY", "REQUEUES", "INSERTED"}
			rows := make([][]string, len(ops))
			for i, op := range ops {
				rows[i] = []string{
					op.OperationID,
					formatStage(op.Stage),
					op.WorkerID,
					strconv.Itoa(int(op.Priority)),
					strconv.Itoa(op.Requeues),
					op.InsertTimestamp,
				}
			}

			out.Print(headers, rows, ops)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Stage, "stage", "", "Filter by stage (queued, executing, completed, cache_check)")
	cmd.Flags().StringVar(&opts.WorkerID, "worker", "", "Filter by worker ID")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results (server default 1000)")

	return cmd
}

func newOpShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show operation details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			op, err := client.GetOperation(args[0])
			if err != nil {
				return err
			}

			out.Details([]Field{
				{"ID", op.OperationID},
				{"Stage", op.Stage},
				{"Worker", op.WorkerID},
				{"Priority", strconv.Itoa(int(op.Priority))},
				{"Action", op.ActionDigest},
				{"Command", op.CommandDigest},
				{"Input root", op.InputRootDigest},
				{"Timeout", op.Timeout},
				{"Properties", formatProperties(op.PlatformProperties)},
				{"Requeues", strconv.Itoa(op.Requeues)},
				{"Last lost worker", op.LastLostWorker},
				{"Exit code", strconv.Itoa(op.ExitCode)},
				{"Error", op.Error},
				{"Inserted", op.InsertTimestamp},
				{"Started", op.StartedAt},
				{"Finished", op.FinishedAt},
			}, op)
			return nil
		},
	}
}

func newOpSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var req SubmitActionRequest
	var props []string

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Queue an action for execution",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			parsed, err := parseProperties(props)
			if err != nil {
				return err
			}
			req.PlatformProperties = parsed

			id, err := client.SubmitAction(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Operation queued: %s", id))
			return nil
		},
	}

	cmd.Flags().StringVar(&req.ActionDigest, "action", "", "Action digest (hash-size)")
	cmd.Flags().StringVar(&req.CommandDigest, "command", "", "Command digest (hash-size)")
	cmd.Flags().StringVar(&req.InputRootDigest, "input-root", "", "Input root digest (hash-size)")
	cmd.Flags().Int32Var(&req.Priority, "priority", 0, "Priority (higher runs first)")
	cmd.Flags().StringVar(&req.Timeout, "timeout", "", "Execution timeout (e.g. 10m)")
	cmd.Flags().StringSliceVar(&props, "property", nil, "Required platform property as NAME=VALUE (repeatable)")
	cmd.MarkFlagRequired("command")
	cmd.MarkFlagRequired("input-root")

	return cmd
}

// parseProperties разбирает список NAME=VALUE.
func parseProperties(kvs []string) (map[string]string, error) {
	if len(kvs) == 0 {
		return nil, nil
	}

	props := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid property format %q, expected NAME=VALUE", kv)
		}
		props[name] = value
	}
	return props, nil
}
