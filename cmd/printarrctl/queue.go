package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and operate on the durable job queue",
}

var queueDepthCmd = &cobra.Command{
	Use:   "depth",
	Short: "Print the number of queued jobs per kind",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		q, err := openQueue(ctx)
		if err != nil {
			return err
		}
		defer q.Close()

		depth, err := q.QueueDepth(ctx)
		if err != nil {
			return err
		}
		type row struct {
			kind  string
			count int64
		}
		rows := make([]row, 0, len(depth))
		for k, v := range depth {
			rows = append(rows, row{string(k), v})
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].kind < rows[j].kind })
		for _, r := range rows {
			fmt.Printf("%-30s %d\n", r.kind, r.count)
		}
		return nil
	},
}

var queueRetryStatsCmd = &cobra.Command{
	Use:   "retry-stats",
	Short: "Print pending-retry, total-retried, and exhausted-retry job counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		q, err := openQueue(ctx)
		if err != nil {
			return err
		}
		defer q.Close()

		stats, err := q.RetryStats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("pending_retry:            %d\n", stats.PendingRetry)
		fmt.Printf("total_retried:            %d\n", stats.TotalRetried)
		fmt.Printf("failed_after_max_retries: %d\n", stats.FailedAfterMaxRetries)
		return nil
	},
}

var queueGetCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Print one job's current state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		q, err := openQueue(ctx)
		if err != nil {
			return err
		}
		defer q.Close()

		job, err := q.GetJob(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("id:           %s\n", job.ID)
		fmt.Printf("kind:         %s\n", job.Kind)
		fmt.Printf("status:       %s\n", job.Status)
		fmt.Printf("attempts:     %d/%d\n", job.Attempts, job.MaxAttempts)
		fmt.Printf("progress:     %d/%d\n", job.ProgressCur, job.ProgressTot)
		if job.LastError != "" {
			fmt.Printf("last_error:   %s\n", job.LastError)
		}
		return nil
	},
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry <job-id>",
	Short: "Force an immediate retry of a failed job, bypassing backoff",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		q, err := openQueue(ctx)
		if err != nil {
			return err
		}
		defer q.Close()
		if err := q.ManualRetry(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("job %s requeued for retry\n", args[0])
		return nil
	},
}

var queueCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a queued or running job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		q, err := openQueue(ctx)
		if err != nil {
			return err
		}
		defer q.Close()
		if err := q.Cancel(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("job %s cancelled\n", args[0])
		return nil
	},
}

func init() {
	queueCmd.AddCommand(queueDepthCmd, queueRetryStatsCmd, queueGetCmd, queueRetryCmd, queueCancelCmd)
}
