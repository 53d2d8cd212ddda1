package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/regwatch/regwatch/jobs"
)

// Enqueuer submits warmup tasks.
type Enqueuer interface {
	Enqueue(ctx context.Context, taskType string) (*asynq.TaskInfo, error)
}

// Inspector reads queue state.
type Inspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
}

// JobsCLI wraps manual management helpers for the warmup queue.
type JobsCLI struct {
	client    Enqueuer
	inspector Inspector
}

// NewJobsCLI wires the helpers to an explicit client and inspector.
func NewJobsCLI(client Enqueuer, inspector Inspector) *JobsCLI {
	return &JobsCLI{client: client, inspector: inspector}
}

// Trigger enqueues a supported task by type with its default payload.
func (c *JobsCLI) Trigger(ctx context.Context, taskType string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	return c.client.Enqueue(ctx, taskType)
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Failed    int
}

// InspectQueue reports the default queue metrics.
func (c *JobsCLI) InspectQueue() (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Failed = info.Failed
	}
	return stats, nil
}

// ListScheduled returns scheduled tasks, periodic warmups included.
func (c *JobsCLI) ListScheduled(size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}

func newJobsCommand(g *globalOptions) *cobra.Command {
	var scheduled int
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Trigger and inspect the cache warmup jobs",
	}
	open := func() (*JobsCLI, func(), error) {
		redisOpt := asynq.RedisClientOpt{Addr: g.redisAddr}
		client := jobs.NewClient(redisOpt)
		inspector := asynq.NewInspector(redisOpt)
		closeAll := func() {
			_ = client.Close()
			_ = inspector.Close()
		}
		return NewJobsCLI(client, inspector), closeAll, nil
	}

	trigger := &cobra.Command{
		Use:       "trigger <task-type>",
		Short:     "Enqueue a warmup task now",
		Args:      cobra.ExactArgs(1),
		ValidArgs: jobs.TaskTypes,
		RunE: func(cmd *cobra.Command, args []string) error {
			jc, closeAll, err := open()
			if err != nil {
				return err
			}
			defer closeAll()
			info, err := jc.Trigger(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("trigger %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}

	inspect := &cobra.Command{
		Use:   "inspect",
		Short: "Show queue depth and upcoming scheduled tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			jc, closeAll, err := open()
			if err != nil {
				return err
			}
			defer closeAll()
			return printQueue(cmd, jc, scheduled)
		},
	}
	inspect.Flags().IntVar(&scheduled, "scheduled", 10, "number of scheduled tasks to list")

	cmd.AddCommand(trigger, inspect)
	return cmd
}

func printQueue(cmd *cobra.Command, jc *JobsCLI, scheduled int) error {
	stats, err := jc.InspectQueue()
	if err != nil {
		return err
	}
	tasks, err := jc.ListScheduled(scheduled)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "queue %s: pending=%d active=%d scheduled=%d retry=%d failed=%d\n",
		stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Failed)
	if len(tasks) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tNEXT RUN")
	for _, t := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}
