package main

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/open-schedule/schedule-client/internal/model"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks within a table",
}

var taskFlags struct {
	description string
	startDate   string
	endDate     string
	startTime   string
	endTime     string
	period      int32
}

func addTaskFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&taskFlags.description, "desc", "", "task description")
	cmd.Flags().StringVar(&taskFlags.startDate, "start", "", `start date ("2024-01-01" or natural language like "next monday")`)
	cmd.Flags().StringVar(&taskFlags.endDate, "end", "", "end date")
	cmd.Flags().StringVar(&taskFlags.startTime, "from", "", `start time ("09:00:00" or "09:00")`)
	cmd.Flags().StringVar(&taskFlags.endTime, "to", "", "end time")
	cmd.Flags().Int32Var(&taskFlags.period, "every", 0, "recurrence period in days, 0 for one-off")
}

// taskChangeFromFlags builds the change record from command flags.
func taskChangeFromFlags(name string) (model.TaskChange, error) {
	change := model.TaskChange{
		Name:        name,
		Description: taskFlags.description,
		Period:      taskFlags.period,
	}

	var err error
	if change.StartDate, err = parseDateArg(taskFlags.startDate); err != nil {
		return change, err
	}
	if change.EndDate, err = parseDateArg(taskFlags.endDate); err != nil {
		return change, err
	}
	if change.StartTime, err = parseClockArg(taskFlags.startTime); err != nil {
		return change, err
	}
	if change.EndTime, err = parseClockArg(taskFlags.endTime); err != nil {
		return change, err
	}
	return change, nil
}

// parseDateArg accepts the canonical YYYY-MM-DD form or natural language
// ("tomorrow", "next friday").
func parseDateArg(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := model.ParseDate(s); err == nil {
		return t, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(s, time.Now())
	if err != nil || r == nil {
		return nil, fmt.Errorf("unrecognized date %q", s)
	}
	day := time.Date(r.Time.Year(), r.Time.Month(), r.Time.Day(), 0, 0, 0, 0, time.UTC)
	return &day, nil
}

// parseClockArg accepts HH:MM:SS or the short HH:MM form.
func parseClockArg(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if len(s) == 5 {
		s += ":00"
	}
	return model.ParseClock(s)
}

var taskAddCmd = &cobra.Command{
	Use:   "add <table-id> <name>",
	Short: "Create a task locally and queue it for sync",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tableID, err := parseID(args[0])
		if err != nil {
			return err
		}
		change, err := taskChangeFromFlags(args[1])
		if err != nil {
			return err
		}

		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		st, repo, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer repo.Close()

		sess := offlineSession(cfg, st)
		taskID, err := sess.CreateTask(cmd.Context(), tableID, change)
		if err != nil {
			return err
		}
		fmt.Printf("created task %d in table %d (pending sync)\n", taskID, tableID)
		return nil
	},
}

var taskChangeCmd = &cobra.Command{
	Use:   "change <table-id> <task-id> <name>",
	Short: "Append a change record to a task",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		tableID, err := parseID(args[0])
		if err != nil {
			return err
		}
		taskID, err := parseID(args[1])
		if err != nil {
			return err
		}
		change, err := taskChangeFromFlags(args[2])
		if err != nil {
			return err
		}

		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		st, repo, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer repo.Close()

		sess := offlineSession(cfg, st)
		if err := sess.ChangeTask(cmd.Context(), tableID, taskID, change); err != nil {
			return err
		}
		fmt.Printf("task %d updated\n", taskID)
		return nil
	},
}

var taskCommentCmd = &cobra.Command{
	Use:   "comment <table-id> <task-id> <text>",
	Short: "Comment on a task",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		tableID, err := parseID(args[0])
		if err != nil {
			return err
		}
		taskID, err := parseID(args[1])
		if err != nil {
			return err
		}

		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		st, repo, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer repo.Close()

		sess := offlineSession(cfg, st)
		if err := sess.AddComment(cmd.Context(), tableID, taskID, args[2]); err != nil {
			return err
		}
		fmt.Println("comment added")
		return nil
	},
}

func init() {
	addTaskFlags(taskAddCmd)
	addTaskFlags(taskChangeCmd)
	taskCmd.AddCommand(taskAddCmd, taskChangeCmd, taskCommentCmd)
	rootCmd.AddCommand(taskCmd)
}
