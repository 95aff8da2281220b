package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/missionloop/missiond/internal/apiclient"
)

func main() {
	_ = godotenv.Load()

	var serverURL string
	var password string

	root := &cobra.Command{
		Use:   "mc",
		Short: "mission control CLI",
		Long:  "Talks to a running missiond: manage the task board, dispatch tasks to agents, and watch completion monitors.",
	}
	root.PersistentFlags().StringVar(&serverURL, "server", envOr("MC_SERVER", "http://127.0.0.1:8900"), "missiond base URL")
	root.PersistentFlags().StringVar(&password, "password", os.Getenv("MC_DASHBOARD_PASSWORD"), "dashboard password")

	client := func() *apiclient.Client {
		return apiclient.New(serverURL, password)
	}

	root.AddCommand(
		statusCmd(client),
		taskCmd(client),
		dispatchCmd(client),
		agentsCmd(client),
		activityCmd(client),
		monitorsCmd(client),
		checkCmd(client),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func statusCmd(client func() *apiclient.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Daemon and gateway health",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := client().Health()
			if err != nil {
				return err
			}
			fmt.Printf("missiond %s\n", h.Version)
			fmt.Printf("gateway connected: %v\n", h.Gateway)
			fmt.Printf("active monitors:   %d\n", h.Monitors)
			return nil
		},
	}
}

func taskCmd(client func() *apiclient.Client) *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage board tasks",
	}

	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := client().ListTasks(status)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tAGENT\tTITLE")
			for _, t := range tasks {
				agent := "-"
				if t.AssignedAgentID != nil {
					agent = *t.AssignedAgentID
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", shortID(t.ID), t.Status, t.Priority, agent, t.Title)
			}
			return w.Flush()
		},
	}
	list.Flags().StringVar(&status, "status", "", "filter by status")

	var description, priority, missionID string
	add := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := client().CreateTask(args[0], description, priority, missionID)
			if err != nil {
				return err
			}
			fmt.Printf("created %s\n", t.ID)
			return nil
		},
	}
	add.Flags().StringVarP(&description, "description", "d", "", "task description")
	add.Flags().StringVarP(&priority, "priority", "p", "medium", "task priority")
	add.Flags().StringVar(&missionID, "mission", "", "mission id")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task and its comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client()
			t, err := c.GetTask(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s  [%s/%s]\n", t.Title, t.Status, t.Priority)
			if t.Description != "" {
				fmt.Printf("\n%s\n", t.Description)
			}
			if t.AssignedAgentID != nil {
				fmt.Printf("\nagent:   %s\n", *t.AssignedAgentID)
			}
			if t.SessionKey != nil {
				fmt.Printf("session: %s\n", *t.SessionKey)
			}
			comments, err := c.Comments(t.ID)
			if err != nil {
				return err
			}
			for _, cm := range comments {
				fmt.Printf("\n--- %s at %s ---\n%s\n",
					cm.AuthorType, cm.CreatedAt.Format("2006-01-02 15:04"), cm.Content)
			}
			return nil
		},
	}

	move := &cobra.Command{
		Use:   "move <id> <status>",
		Short: "Move a task to another column",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := client().MoveTask(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("%s -> %s\n", shortID(t.ID), t.Status)
			return nil
		},
	}

	rm := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().DeleteTask(args[0])
		},
	}

	task.AddCommand(list, add, show, move, rm)
	return task
}

func dispatchCmd(client func() *apiclient.Client) *cobra.Command {
	var feedback string
	cmd := &cobra.Command{
		Use:   "dispatch <task-id> <agent-id>",
		Short: "Send a task to an agent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := client().Dispatch(args[0], args[1], feedback)
			if err != nil {
				return err
			}
			fmt.Printf("dispatched to %s\nsession %s\n", args[1], res.SessionKey)
			return nil
		},
	}
	cmd.Flags().StringVarP(&feedback, "feedback", "f", "", "rework feedback (re-dispatch from review)")
	return cmd
}

func agentsCmd(client func() *apiclient.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List gateway agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			agents, err := client().ListAgents()
			if err != nil {
				return err
			}
			for _, a := range agents {
				fmt.Printf("%s\t%s\n", a.ID, a.Name)
			}
			return nil
		},
	}
}

func activityCmd(client func() *apiclient.Client) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show recent activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := client().Activity(limit)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("%s  %-18s %s\n", e.CreatedAt.Format("15:04:05"), e.Type, e.Message)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")
	return cmd
}

func monitorsCmd(client func() *apiclient.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "monitors",
		Short: "List active completion monitors",
		RunE: func(cmd *cobra.Command, args []string) error {
			monitors, err := client().Monitors()
			if err != nil {
				return err
			}
			if len(monitors) == 0 {
				fmt.Println("no active monitors")
				return nil
			}
			for _, m := range monitors {
				fmt.Printf("%s  %s  since %s\n", shortID(m.TaskID), m.SessionKey, m.StartedAt.Format("15:04:05"))
			}
			return nil
		},
	}
}

func checkCmd(client func() *apiclient.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Sweep in-progress tasks for completed agent responses",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := client().CheckCompletion()
			if err != nil {
				return err
			}
			fmt.Printf("checked %d, completed %d\n", res.Checked, len(res.Completed))
			if len(res.Completed) > 0 {
				fmt.Println(strings.Join(res.Completed, "\n"))
			}
			return nil
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
