package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ajibigad/codebot/internal/models"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Submit and inspect tasks",
}

var taskSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a new coding task",
	RunE:  runTaskSubmit,
}

var taskStatusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Show task status",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskStatus,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE:  runTaskList,
}

var (
	taskRepo    string
	taskDesc    string
	taskTicket  string
	taskSummary string
	taskTest    string
	taskBase    string
	taskStatus  string
	taskLimit   int
)

func init() {
	taskCmd.AddCommand(taskSubmitCmd, taskStatusCmd, taskListCmd)

	taskSubmitCmd.Flags().StringVar(&taskRepo, "repo", "", "Repository clone URL (required)")
	taskSubmitCmd.Flags().StringVar(&taskDesc, "desc", "", "Task description (required)")
	taskSubmitCmd.Flags().StringVar(&taskTicket, "ticket", "", "Ticket ID to embed in the branch name")
	taskSubmitCmd.Flags().StringVar(&taskSummary, "summary", "", "Short ticket summary for the branch and PR title")
	taskSubmitCmd.Flags().StringVar(&taskTest, "test-cmd", "", "Command the agent should run to verify its work")
	taskSubmitCmd.Flags().StringVar(&taskBase, "base", "", "Base branch (defaults to the repository default)")
	taskSubmitCmd.MarkFlagRequired("repo")
	taskSubmitCmd.MarkFlagRequired("desc")

	taskListCmd.Flags().StringVar(&taskStatus, "status", "", "Filter by status (pending, running, completed, failed)")
	taskListCmd.Flags().IntVar(&taskLimit, "limit", 50, "Maximum number of tasks to return")
}

func runTaskSubmit(cmd *cobra.Command, args []string) error {
	prompt := models.TaskPrompt{
		RepositoryURL: taskRepo,
		Description:   taskDesc,
		TicketID:      taskTicket,
		TicketSummary: taskSummary,
		TestCommand:   taskTest,
		BaseBranch:    taskBase,
	}

	resp, err := apiPost("/api/tasks/submit", prompt)
	if err != nil {
		return err
	}

	var result map[string]string
	if err := json.Unmarshal(resp, &result); err != nil {
		return err
	}

	fmt.Printf("Submitted task: %s (%s)\n", result["task_id"], result["status"])
	return nil
}

func runTaskStatus(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/api/tasks/" + args[0] + "/status")
	if err != nil {
		return err
	}

	var task models.Task
	if err := json.Unmarshal(resp, &task); err != nil {
		return err
	}

	fmt.Printf("ID:          %s\n", task.ID)
	fmt.Printf("Status:      %s\n", task.Status)
	fmt.Printf("Repository:  %s\n", task.Prompt.RepositoryURL)
	fmt.Printf("Description: %s\n", truncate(task.Prompt.Description, 120))
	fmt.Printf("Submitted:   %s\n", task.SubmittedAt.Format("2006-01-02 15:04:05"))
	if task.Result != nil {
		fmt.Printf("Branch:      %s\n", task.Result.BranchName)
		fmt.Printf("PR:          %s\n", task.Result.PRURL)
	}
	if task.Error != "" {
		fmt.Printf("Error:       %s\n", task.Error)
	}
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("/api/tasks?limit=%d", taskLimit)
	if taskStatus != "" {
		url += "&status=" + taskStatus
	}

	resp, err := apiGet(url)
	if err != nil {
		return err
	}

	var tasks []models.Task
	if err := json.Unmarshal(resp, &tasks); err != nil {
		return err
	}

	if len(tasks) == 0 {
		fmt.Println("No tasks found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tDESCRIPTION\tPR")
	for _, t := range tasks {
		pr := ""
		if t.Result != nil {
			pr = t.Result.PRURL
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", truncateID(t.ID), t.Status, truncate(t.Prompt.Description, 40), pr)
	}
	w.Flush()
	return nil
}

// --- Helpers ---

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
