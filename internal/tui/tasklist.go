package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"

	"github.com/ajibigad/codebot/internal/models"
)

var (
	listTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	statusPending   = lipgloss.NewStyle().Foreground(lipgloss.Color("3")) // Yellow
	statusRunning   = lipgloss.NewStyle().Foreground(lipgloss.Color("6")) // Cyan
	statusCompleted = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // Green
	statusFailed    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")) // Red
)

// TaskItem implements list.Item for the task list.
type TaskItem struct {
	ID     string
	Desc   string
	Status string
	PRURL  string
}

func (i TaskItem) FilterValue() string { return i.Desc }
func (i TaskItem) Title() string       { return i.Desc }
func (i TaskItem) Description() string {
	status := formatStatus(i.Status)
	if i.PRURL != "" {
		return fmt.Sprintf("%s • %s", status, i.PRURL)
	}
	return status
}

func formatStatus(status string) string {
	switch status {
	case "pending":
		return statusPending.Render("● pending")
	case "running":
		return statusRunning.Render("● running")
	case "completed":
		return statusCompleted.Render("● completed")
	case "failed":
		return statusFailed.Render("● failed")
	default:
		return status
	}
}

func toItems(tasks []models.Task) []list.Item {
	items := make([]list.Item, len(tasks))
	for i, t := range tasks {
		item := TaskItem{
			ID:     t.ID,
			Desc:   oneLine(t.Prompt.Description, 60),
			Status: string(t.Status),
		}
		if t.Result != nil {
			item.PRURL = t.Result.PRURL
		}
		items[i] = item
	}
	return items
}

func oneLine(s string, n int) string {
	for i, r := range s {
		if r == '\n' {
			s = s[:i]
			break
		}
	}
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}
