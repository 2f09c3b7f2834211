package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ajibigad/codebot/internal/models"
)

var (
	detailLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("205")).
				Width(12)

	detailErrStyle = lipgloss.NewStyle().Foreground(errorColor)
)

func renderDetail(t *models.Task) string {
	var b strings.Builder

	row := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(&b, "%s %s\n", detailLabelStyle.Render(label), value)
	}

	row("ID", t.ID)
	row("Status", formatStatus(string(t.Status)))
	row("Repository", t.Prompt.RepositoryURL)
	row("Ticket", t.Prompt.TicketID)
	row("Submitted", t.SubmittedAt.Format("2006-01-02 15:04:05"))
	if t.StartedAt != nil {
		row("Started", t.StartedAt.Format("2006-01-02 15:04:05"))
	}
	if t.CompletedAt != nil {
		row("Completed", t.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	if t.Result != nil {
		row("Branch", t.Result.BranchName)
		row("PR", t.Result.PRURL)
		row("Workspace", t.Result.WorkspacePath)
	}
	if t.Error != "" {
		row("Error", detailErrStyle.Render(t.Error))
	}

	b.WriteString("\n")
	b.WriteString(detailLabelStyle.Render("Description"))
	b.WriteString("\n")
	b.WriteString(t.Prompt.Description)
	return b.String()
}
