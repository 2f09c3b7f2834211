// Package tui provides the interactive task dashboard for codebot.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ajibigad/codebot/internal/models"
)

var (
	successColor = lipgloss.Color("#10B981")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
	fgColor      = lipgloss.Color("#F9FAFB")

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	onlineStyle  = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	offlineStyle = lipgloss.NewStyle().Foreground(errorColor)
)

const refreshInterval = 3 * time.Second

var filters = []string{"", "pending", "running", "completed", "failed"}
var filterNames = []string{"ALL", "PENDING", "RUNNING", "DONE", "FAILED"}

// App is the dashboard application model.
type App struct {
	client    *Client
	list      list.Model
	viewport  viewport.Model
	mode      string // "list", "detail"
	current   *models.Task
	health    *Health
	message   string
	filterIdx int
	width     int
	height    int
}

// New creates a dashboard talking to the given API address.
func New(apiAddr, apiKey string) *App {
	delegate := list.NewDefaultDelegate()
	l := list.New([]list.Item{}, delegate, 80, 20)
	l.Title = "Tasks [ALL]"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(false)
	l.Styles.Title = listTitleStyle

	return &App{
		client:   NewClient(apiAddr, apiKey),
		list:     l,
		viewport: viewport.New(80, 20),
		mode:     "list",
	}
}

// Run starts the dashboard.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.fetchTasks(), a.fetchHealth(), tick())
}

type tasksMsg []models.Task
type taskMsg *models.Task
type healthMsg *Health
type errMsg struct{ err error }
type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a *App) fetchTasks() tea.Cmd {
	status := filters[a.filterIdx]
	return func() tea.Msg {
		tasks, err := a.client.ListTasks(status)
		if err != nil {
			return errMsg{err}
		}
		return tasksMsg(tasks)
	}
}

func (a *App) fetchTask(id string) tea.Cmd {
	return func() tea.Msg {
		task, err := a.client.GetTask(id)
		if err != nil {
			return errMsg{err}
		}
		return taskMsg(task)
	}
}

func (a *App) fetchHealth() tea.Cmd {
	return func() tea.Msg {
		h, err := a.client.GetHealth()
		if err != nil {
			return healthMsg(nil)
		}
		return healthMsg(h)
	}
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return a, tea.Quit

		case "esc":
			if a.mode == "detail" {
				a.mode = "list"
				a.current = nil
				return a, a.fetchTasks()
			}

		case "enter":
			if a.mode == "list" {
				if item, ok := a.list.SelectedItem().(TaskItem); ok {
					a.mode = "detail"
					return a, a.fetchTask(item.ID)
				}
			}

		case "tab":
			if a.mode == "list" {
				a.filterIdx = (a.filterIdx + 1) % len(filters)
				a.list.Title = fmt.Sprintf("Tasks [%s]", filterNames[a.filterIdx])
				return a, a.fetchTasks()
			}

		case "r":
			return a, tea.Batch(a.fetchTasks(), a.fetchHealth())
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.list.SetSize(msg.Width, msg.Height-2)
		a.viewport.Width = msg.Width - 4
		a.viewport.Height = msg.Height - 4

	case tasksMsg:
		a.list.SetItems(toItems(msg))
		return a, nil

	case taskMsg:
		a.current = msg
		a.viewport.SetContent(renderDetail(msg))
		return a, nil

	case healthMsg:
		a.health = msg
		return a, nil

	case errMsg:
		a.message = msg.err.Error()
		return a, nil

	case tickMsg:
		cmds := []tea.Cmd{a.fetchHealth(), tick()}
		if a.mode == "detail" && a.current != nil {
			cmds = append(cmds, a.fetchTask(a.current.ID))
		} else {
			cmds = append(cmds, a.fetchTasks())
		}
		return a, tea.Batch(cmds...)
	}

	var cmd tea.Cmd
	switch a.mode {
	case "list":
		a.list, cmd = a.list.Update(msg)
	case "detail":
		a.viewport, cmd = a.viewport.Update(msg)
	}
	return a, cmd
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	switch a.mode {
	case "detail":
		b.WriteString(panelStyle.Render(a.viewport.View()))
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("esc back • q quit"))
	default:
		b.WriteString(a.list.View())
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter details • tab filter • r refresh • q quit"))
	}

	b.WriteString("\n")
	b.WriteString(a.statusBar())
	return b.String()
}

func (a *App) statusBar() string {
	server := offlineStyle.Render("server offline")
	queues := ""
	if a.health != nil {
		server = onlineStyle.Render("server online")
		queues = fmt.Sprintf(" • tasks queued: %d • reviews queued: %d",
			a.health.TaskQueueDepth, a.health.ReviewQueueDepth)
	}
	line := server + queues
	if a.message != "" {
		line += " • " + a.message
	}
	return statusBarStyle.Render(line)
}
