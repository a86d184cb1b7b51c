package cli

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/jocr1627/fun-with-ml-server/internal/client"
)

const pollInterval = time.Second

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status     lipgloss.Color
	Success    lipgloss.Color
	Error      lipgloss.Color
	Hint       lipgloss.Color
	ProgressBg lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Error:      lipgloss.Color("#FF005F"), // red
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	ProgressBg: lipgloss.Color("#3A3A3A"), // dark gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// tickMsg triggers polling the job status
type tickMsg time.Time

// jobUpdateMsg carries the updated job data
type jobUpdateMsg struct {
	job *client.TrainingJob
	err error
}

// trainingModel is the bubbletea model for training progress.
type trainingModel struct {
	client   *client.Client
	jobID    string
	epochs   int
	job      *client.TrainingJob
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

// newTrainingModel creates a new progress model.
func newTrainingModel(c *client.Client, job *client.TrainingJob, epochs int) trainingModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return trainingModel{
		client:   c,
		jobID:    job.ID,
		epochs:   epochs,
		job:      job,
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial command (start polling).
func (m trainingModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m trainingModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		return m, m.fetchJob()

	case jobUpdateMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("failed to fetch job status: %w", msg.err)
			m.done = true
			return m, tea.Quit
		}
		if msg.job == nil {
			m.err = fmt.Errorf("job %s is no longer tracked", m.jobID)
			m.done = true
			return m, tea.Quit
		}

		m.job = msg.job

		switch m.job.Status {
		case client.StatusDone:
			m.done = true
			return m, tea.Quit
		case client.StatusError:
			m.done = true
			m.err = jobError(m.job.Errors)
			return m, tea.Quit
		}

		return m, tickCmd()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m trainingModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m trainingModel) renderContent() string {
	if m.done || m.quitting {
		return m.finalView()
	}

	if m.job == nil {
		return "Loading job status...\n"
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.job.Status))
	bar := m.progress.ViewAs(epochProgress(m.job.Metrics, m.epochs))

	line := fmt.Sprintf("%s %s", status, bar)
	if metrics := formatMetrics(m.job.Metrics); metrics != "" {
		line += " " + metrics
	}

	hint := m.theme.hintStyle().Render("Press Ctrl+C to continue in background")
	return fmt.Sprintf("%s\n%s\n", line, hint)
}

// finalView renders the completion message.
func (m trainingModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nTraining of model %s continues in background.\nUse 'fwml jobs train %s' to check status.\n",
			m.jobID, m.jobID)
		return m.theme.hintStyle().Render(msg)
	}

	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Training failed: %s\n", m.err))
	}

	out := m.theme.completedStyle().Render("✓ Completed") + "\n"
	if metrics := formatMetrics(m.job.Metrics); metrics != "" {
		out += fmt.Sprintf("\n  Final metrics: %s\n", metrics)
	}
	return out
}

// fetchJob fetches the current job status from the server.
// Runs in a separate goroutine (command) to avoid blocking Update().
func (m trainingModel) fetchJob() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		job, err := m.client.GetTrainingJob(ctx, m.jobID)
		return jobUpdateMsg{job: job, err: err}
	}
}

// tickCmd returns a command that sends a tick after the poll interval.
func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// epochProgress estimates completion from the "epoch" metric reported by the worker.
func epochProgress(metrics map[string]any, epochs int) float64 {
	if epochs <= 0 {
		return 0
	}
	epoch, ok := metrics["epoch"].(float64)
	if !ok {
		return 0
	}
	return min(max(epoch/float64(epochs), 0), 1)
}

// formatMetrics renders metrics as sorted key=value pairs.
func formatMetrics(metrics map[string]any) string {
	if len(metrics) == 0 {
		return ""
	}
	parts := make([]string, 0, len(metrics))
	for _, k := range slices.Sorted(maps.Keys(metrics)) {
		switch v := metrics[k].(type) {
		case float64:
			parts = append(parts, fmt.Sprintf("%s=%.4g", k, v))
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}
	return strings.Join(parts, " ")
}

func jobError(errs []string) error {
	if len(errs) == 0 {
		return fmt.Errorf("job failed with unknown error")
	}
	return fmt.Errorf("%s", strings.Join(errs, "; "))
}

// RunTrainingProgress runs the interactive progress UI for a training job.
// Returns nil on success or Ctrl+C (background), error on job failure.
func RunTrainingProgress(c *client.Client, job *client.TrainingJob, epochs int) error {
	model := newTrainingModel(c, job, epochs)
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(trainingModel); ok {
		if m.quitting {
			return nil
		}
		if m.err != nil {
			return m.err
		}
	}

	return nil
}
