// Package tui implements the batchforge watch view.
package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/batchforge/batchforge/internal/jobs"
	"github.com/batchforge/batchforge/internal/models"
)

// Run launches the watch view and blocks until the user quits or every job
// has finished.
func Run(watcher *jobs.Watcher) error {
	program := tea.NewProgram(newWatchModel(watcher))
	if _, err := program.Run(); err != nil {
		return err
	}
	return watcher.Err()
}

type watchModel struct {
	watcher *jobs.Watcher
	styles  Styles

	jobs    []*models.Job
	started time.Time
	now     time.Time
	done    bool
}

type updateMsg jobs.Update

type doneMsg struct{}

type tickMsg time.Time

func newWatchModel(watcher *jobs.Watcher) watchModel {
	now := time.Now()
	return watchModel{
		watcher: watcher,
		styles:  DefaultStyles(),
		jobs:    sortJobs(watcher.Snapshot()),
		started: now,
		now:     now,
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.waitForUpdate(), tickCmd())
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
	case updateMsg:
		m.jobs = sortJobs(m.watcher.Snapshot())
		return m, m.waitForUpdate()
	case doneMsg:
		m.jobs = sortJobs(m.watcher.Snapshot())
		m.done = true
		return m, tea.Quit
	case tickMsg:
		m.now = time.Time(msg)
		return m, tickCmd()
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("batchforge watch"))
	b.WriteString("  ")
	b.WriteString(m.styles.Muted.Render("elapsed " + m.now.Sub(m.started).Round(time.Second).String()))
	b.WriteString("\n\n")

	b.WriteString(m.styles.Header.Render(fmt.Sprintf("%-24s %-12s %-10s %s", "NAME", "STATE", "BATCH", "ATTEMPTS")))
	b.WriteString("\n")

	for _, job := range m.jobs {
		batchID := job.BatchID
		if batchID == "" {
			batchID = "-"
		}
		line := fmt.Sprintf("%-24s %-12s %-10s %d", truncate(job.Name, 24), job.State, batchID, job.Attempts)
		b.WriteString(m.stateStyle(job.State).Render(line))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.summaryLine())
	b.WriteString("\n")
	if m.done {
		if m.watcher.Err() != nil {
			b.WriteString(m.styles.Error.Render("Lost contact with the scheduler."))
		} else {
			b.WriteString(m.styles.Muted.Render("All jobs finished."))
		}
	} else {
		b.WriteString(m.styles.Muted.Render("Press q to quit."))
	}
	b.WriteString("\n")

	return b.String()
}

func (m watchModel) summaryLine() string {
	counts := make(map[models.JobState]int)
	for _, job := range m.jobs {
		counts[job.State]++
	}

	parts := make([]string, 0, len(counts))
	for _, state := range models.AllJobStates() {
		if n := counts[state]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, state))
		}
	}
	if len(parts) == 0 {
		return m.styles.Muted.Render("no jobs tracked")
	}
	return m.styles.Text.Render(strings.Join(parts, ", "))
}

func (m watchModel) stateStyle(state models.JobState) lipgloss.Style {
	switch state {
	case models.JobStateCompleted:
		return m.styles.Success
	case models.JobStateFailed:
		return m.styles.Error
	case models.JobStateCancelled:
		return m.styles.Warning
	case models.JobStateRunning:
		return m.styles.Busy
	default:
		return m.styles.Text
	}
}

// waitForUpdate blocks on the watcher until something changes.
func (m watchModel) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		select {
		case update := <-m.watcher.Updates():
			return updateMsg(update)
		case <-m.watcher.Done():
			return doneMsg{}
		}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func sortJobs(list []*models.Job) []*models.Job {
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
