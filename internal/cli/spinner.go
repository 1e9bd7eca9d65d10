package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/guiyumin/biliget/internal/core/site/bilibili"
)

var (
	infoStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	doneStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

var errCancelled = errors.New("cancelled")

// metadataState is shared between the fetch goroutine and the spinner
type metadataState struct {
	mu     sync.RWMutex
	done   bool
	err    error
	result *bilibili.VideoMetadata
}

func (s *metadataState) finish(result *bilibili.VideoMetadata, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	s.result = result
	s.err = err
}

func (s *metadataState) get() (bool, *bilibili.VideoMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.done, s.result, s.err
}

type metadataTickMsg time.Time

type metadataModel struct {
	spinner   spinner.Model
	input     string
	state     *metadataState
	cancelled bool
}

func newMetadataModel(input string, state *metadataState) metadataModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return metadataModel{spinner: s, input: input, state: state}
}

func metadataTickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return metadataTickMsg(t)
	})
}

func (m metadataModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, metadataTickCmd())
}

func (m metadataModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.cancelled = true
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case metadataTickMsg:
		if done, _, _ := m.state.get(); done {
			return m, tea.Quit
		}
		return m, metadataTickCmd()
	}

	return m, nil
}

func (m metadataModel) View() string {
	done, result, err := m.state.get()

	if err != nil {
		return fmt.Sprintf("\n  %s Failed to fetch video info: %v\n\n", errStyle.Render("✗"), err)
	}

	if done && result != nil {
		return fmt.Sprintf("\n  %s %s  |  Parts: %d\n\n",
			doneStyle.Render("✓"),
			infoStyle.Render(result.Title),
			len(result.Parts),
		)
	}

	return fmt.Sprintf("\n  %s Fetching video info: %s\n\n", m.spinner.View(), infoStyle.Render(m.input))
}

// fetchMetadata runs fetch under a spinner when stdout is a terminal
func fetchMetadata(ctx context.Context, input string, fetch func(context.Context) (*bilibili.VideoMetadata, error)) (*bilibili.VideoMetadata, error) {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fetch(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	state := &metadataState{}
	go func() {
		state.finish(fetch(ctx))
	}()

	finalModel, err := tea.NewProgram(newMetadataModel(input, state), tea.WithContext(ctx)).Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return nil, err
	}
	if mm, ok := finalModel.(metadataModel); ok && mm.cancelled {
		return nil, errCancelled
	}

	done, result, fetchErr := state.get()
	if fetchErr != nil {
		return nil, fetchErr
	}
	if !done {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, errCancelled
	}
	return result, nil
}
