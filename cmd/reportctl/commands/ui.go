package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"

	"github.com/svaia/api/internal/reportjob"
)

var (
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#00D4AA"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6BCB77")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD93D"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

// UI is the terminal side of the controller: banners go to errOut, tables
// and reports to out, confirmations are read from in.
type UI struct {
	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer

	// AssumeYes answers every confirmation with yes.
	AssumeYes bool

	mu sync.Mutex
}

func NewUI(in io.Reader, out, errOut io.Writer) *UI {
	return &UI{in: bufio.NewReader(in), out: out, errOut: errOut}
}

// Notify prints a one-line banner styled by level.
func (u *UI) Notify(level reportjob.Level, message string) {
	var style lipgloss.Style
	switch level {
	case reportjob.LevelSuccess:
		style = successStyle
	case reportjob.LevelWarning:
		style = warningStyle
	case reportjob.LevelError:
		style = errorStyle
	default:
		style = infoStyle
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	fmt.Fprintln(u.errOut, style.Render("["+level.String()+"] "+message))
}

// Confirm asks a y/N question. Anything but y or yes declines, and so does
// end of input.
func (u *UI) Confirm(ctx context.Context, prompt string) (bool, error) {
	if u.AssumeYes {
		return true, nil
	}

	u.mu.Lock()
	fmt.Fprint(u.errOut, warningStyle.Render(prompt)+" [y/N] ")
	u.mu.Unlock()

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := u.in.ReadString('\n')
		ch <- answer{line, err}
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a := <-ch:
		if a.err != nil && a.err != io.EOF {
			return false, a.err
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}

// RenderBoard prints one row per project with the state of its control.
func (u *UI) RenderBoard(rows []reportjob.Row) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if len(rows) == 0 {
		fmt.Fprintln(u.out, mutedStyle.Render("No projects."))
		return nil
	}

	table := tablewriter.NewWriter(u.out)
	table.Header("Owner", "Project", "Control", "Report", "Error")
	for _, r := range rows {
		report := ""
		if r.Report != nil {
			report = r.Report.Name
		}
		if err := table.Append(r.Job.Owner, r.Job.Project, r.State.String(), report, r.Err); err != nil {
			return fmt.Errorf("failed to render board row %s: %w", r.Job, err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render board: %w", err)
	}
	return nil
}

// PrintSection prints a heading above the next block of output.
func (u *UI) PrintSection(title string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	fmt.Fprintln(u.out, titleStyle.Render(title))
}

// PrintRow prints a single control change while polling.
func (u *UI) PrintRow(r reportjob.Row) {
	u.mu.Lock()
	defer u.mu.Unlock()

	line := fmt.Sprintf("%s  %s", r.Job, r.State)
	if r.Err != "" {
		line += "  " + r.Err
	}
	fmt.Fprintln(u.out, mutedStyle.Render(line))
}

// PrintReport prints the viewer, including the reasoning panel when it is
// expanded.
func (u *UI) PrintReport(v *reportjob.ReportView) {
	u.mu.Lock()
	defer u.mu.Unlock()

	fmt.Fprintln(u.out, titleStyle.Render(v.Title))
	fmt.Fprintln(u.out)
	fmt.Fprintln(u.out, v.Body)

	if !v.HasReasoning() {
		return
	}
	fmt.Fprintln(u.out)
	if !v.ReasoningVisible() {
		fmt.Fprintln(u.out, mutedStyle.Render("("+v.ReasoningLabel()+" with --reasoning)"))
		return
	}
	fmt.Fprintln(u.out, titleStyle.Render("Reasoning"))
	fmt.Fprintln(u.out, v.Reasoning)
}

// PrintRaw prints exactly what the copy action copies.
func (u *UI) PrintRaw(v *reportjob.ReportView) {
	u.mu.Lock()
	defer u.mu.Unlock()
	fmt.Fprint(u.out, v.CopyText())
}

// PrintJobs lists job ids, one per line.
func (u *UI) PrintJobs(jobs []reportjob.JobID) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if len(jobs) == 0 {
		fmt.Fprintln(u.out, mutedStyle.Render("No report generation in flight."))
		return
	}
	for _, j := range jobs {
		fmt.Fprintln(u.out, j.String())
	}
}
