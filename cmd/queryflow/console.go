package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/dshills/queryflow/analyst"
	"github.com/dshills/queryflow/graph/emit"
	"github.com/dshills/queryflow/graph/model"
	"github.com/dshills/queryflow/querydb"
)

var (
	colorGreen   = lipgloss.Color("#98C379")
	colorRed     = lipgloss.Color("#E06C75")
	colorYellow  = lipgloss.Color("#E5C07B")
	colorCyan    = lipgloss.Color("#56B6C2")
	colorMagenta = lipgloss.Color("#C678DD")
	colorMuted   = lipgloss.Color("#636B78")
	colorBorder  = lipgloss.Color("#3F4451")

	bannerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorCyan).
			Padding(0, 1)

	answerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGreen).
			Padding(1, 2)

	reviewStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorYellow).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
	nodeStyle  = lipgloss.NewStyle().Foreground(colorMagenta).Bold(true)
	queryStyle = lipgloss.NewStyle().Foreground(colorCyan)
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
	errorStyle = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
	tableStyle = lipgloss.NewStyle().Foreground(colorBorder)
)

// console is the interactive terminal session on one thread.
type console struct {
	assistant *analyst.Assistant
	costs     *model.CostTracker
	threadID  string
	in        *bufio.Reader
	out       io.Writer
}

// newConsole creates a console. The assistant is attached afterwards since
// it is built with the console's progress emitter.
func newConsole(threadID string, in io.Reader, out io.Writer) *console {
	return &console{threadID: threadID, in: bufio.NewReader(in), out: out}
}

// progress prints one line per finished node.
func (c *console) progress() emit.Emitter {
	return emit.Func(func(e emit.Event) {
		switch e.Msg {
		case emit.NodeEnd:
			fmt.Fprintf(c.out, "%s %s\n", mutedStyle.Render("-> finished"), nodeStyle.Render(e.NodeID))
		case emit.NodeFault:
			fmt.Fprintf(c.out, "%s %s: %v\n", errorStyle.Render("-> fault in"), nodeStyle.Render(e.NodeID), e.Meta["error"])
		}
	})
}

func (c *console) banner(stats []querydb.TableStat) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(tableStyle).
		Headers("TABLE", "ROWS")
	for _, s := range stats {
		t.Row(s.Table, strconv.FormatInt(s.Rows, 10))
	}
	fmt.Fprintln(c.out, bannerStyle.Render(
		titleStyle.Render("Portfolio query assistant online")+"\n"+
			mutedStyle.Render("Thread "+c.threadID+" is checkpointed; type exit to leave.")+"\n"+
			t.String()))
}

// run reads questions until exit, EOF or cancellation. A thread left
// suspended by an earlier session goes to review first.
func (c *console) run(ctx context.Context) error {
	res, err := c.assistant.State(ctx, c.threadID)
	if err == nil && res.Suspended() {
		fmt.Fprintln(c.out, warnStyle.Render("A query from the previous session is still awaiting review."))
		if err := c.review(ctx, res); err != nil {
			return c.stop(err)
		}
	}

	for ctx.Err() == nil {
		line, err := c.prompt("\n[Query]: ")
		if err != nil {
			return c.stop(err)
		}
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return c.stop(nil)
		}

		res, err := c.assistant.Ask(ctx, c.threadID, line)
		if err != nil {
			c.printError(err)
			continue
		}
		if err := c.review(ctx, res); err != nil {
			return c.stop(err)
		}
	}
	return c.stop(nil)
}

// stop ends the session. End of input is a normal exit.
func (c *console) stop(err error) error {
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if c.costs != nil {
		fmt.Fprintln(c.out, mutedStyle.Render("Model usage: "+c.costs.String()))
	}
	fmt.Fprintln(c.out, warnStyle.Render("Session saved. Goodbye!"))
	return nil
}

// review loops on the approval gate until the turn finishes, then prints
// the answer.
func (c *console) review(ctx context.Context, res analyst.Result) error {
	for res.Suspended() {
		d, err := c.decide(res.State.CandidateQuery)
		if err != nil {
			return err
		}
		res, err = c.assistant.Resume(ctx, c.threadID, d)
		if err != nil {
			c.printError(err)
			return nil
		}
	}
	c.printAnswer(res.State)
	return nil
}

func (c *console) decide(query string) (analyst.Decision, error) {
	fmt.Fprintln(c.out, reviewStyle.Render(
		warnStyle.Render("Review required")+"\n"+queryStyle.Render(query)))
	for {
		choice, err := c.prompt("Run it? [r]un / [e]dit / re[j]ect: ")
		if err != nil {
			return analyst.Decision{}, err
		}
		switch strings.ToLower(choice) {
		case "r", "run", "y", "yes":
			vis, err := c.confirm("Chart the result? [y/N]: ")
			if err != nil {
				return analyst.Decision{}, err
			}
			return analyst.Accept(vis), nil
		case "e", "edit":
			q, err := c.prompt("Replacement query: ")
			if err != nil {
				return analyst.Decision{}, err
			}
			if q == "" {
				continue
			}
			vis, err := c.confirm("Chart the result? [y/N]: ")
			if err != nil {
				return analyst.Decision{}, err
			}
			return analyst.Edit(q, vis), nil
		case "j", "reject", "n", "no":
			reason, err := c.prompt("Feedback (optional): ")
			if err != nil {
				return analyst.Decision{}, err
			}
			return analyst.Reject(reason), nil
		}
	}
}

func (c *console) printAnswer(s analyst.SessionState) {
	if s.Error != "" {
		fmt.Fprintf(c.out, "%s %s\n", errorStyle.Render(string(s.Fault)+":"), s.Error)
	}
	msg, ok := analyst.LastAnswer(s)
	if !ok {
		return
	}
	fmt.Fprintln(c.out, answerStyle.Render(titleStyle.Render("Analyst insight")+"\n\n"+msg.Text))
}

func (c *console) printError(err error) {
	fmt.Fprintf(c.out, "%s %v\n", errorStyle.Render("Error:"), err)
}

func (c *console) prompt(label string) (string, error) {
	fmt.Fprint(c.out, label)
	line, err := c.in.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (c *console) confirm(label string) (bool, error) {
	answer, err := c.prompt(label)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
