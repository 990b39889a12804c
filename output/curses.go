//
// Copyright 2016 Gregory Trubetskoy. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package output

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/noushi/bmon/element"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#B4BEFE"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#1E1E2E")).
			Background(lipgloss.Color("#CBA6F7"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#1E1E2E")).
			Background(lipgloss.Color("#89B4FA"))

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6ADC8")).Padding(1, 0)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#585B70")).
			Padding(0, 1)
)

var isTerminal = func() bool {
	fi, err := os.Stdout.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

// Curses is the interactive terminal interface. It owns the main loop
// so that key presses and read cycles are handled on one goroutine.
//
// Options:
//
//	nodetail  do not show the attribute pane
type Curses struct {
	reg      *element.Registry
	noDetail bool
}

func NewCurses(reg *element.Registry) *Curses { return &Curses{reg: reg} }

func (c *Curses) Name() string  { return "curses" }
func (c *Curses) Primary() bool { return true }
func (c *Curses) Probe() bool   { return isTerminal() }

func (c *Curses) ParseOption(key, value string) error {
	switch strings.ToLower(key) {
	case "nodetail":
		c.noDetail = true
	default:
		return fmt.Errorf("unknown option %q", key)
	}
	return nil
}

func (c *Curses) Init() error     { return nil }
func (c *Curses) Shutdown() error { return nil }

// Draw does nothing, the screen is rendered after every update.
func (c *Curses) Draw(ctx context.Context) error { return nil }

func (c *Curses) Run(ctx context.Context, s Stepper) error {
	m := newCursesModel(ctx, c, s)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return m.err
}

type stepMsg time.Time

func stepCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return stepMsg(t)
	})
}

type cursesModel struct {
	ctx     context.Context
	c       *Curses
	stepper Stepper
	err     error
	width   int
	height  int
}

func newCursesModel(ctx context.Context, c *Curses, s Stepper) *cursesModel {
	return &cursesModel{ctx: ctx, c: c, stepper: s}
}

func (m *cursesModel) Init() tea.Cmd {
	return func() tea.Msg {
		return stepMsg(time.Now())
	}
}

func (m *cursesModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	reg := m.c.reg
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case stepMsg:
		if m.ctx.Err() != nil {
			return m, tea.Quit
		}
		d, err := m.stepper.Step(m.ctx, time.Time(msg))
		if err != nil {
			if !errors.Is(err, ErrQuit) {
				m.err = err
			}
			return m, tea.Quit
		}
		return m, stepCmd(d)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "up", "k":
			reg.PrevElement()
		case "down", "j":
			reg.NextElement()
		case "left", "<":
			reg.SelectPrevAttr()
		case "right", ">":
			reg.SelectNextAttr()
		case "home":
			reg.SelectFirstAttr()
		case "end":
			reg.SelectLastAttr()
		}
	}
	return m, nil
}

func (m *cursesModel) View() string {
	list := m.renderList()
	if m.c.noDetail {
		return list
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, list, m.renderDetail())
}

func (m *cursesModel) renderList() string {
	reg := m.c.reg
	e := reg.Engine()
	cur := reg.Current()

	var s strings.Builder
	s.WriteString(titleStyle.Render("bmon") + "\n\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("  %-16s %12s %10s %12s %10s", "Interfaces", "RX Rate", "pps", "TX Rate", "pps")) + "\n")

	els := reg.Visible()
	if len(els) == 0 {
		s.WriteString("\nNo elements\n")
	}
	for _, el := range els {
		major, minor := keyAttrs(el)
		rxb, txb := rates(e, major)
		rxp, txp := rates(e, minor)
		line := fmt.Sprintf("%-16s %12s %10s %12s %10s", truncate(el.Name(), 16), rxb, rxp, txb, txp)
		if el == cur {
			s.WriteString(selectedStyle.Render("> "+line) + "\n")
		} else {
			s.WriteString("  " + line + "\n")
		}
	}
	s.WriteString(helpStyle.Render("[↑/↓] element  [←/→] attribute  [home/end] first/last  [q] quit"))
	return panelStyle.Render(s.String())
}

func (m *cursesModel) renderDetail() string {
	reg := m.c.reg
	e := reg.Engine()

	var s strings.Builder
	el := reg.Current()
	if el == nil {
		return panelStyle.Render(titleStyle.Render("Attributes"))
	}
	s.WriteString(titleStyle.Render(el.Name()) + "\n\n")
	if el.Description() != "" {
		s.WriteString(el.Description() + "\n")
	}
	if u := el.UsageAttr(); u != nil && (el.RxMax > 0 || el.TxMax > 0) {
		rx, tx := e.CalcUsage(u, el.RxMax, el.TxMax)
		s.WriteString(fmt.Sprintf("Usage RX %s  TX %s\n", usageText(rx, el.RxMax), usageText(tx, el.TxMax)))
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("  %-16s %12s %12s", "Attribute", "RX", "TX")) + "\n")

	cur := reg.CurrentAttr()
	for _, a := range el.Attrs().Sorted() {
		rx, tx := rates(e, a)
		line := fmt.Sprintf("%-16s %12s %12s", truncate(a.Def().Description(), 16), rx, tx)
		if a == cur {
			s.WriteString(selectedStyle.Render("> "+line) + "\n")
		} else {
			s.WriteString("  " + line + "\n")
		}
	}
	return panelStyle.Render(s.String())
}

// usageText formats a usage percentage, a side without a known
// maximum has none.
func usageText(pct float64, max uint64) string {
	if max == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", pct)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
