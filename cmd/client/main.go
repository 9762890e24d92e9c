// Relay TUI client.
//
// Screens
// -------
//   stateName – centered prompt for the display name
//   stateChat – full-screen chat with scrollable message viewport
//
// Concurrency
// -----------
//   A single goroutine decodes frames from the TCP connection and forwards
//   them to the lines channel. The Bubbletea event loop consumes one frame at
//   a time via waitForLine (a tea.Cmd), immediately queuing the next read
//   after each frame is processed.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"relay/internal/config"
	"relay/internal/protocol"
)

// ---------------------------------------------------------------------------
// Styles
// ---------------------------------------------------------------------------

var (
	purple = lipgloss.Color("99")
	cyan   = lipgloss.Color("86")
	red    = lipgloss.Color("196")
	yellow = lipgloss.Color("220")
	gray   = lipgloss.Color("241")
	white  = lipgloss.Color("255")
	orange = lipgloss.Color("214")
	blue   = lipgloss.Color("75")

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Background(purple).
			Foreground(white).
			Padding(0, 1)

	footerBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder(), true, false, false, false).
				BorderForeground(gray).
				Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(purple).
			Padding(0, 2)

	labelStyle = lipgloss.NewStyle().
			Foreground(cyan).
			Width(10)

	hintStyle = lipgloss.NewStyle().
			Foreground(gray).
			Italic(true)

	errorStyle  = lipgloss.NewStyle().Foreground(red)
	sysStyle    = lipgloss.NewStyle().Foreground(yellow).Italic(true)
	myNameStyle = lipgloss.NewStyle().Bold(true).Foreground(orange)
	peerStyle   = lipgloss.NewStyle().Bold(true).Foreground(blue)
)

// ---------------------------------------------------------------------------
// Bubbletea message types
// ---------------------------------------------------------------------------

type serverLineMsg string     // a frame arrived from the server
type disconnectedMsg struct{} // server closed the connection

// ---------------------------------------------------------------------------
// Model
// ---------------------------------------------------------------------------

type appState int

const (
	stateName appState = iota
	stateChat
)

type model struct {
	conn  net.Conn
	addr  string
	lines chan string // goroutine → bubbletea bridge

	state appState
	me    string

	nameInput textinput.Model
	statusMsg string

	ready     bool
	viewport  viewport.Model
	chatInput textinput.Model
	chatLines []string

	disconnected  bool
	width, height int
}

func newModel(conn net.Conn, addr string, lines chan string) model {
	ni := textinput.New()
	ni.Placeholder = "display name"
	ni.Focus()
	ni.CharLimit = 32
	ni.Width = 32

	ci := textinput.New()
	ci.Placeholder = "Type a message or /help…"
	ci.CharLimit = 500

	return model{
		conn:      conn,
		addr:      addr,
		lines:     lines,
		state:     stateName,
		nameInput: ni,
		chatInput: ci,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForLine(m.lines))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.viewport = viewport.New(msg.Width, m.vpHeight())
			m.viewport.SetContent(strings.Join(m.chatLines, "\n"))
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = m.vpHeight()
		}
		m.chatInput.Width = msg.Width - 4
		return m, nil

	case serverLineMsg:
		m.handleServerLine(string(msg))
		return m, waitForLine(m.lines)

	case disconnectedMsg:
		m.disconnected = true
		return m, tea.Quit

	case tea.KeyMsg:
		switch m.state {
		case stateName:
			return m.handleNameKey(msg)
		case stateChat:
			return m.handleChatKey(msg)
		}
	}
	return m, nil
}

// vpHeight returns the number of lines available for the chat viewport.
func (m model) vpHeight() int {
	// header (1) + footer border (1) + footer input (1) = 3 lines reserved
	h := m.height - 3
	if h < 1 {
		h = 1
	}
	return h
}

// ---------------------------------------------------------------------------
// Key handlers
// ---------------------------------------------------------------------------

func (m model) handleNameKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit

	case tea.KeyEnter:
		name := strings.TrimSpace(m.nameInput.Value())
		switch {
		case name == "":
			m.statusMsg = "a name is required"
			return m, nil
		case strings.ContainsAny(name, " \t"):
			m.statusMsg = "Can't have spaces in name, try again"
			return m, nil
		}
		if err := protocol.WriteFrame(m.conn, name); err != nil {
			m.statusMsg = err.Error()
			return m, nil
		}
		m.me = name
		m.state = stateChat
		m.chatInput.Focus()
		return m, textinput.Blink
	}

	var cmd tea.Cmd
	m.nameInput, cmd = m.nameInput.Update(msg)
	return m, cmd
}

func (m model) handleChatKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		_ = protocol.WriteFrame(m.conn, "/quit")
		return m, tea.Quit

	case tea.KeyEnter:
		line := m.chatInput.Value()
		if strings.TrimSpace(line) == "" {
			return m, nil
		}
		if err := protocol.WriteFrame(m.conn, line); err != nil {
			m.appendChat(errorStyle.Render("⚠ " + err.Error()))
			return m, nil
		}
		m.chatInput.Reset()
		if !protocol.IsCommand(line) {
			// The server relays plain lines to everyone else only.
			m.appendChat(myNameStyle.Render(m.me) + ": " + line)
		} else if f := strings.Fields(line); len(f) > 1 && f[0] == "/nick" {
			m.me = f[1]
		}
		return m, nil

	case tea.KeyPgUp:
		m.viewport.HalfViewUp()
		return m, nil

	case tea.KeyPgDown:
		m.viewport.HalfViewDown()
		return m, nil
	}

	var cmd tea.Cmd
	m.chatInput, cmd = m.chatInput.Update(msg)
	return m, cmd
}

// ---------------------------------------------------------------------------
// Server line handler
// ---------------------------------------------------------------------------

// handleServerLine renders one frame; history replays and help text arrive
// as a single frame spanning several lines.
func (m *model) handleServerLine(frame string) {
	for _, line := range strings.Split(frame, "\n") {
		m.appendChat(m.render(line))
	}
}

func (m model) render(line string) string {
	switch {
	case protocol.IsSystemLine(line):
		return sysStyle.Render("⚡ " + strings.TrimPrefix(line, protocol.SystemTag+" "))
	case strings.HasPrefix(line, "Closing"):
		return errorStyle.Render(line)
	}
	if name, text, ok := strings.Cut(line, ": "); ok && !strings.Contains(name, " ") {
		style := peerStyle
		if name == m.me {
			style = myNameStyle
		}
		return style.Render(name) + ": " + text
	}
	return line
}

// appendChat adds a rendered line and scrolls the viewport to the bottom.
func (m *model) appendChat(line string) {
	m.chatLines = append(m.chatLines, line)
	if m.ready {
		m.viewport.SetContent(strings.Join(m.chatLines, "\n"))
		m.viewport.GotoBottom()
	}
}

// ---------------------------------------------------------------------------
// View
// ---------------------------------------------------------------------------

func (m model) View() string {
	switch m.state {
	case stateName:
		return m.viewName()
	case stateChat:
		return m.viewChat()
	}
	return ""
}

func (m model) viewName() string {
	if m.width == 0 {
		return "\n  Connecting to server…"
	}

	status := ""
	if m.statusMsg != "" {
		status = errorStyle.Render(m.statusMsg)
	}

	form := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("  Relay Terminal  "),
		"",
		labelStyle.Render("Name")+"  "+m.nameInput.View(),
		"",
		hintStyle.Render("Enter: join   Ctrl+C: quit"),
		"",
		status,
	)

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, form)
}

func (m model) viewChat() string {
	if !m.ready {
		return "\n  Connecting…"
	}

	hdr := headerStyle.
		Width(m.width).
		Render(fmt.Sprintf(" Relay  ·  %s  ·  %s  ·  PgUp/Dn: Scroll  Ctrl+C: Quit", m.me, m.addr))

	footer := footerBorderStyle.
		Width(m.width - 2).
		Render(m.chatInput.View())

	return lipgloss.JoinVertical(lipgloss.Left, hdr, m.viewport.View(), footer)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// waitForLine returns a tea.Cmd that blocks until the next frame arrives on
// ch. When ch is closed (server disconnected), it returns disconnectedMsg.
func waitForLine(ch <-chan string) tea.Cmd {
	return func() tea.Msg {
		line, ok := <-ch
		if !ok {
			return disconnectedMsg{}
		}
		return serverLineMsg(line)
	}
}

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	addr := flag.String("addr", cfg.ServerAddr, "server address")
	flag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	// lines bridges the TCP reader goroutine and the Bubbletea event loop.
	lines := make(chan string, 64)

	// Reader goroutine: TCP → lines channel.
	go func() {
		defer close(lines)
		r := bufio.NewReader(conn)
		for {
			line, err := protocol.ReadFrame(r)
			if err != nil {
				return
			}
			lines <- line
		}
	}()

	p := tea.NewProgram(
		newModel(conn, *addr, lines),
		tea.WithAltScreen(),       // use the alternate screen buffer
		tea.WithMouseCellMotion(), // enable mouse wheel scrolling
	)
	final, err := p.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if m, ok := final.(model); ok && m.disconnected {
		fmt.Println("Connection closed by Server")
	}
}
