package server

import (
	"fmt"
	"strings"
	"unicode"

	"relay/internal/protocol"
)

const (
	quitReason     = "Closing connection"
	shutdownReason = "Server shutting down"
	tooLong        = "Message too long"
)

const helpIndex = "Type /help command to learn more about a command\n" +
	"Command list:\n" +
	"/help, /quit, /pm, /me, /nick, /welcome, /userlist, /closeServer"

// helpTopics maps a command name, without its marker, to its description.
var helpTopics = map[string]string{
	"help":        "/help: Displays help messages like this one :)",
	"quit":        "/quit: disconnects you from the server",
	"pm":          "/pm {recipient} message...: Sends message to recipient",
	"me":          "/me message...: Displays message after your name, for messages like \"Example is hungry\" from \"/me is hungry\"",
	"nick":        "/nick newNick: Changes your nickname",
	"welcome":     "/welcome: Displays server welcome message\n/welcome message...: Sets the server welcome message",
	"userlist":    "/userlist: Displays a list of the online users",
	"closeServer": "/closeServer: Shuts down the server",
}

// handleLine routes one frame from an Active session. The returned error is
// always a send failure on s itself.
func (srv *Server) handleLine(s *Session, line string) error {
	if protocol.IsCommand(line) {
		return srv.handleCommand(s, line)
	}
	msg := fmt.Sprintf("%s: %s", s.Name(), line)
	if !protocol.Fits(msg) {
		return s.Send(tooLong)
	}
	srv.hub.post(s, msg)
	return nil
}

func (srv *Server) handleCommand(s *Session, line string) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return s.Send("Invalid or unknown command")
	}

	switch args[0] {
	case "/help":
		return srv.handleHelp(s, args)
	case "/quit":
		s.Close(quitReason)
		return nil
	case "/pm":
		return srv.handlePrivate(s, line, args)
	case "/me":
		return srv.handleMe(s, line)
	case "/nick":
		return srv.handleNick(s, args)
	case "/welcome":
		return srv.handleWelcome(s, line)
	case "/userlist":
		return srv.handleUserList(s)
	case "/closeServer":
		s.log.Info("shutdown requested", "name", s.Name())
		srv.Shutdown(shutdownReason)
		return nil
	default:
		return s.Send("Invalid or unknown command")
	}
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (srv *Server) handleHelp(s *Session, args []string) error {
	if len(args) < 2 {
		return s.Send(helpIndex)
	}
	topic := strings.TrimPrefix(args[1], protocol.CommandMarker)
	if text, ok := helpTopics[topic]; ok {
		return s.Send(text)
	}
	return s.Send("Invalid specifier, no help article found.")
}

// handlePrivate implements /pm target message...
func (srv *Server) handlePrivate(s *Session, line string, args []string) error {
	switch {
	case len(args) < 2:
		return s.Send("Must provide target")
	case len(args) < 3:
		return s.Send("Must provide message")
	}

	target := args[1]
	name := s.Name()
	if target == name {
		return s.Send("Can't send message to self!")
	}

	msg := fmt.Sprintf("%s -> %s: %s", name, target, trailing(line, 2))
	if !protocol.Fits(msg) {
		return s.Send(tooLong)
	}
	_, err := srv.hub.sendByName(s, target, msg)
	return err
}

// handleMe implements /me message..., shown to everyone including the sender.
func (srv *Server) handleMe(s *Session, line string) error {
	content := trailing(line, 1)
	if content == "" {
		return s.Send("Must provide message")
	}
	msg := fmt.Sprintf("%s %s", s.Name(), content)
	if !protocol.Fits(msg) {
		return s.Send(tooLong)
	}
	srv.hub.emote(s, msg)
	return nil
}

func (srv *Server) handleNick(s *Session, args []string) error {
	if len(args) < 2 {
		return s.Send("Must provide a name")
	}
	srv.hub.rename(s, args[1])
	return nil
}

// handleWelcome shows the welcome text, replacing it first when text follows
// the command.
func (srv *Server) handleWelcome(s *Session, line string) error {
	text := trailing(line, 1)
	if text == "" {
		return s.Send(srv.hub.welcomeText())
	}
	stored := srv.hub.setWelcome(text)
	s.log.Info("welcome message changed", "name", s.Name())
	return s.Send(stored)
}

func (srv *Server) handleUserList(s *Session) error {
	if err := s.Send("Online users:"); err != nil {
		return err
	}
	return s.Send(srv.hub.listNames())
}

// trailing returns line with its first n whitespace-separated tokens and the
// whitespace that follows them removed. Spacing inside the remainder is kept.
func trailing(line string, n int) string {
	rest := line
	for i := 0; i < n; i++ {
		rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
		end := strings.IndexFunc(rest, unicode.IsSpace)
		if end < 0 {
			return ""
		}
		rest = rest[end:]
	}
	return strings.TrimLeftFunc(rest, unicode.IsSpace)
}
