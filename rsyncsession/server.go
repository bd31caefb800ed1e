package rsyncsession

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/gokrazy/rsyncproto/internal/rsyncopts"
	"github.com/gokrazy/rsyncproto/internal/rsyncwire"
)

// A Module is one directory tree exported by a daemon.
type Module struct {
	Name    string   `toml:"name"`
	Path    string   `toml:"path"`
	Comment string   `toml:"comment"`
	ACL     []string `toml:"acl"`
}

// StartDaemonServer starts the server end of a daemon dialogue. The
// greeting is written immediately; the first Parse call then consumes
// the client's greeting.
//
// rsync/clientserver.c:start_daemon
func StartDaemonServer(opts ...Option) *Session {
	s := newSession(opts...)
	s.Out.WriteString(fmt.Sprintf("@RSYNCD: %d.0\n", s.localVersion()))
	s.state = StateDaemonServerReadModule
	s.pushState(StateDaemonReadVersion)
	return s
}

func (s *Session) parseClientGreeting() (Event, bool, error) {
	line, err := s.In.ReadLine()
	if err != nil {
		return Event{}, false, err
	}
	ev, err := s.parseGreeting(line)
	if err != nil || ev.Kind == EventError {
		return ev, false, err
	}
	if err := s.popState(); err != nil {
		return Event{}, false, err
	}
	return ev, false, nil
}

func (s *Session) parseModuleLine() (Event, bool, error) {
	line, err := s.In.ReadLine()
	if err != nil {
		return Event{}, false, err
	}
	s.module = strings.TrimSpace(line)
	s.state = StateDaemonServerNegotiateModule
	return Event{Kind: EventModule, Text: s.module}, false, nil
}

// SendMotd writes the message of the day. Lines starting with @ are
// prefixed with a space so that clients cannot mistake them for
// protocol markers.
func (s *Session) SendMotd(motd string) {
	for _, line := range strings.Split(strings.TrimSuffix(motd, "\n"), "\n") {
		if strings.HasPrefix(line, "@") {
			line = " " + line
		}
		s.Out.WriteString(line + "\n")
	}
}

// SendModuleList writes one name/comment line per module, then the EXIT
// marker that ends the dialogue.
//
// rsync/clientserver.c:send_listing
func (s *Session) SendModuleList(modules []Module) {
	for _, mod := range modules {
		comment := mod.Comment
		if comment == "" {
			comment = mod.Name
		}
		s.Out.WriteString(fmt.Sprintf("%s\t%s\n", mod.Name, comment))
	}
	s.SendExit()
}

// SendAuthChallenge asks the client to authenticate. Parse next
// consumes the client's "user passhash" reply and surfaces it as an
// AUTH event; the module dialogue resumes afterwards.
func (s *Session) SendAuthChallenge(salt string) error {
	if s.state != StateDaemonServerNegotiateModule {
		return fmt.Errorf("cannot send auth challenge in state %v", s.state)
	}
	if strings.ContainsRune(salt, '\n') {
		return fmt.Errorf("auth challenge must not contain a newline")
	}
	s.challenge = salt
	s.Out.WriteString("@RSYNCD: AUTHREQD " + salt + "\n")
	s.pushState(StateDaemonServerCheckAuth)
	return nil
}

func (s *Session) parseAuthLine() (Event, bool, error) {
	line, err := s.In.ReadLine()
	if err != nil {
		return Event{}, false, err
	}
	user, hash, ok := strings.Cut(line, " ")
	if !ok || user == "" || hash == "" {
		return s.fatal("invalid auth response: %q", line), false, nil
	}
	if err := s.popState(); err != nil {
		return Event{}, false, err
	}
	return Event{Kind: EventAuth, User: user, Text: hash}, false, nil
}

// SendOK accepts the module request; the client's command follows.
func (s *Session) SendOK() error {
	if s.state != StateDaemonServerNegotiateModule {
		return fmt.Errorf("cannot send OK in state %v", s.state)
	}
	s.Out.WriteString("@RSYNCD: OK\n")
	s.state = StateDaemonServerReadCommand
	return nil
}

// SendError rejects the client with msg and ends the session.
func (s *Session) SendError(msg string) {
	s.Out.WriteString("@ERROR: " + msg + "\n")
	s.state = StateFatal
}

// SendExit ends the dialogue gracefully, e.g. after a module listing.
func (s *Session) SendExit() {
	s.Out.WriteString("@RSYNCD: EXIT\n")
}

// parseCommand reads the client's argv: elements separated by a single
// terminator, ended by a double terminator. NUL for protocol 30 and
// newer, newline below.
//
// rsync/clientserver.c:rsync_module
func (s *Session) parseCommand() (Event, bool, error) {
	term := byte('\n')
	if s.protocol >= 30 {
		term = 0
	}
	data := s.In.Bytes()
	idx := bytes.Index(data, []byte{term, term})
	if idx == -1 {
		return Event{}, false, rsyncwire.ErrShortRead
	}
	var argv []string
	if idx > 0 {
		argv = strings.Split(string(data[:idx]), string(term))
	}
	s.In.SetPos(s.In.Pos() + idx + 2)

	pc, err := rsyncopts.ParseArguments(argv)
	if err != nil {
		return s.fatal("Client sent invalid command: %s", strings.Join(argv, " ")), false, nil
	}
	s.Opts = pc.Options
	if s.Opts.Sender() {
		s.state = StateDaemonServerSend
	} else {
		s.state = StateDaemonServerRun
	}
	s.logger.Printf("module %q command: %q", s.module, argv)
	return Event{Kind: EventCommand, Argv: argv}, false, nil
}
