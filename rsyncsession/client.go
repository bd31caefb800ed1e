package rsyncsession

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gokrazy/rsyncproto/internal/rsyncchecksum"
	"github.com/gokrazy/rsyncproto/internal/rsyncopts"
	"github.com/google/shlex"
)

// rsync/clientserver.c:start_inband_exchange
var greetingRe = regexp.MustCompile(`^@RSYNCD: ([0-9]+)\.([-0-9]+)$`)

// parseGreeting negotiates the protocol version from the peer's banner
// line. A non-zero minor marks a pre-release whose final protocol is
// not yet frozen, so the effective remote version is one lower.
func (s *Session) parseGreeting(line string) (Event, error) {
	m := greetingRe.FindStringSubmatch(line)
	if m == nil {
		return s.fatal("invalid greeting: got %q", line), nil
	}
	major, err := strconv.Atoi(m[1])
	if err != nil {
		return s.fatal("invalid greeting: got %q", line), nil
	}
	minor, err := strconv.Atoi(m[2])
	if err != nil {
		return s.fatal("invalid greeting: got %q", line), nil
	}
	s.remoteVersion = m[1] + "." + m[2]
	remote := int32(major)
	if minor != 0 {
		remote = int32(major) - 1
	}
	negotiated := s.localVersion()
	if remote < negotiated {
		negotiated = remote
	}
	if negotiated < 29 {
		return s.fatal("remote protocol version %d too old (29 required)", negotiated), nil
	}
	s.protocol = negotiated
	s.logger.Printf("protocol versions: remote=%s, negotiated=%d", s.remoteVersion, s.protocol)
	return Event{Kind: EventProtocol, Protocol: s.protocol}, nil
}

// StartDaemonClient starts a session that connects to an rsync daemon,
// requesting the named module. args is the rsync command line
// determining which options will be in effect for the transfer.
//
// rsync/clientserver.c:start_socket_client
func StartDaemonClient(args []string, module string, opts ...Option) (*Session, error) {
	pc, err := rsyncopts.ParseArguments(args)
	if err != nil {
		return nil, err
	}
	s := newSession(opts...)
	s.Opts = pc.Options
	s.module = module
	s.state = StateClientReadProtocol
	return s, nil
}

func (s *Session) parseServerGreeting() (Event, bool, error) {
	line, err := s.In.ReadLine()
	if err != nil {
		return Event{}, false, err
	}
	ev, err := s.parseGreeting(line)
	if err != nil || ev.Kind == EventError {
		return ev, false, err
	}
	// Answer with our greeting and the module request.
	s.Out.WriteString(fmt.Sprintf("@RSYNCD: %d.0\n", s.protocol))
	s.Out.WriteString(s.module + "\n")
	s.state = StateClientLogin
	return ev, false, nil
}

// parseLoginLine dispatches one line of the server's pre-binary chatter:
// auth challenges, the message of the day, module listings and the
// final OK/EXIT/error verdict.
func (s *Session) parseLoginLine() (Event, bool, error) {
	line, err := s.In.ReadLine()
	if err != nil {
		return Event{}, false, err
	}
	switch {
	case strings.HasPrefix(line, "@RSYNCD: AUTHREQD "):
		salt := strings.TrimPrefix(line, "@RSYNCD: AUTHREQD ")
		s.challenge = salt
		if s.username != "" && s.password != "" {
			hash := rsyncchecksum.PassHash(s.password, salt, s.protocol)
			s.Out.WriteString(s.username + " " + hash + "\n")
			return Event{}, true, nil
		}
		return Event{Kind: EventAuthReqd, Text: salt}, false, nil

	case line == "@RSYNCD: OK":
		s.state = StateReceiver
		return Event{Kind: EventOK}, false, nil

	case line == "@RSYNCD: EXIT":
		return Event{Kind: EventExit}, false, nil

	case strings.HasPrefix(line, "@ERROR: "):
		msg := strings.TrimPrefix(line, "@ERROR: ")
		return s.fatal("Protocol error during login: %s", msg), false, nil

	default:
		return Event{Kind: EventInfo, Text: line}, false, nil
	}
}

// Authenticate answers a previously surfaced AUTHREQD event. It is only
// needed when the credentials were not given to StartDaemonClient.
func (s *Session) Authenticate(username, password string) error {
	if s.state != StateClientLogin {
		return fmt.Errorf("cannot authenticate in state %v", s.state)
	}
	if s.challenge == "" {
		return fmt.Errorf("no auth challenge outstanding")
	}
	hash := rsyncchecksum.PassHash(password, s.challenge, s.protocol)
	s.Out.WriteString(username + " " + hash + "\n")
	return nil
}

// StartRemoteSender hands the transfer command to the remote side:
// argv[0] (the program name) is dropped and the remaining arguments are
// written NUL-separated with a double NUL terminator for protocol 30
// and newer, newline-separated below.
//
// rsync/main.c:client_run
func (s *Session) StartRemoteSender(argv []string) error {
	if s.state != StateReceiver {
		return fmt.Errorf("cannot send transfer command in state %v", s.state)
	}
	if len(argv) > 0 {
		argv = argv[1:]
	}
	term := byte('\n')
	if s.protocol >= 30 {
		term = 0
	}
	for _, arg := range argv {
		s.Out.WriteString(arg)
		s.Out.WriteByte(term)
	}
	s.Out.WriteByte(term)
	if s.protocol <= 22 {
		s.readMplex = true
	}
	return nil
}

// StartRemoteSenderCommand is StartRemoteSender for a command given as
// a single string, split like a POSIX shell would.
func (s *Session) StartRemoteSenderCommand(cmd string) error {
	argv, err := shlex.Split(cmd)
	if err != nil {
		return fmt.Errorf("splitting %q: %v", cmd, err)
	}
	return s.StartRemoteSender(argv)
}
