// Package rsyncsession implements the rsync daemon dialogue as a
// sans-I/O state machine: callers append received bytes to In, call
// Parse until it stops producing events, and drain Out to their own
// transport. The session never touches a socket.
package rsyncsession

import (
	"errors"
	"fmt"

	"github.com/gokrazy/rsyncproto"
	"github.com/gokrazy/rsyncproto/internal/log"
	"github.com/gokrazy/rsyncproto/internal/rsyncopts"
	"github.com/gokrazy/rsyncproto/internal/rsyncwire"
)

// State identifies which subset of the session's methods is currently
// valid. Transitions happen inside Parse and inside the action methods.
type State int

const (
	StateInitial State = iota
	StateClientReadProtocol
	StateClientLogin
	StateDaemonReadVersion
	StateDaemonServerReadModule
	StateDaemonServerNegotiateModule
	StateDaemonServerCheckAuth
	StateDaemonServerReadCommand
	StateDaemonServerSend
	StateDaemonServerRun
	StateReceiver
	StateFatal
)

var stateNames = map[State]string{
	StateInitial:                     "Initial",
	StateClientReadProtocol:          "ClientReadProtocol",
	StateClientLogin:                 "ClientLogin",
	StateDaemonReadVersion:           "DaemonReadVersion",
	StateDaemonServerReadModule:      "DaemonServerReadModule",
	StateDaemonServerNegotiateModule: "DaemonServerNegotiateModule",
	StateDaemonServerCheckAuth:       "DaemonServerCheckAuth",
	StateDaemonServerReadCommand:     "DaemonServerReadCommand",
	StateDaemonServerSend:            "DaemonServerSend",
	StateDaemonServerRun:             "DaemonServerRun",
	StateReceiver:                    "Receiver",
	StateFatal:                       "Fatal",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// EventKind tags the payload of an Event. The zero value EventNone is
// returned by Parse when the read buffer does not yet hold a complete
// message.
type EventKind int

const (
	EventNone EventKind = iota
	EventProtocol
	EventModule
	EventAuth
	EventAuthReqd
	EventOK
	EventExit
	EventInfo
	EventCommand
	EventError
)

var eventNames = map[EventKind]string{
	EventNone:     "NONE",
	EventProtocol: "PROTOCOL",
	EventModule:   "MODULE",
	EventAuth:     "AUTH",
	EventAuthReqd: "AUTHREQD",
	EventOK:       "OK",
	EventExit:     "EXIT",
	EventInfo:     "INFO",
	EventCommand:  "COMMAND",
	EventError:    "ERROR",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// An Event is one message surfaced by Parse. Which payload fields are
// set depends on the Kind:
//
//	PROTOCOL  Protocol (the negotiated version)
//	MODULE    Text (the requested module name, "" or "#list" for a listing)
//	AUTH      User, Text (the client's passhash)
//	AUTHREQD  Text (the server's challenge salt)
//	INFO      Text (one motd or informational line)
//	COMMAND   Argv (the client's command line)
//	ERROR     Text
type Event struct {
	Kind     EventKind
	Protocol int32
	Text     string
	User     string
	Argv     []string
}

// A Session speaks one end of the rsync daemon dialogue. It is not safe
// for concurrent use; a caller may own many sessions as long as each is
// driven from a single goroutine at a time.
type Session struct {
	In  *rsyncwire.Buffer // bytes received from the peer
	Out *rsyncwire.Buffer // bytes to be sent to the peer

	// Opts starts out as the client's parsed command line; on the
	// server it is replaced by the options parsed from the COMMAND
	// message.
	Opts *rsyncopts.Options

	logger log.Logger

	state State
	stack []State

	protocol      int32  // negotiated, valid once PROTOCOL was emitted
	remoteVersion string // as advertised, e.g. "30.0"

	module    string
	username  string
	password  string
	challenge string

	// Multiplexed reads were mandatory below protocol 23. The
	// supported version range starts at 29, but the flag is tracked so
	// that transports can consult it.
	readMplex bool
}

// An Option changes the construction of a Session.
type Option interface {
	applySession(*Session)
}

type sessionOptionFunc func(*Session)

func (f sessionOptionFunc) applySession(s *Session) { f(s) }

// WithLogger specifies the logger for protocol milestones. The default
// logs to the log package's standard logger.
func WithLogger(logger log.Logger) Option {
	return sessionOptionFunc(func(s *Session) {
		s.logger = logger
	})
}

// WithCredentials arranges for the client to answer an auth challenge
// without surfacing an AUTHREQD event.
func WithCredentials(username, password string) Option {
	return sessionOptionFunc(func(s *Session) {
		s.username = username
		s.password = password
	})
}

func newSession(opts ...Option) *Session {
	s := &Session{
		In:     &rsyncwire.Buffer{},
		Out:    &rsyncwire.Buffer{},
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt.applySession(s)
	}
	return s
}

// State returns the session's current state.
func (s *Session) State() State { return s.state }

// Protocol returns the negotiated protocol version. It is zero before
// the PROTOCOL event.
func (s *Session) Protocol() int32 { return s.protocol }

// RemoteVersion returns the version string the peer advertised.
func (s *Session) RemoteVersion() string { return s.remoteVersion }

// Module returns the module name requested by the client (server side).
func (s *Session) Module() string { return s.module }

// Challenge returns the auth salt in effect, if any.
func (s *Session) Challenge() string { return s.challenge }

// MultiplexedReads reports whether incoming bytes use the multiplex
// framing.
func (s *Session) MultiplexedReads() bool { return s.readMplex }

func (s *Session) pushState(next State) {
	s.stack = append(s.stack, s.state)
	s.state = next
}

func (s *Session) popState() error {
	if len(s.stack) == 0 {
		cur := s.state
		s.state = StateFatal
		return fmt.Errorf("state stack underflow in %v", cur)
	}
	s.state = s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return nil
}

// fatal records msg as the session's terminal condition and returns the
// corresponding ERROR event.
func (s *Session) fatal(format string, args ...interface{}) Event {
	s.state = StateFatal
	return Event{Kind: EventError, Text: fmt.Sprintf(format, args...)}
}

type parseFunc func(*Session) (Event, bool, error)

// parseFuncs dispatches Parse by state. States without an entry have no
// inbound messages: their progress comes from action methods.
var parseFuncs = map[State]parseFunc{
	StateClientReadProtocol:      (*Session).parseServerGreeting,
	StateClientLogin:             (*Session).parseLoginLine,
	StateDaemonReadVersion:       (*Session).parseClientGreeting,
	StateDaemonServerReadModule:  (*Session).parseModuleLine,
	StateDaemonServerCheckAuth:   (*Session).parseAuthLine,
	StateDaemonServerReadCommand: (*Session).parseCommand,
}

// Parse consumes the next complete message from In and returns the
// resulting event. It returns a zero Event when more bytes are needed
// or when the current state expects no inbound messages; the read
// cursor is then unchanged so the caller can append input and retry.
// Messages that need no caller attention (e.g. an auth challenge
// answered from stored credentials) are consumed silently and parsing
// continues with the following message.
func (s *Session) Parse() (Event, error) {
	for {
		if s.state == StateFatal {
			return Event{}, fmt.Errorf("session is in fatal state")
		}
		parse, ok := parseFuncs[s.state]
		if !ok {
			// No inbound messages are defined for this state: progress
			// comes from the caller's action methods.
			return Event{}, nil
		}
		ev, again, err := parse(s)
		if err != nil {
			if errors.Is(err, rsyncwire.ErrShortRead) {
				return Event{}, nil
			}
			return Event{}, err
		}
		if again {
			continue
		}
		s.In.Discard()
		return ev, nil
	}
}

func (s *Session) localVersion() int32 {
	if s.Opts != nil {
		return int32(s.Opts.Protocol())
	}
	return rsyncproto.ProtocolVersion
}
