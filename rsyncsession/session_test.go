package rsyncsession_test

import (
	"net"
	"strings"
	"testing"

	"github.com/gokrazy/rsyncproto"
	"github.com/gokrazy/rsyncproto/internal/rsyncchecksum"
	"github.com/gokrazy/rsyncproto/internal/testlogger"
	"github.com/gokrazy/rsyncproto/rsyncflist"
	"github.com/gokrazy/rsyncproto/rsyncsession"
	"github.com/google/go-cmp/cmp"
)

// drain parses until the session runs out of complete messages.
func drain(t *testing.T, s *rsyncsession.Session) []rsyncsession.Event {
	t.Helper()
	var events []rsyncsession.Event
	for {
		ev, err := s.Parse()
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if ev.Kind == rsyncsession.EventNone {
			return events
		}
		events = append(events, ev)
		if ev.Kind == rsyncsession.EventError ||
			ev.Kind == rsyncsession.EventExit {
			return events
		}
	}
}

func TestDaemonClientHandshake(t *testing.T) {
	s, err := rsyncsession.StartDaemonClient([]string{"-aH"}, "AllTheData",
		rsyncsession.WithLogger(testlogger.New(t)))
	if err != nil {
		t.Fatal(err)
	}

	s.In.Append([]byte("@RSYNCD: 30.0\n@RSYNCD: OK\n"))
	got := drain(t, s)
	want := []rsyncsession.Event{
		{Kind: rsyncsession.EventProtocol, Protocol: 30},
		{Kind: rsyncsession.EventOK},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events: diff (-want +got):\n%s", diff)
	}
	if got, want := s.Out.String(), "@RSYNCD: 30.0\nAllTheData\n"; got != want {
		t.Errorf("write buffer = %q, want %q", got, want)
	}
	if got, want := s.State(), rsyncsession.StateReceiver; got != want {
		t.Errorf("state = %v, want %v", got, want)
	}
}

func TestDaemonClientAuth(t *testing.T) {
	s, err := rsyncsession.StartDaemonClient([]string{"-aH"}, "AllTheData",
		rsyncsession.WithCredentials("user", "pass"))
	if err != nil {
		t.Fatal(err)
	}

	s.In.Append([]byte("@RSYNCD: 30.0\n@RSYNCD: AUTHREQD qwerty12345\n@RSYNCD: OK\n"))
	got := drain(t, s)
	want := []rsyncsession.Event{
		{Kind: rsyncsession.EventProtocol, Protocol: 30},
		{Kind: rsyncsession.EventOK},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events: diff (-want +got):\n%s", diff)
	}
	const wantOut = "@RSYNCD: 30.0\nAllTheData\nuser Zp77fT8TRrZ+9A9JFNT/UA\n"
	if got := s.Out.String(); got != wantOut {
		t.Errorf("write buffer = %q, want %q", got, wantOut)
	}
}

func TestDaemonClientDeferredAuth(t *testing.T) {
	s, err := rsyncsession.StartDaemonClient([]string{"-aH"}, "AllTheData")
	if err != nil {
		t.Fatal(err)
	}

	s.In.Append([]byte("@RSYNCD: 30.0\n@RSYNCD: AUTHREQD qwerty12345\n"))
	got := drain(t, s)
	want := []rsyncsession.Event{
		{Kind: rsyncsession.EventProtocol, Protocol: 30},
		{Kind: rsyncsession.EventAuthReqd, Text: "qwerty12345"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events: diff (-want +got):\n%s", diff)
	}
	if err := s.Authenticate("user", "pass"); err != nil {
		t.Fatal(err)
	}
	if got, want := s.Out.String(), "@RSYNCD: 30.0\nAllTheData\nuser Zp77fT8TRrZ+9A9JFNT/UA\n"; got != want {
		t.Errorf("write buffer = %q, want %q", got, want)
	}
}

func TestDaemonClientMotdAndExit(t *testing.T) {
	s, err := rsyncsession.StartDaemonClient([]string{"-aH"}, "")
	if err != nil {
		t.Fatal(err)
	}

	s.In.Append([]byte("@RSYNCD: 31.0\n" +
		"Welcome to the data mirror.\n" +
		" @ooh, a decoy marker\n" +
		"Be gentle.\n" +
		"AllTheData\tAllTheData\n" +
		"@RSYNCD: EXIT\n"))
	got := drain(t, s)
	want := []rsyncsession.Event{
		{Kind: rsyncsession.EventProtocol, Protocol: 31},
		{Kind: rsyncsession.EventInfo, Text: "Welcome to the data mirror."},
		{Kind: rsyncsession.EventInfo, Text: " @ooh, a decoy marker"},
		{Kind: rsyncsession.EventInfo, Text: "Be gentle."},
		{Kind: rsyncsession.EventInfo, Text: "AllTheData\tAllTheData"},
		{Kind: rsyncsession.EventExit},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events: diff (-want +got):\n%s", diff)
	}
}

func TestDaemonClientRejected(t *testing.T) {
	s, err := rsyncsession.StartDaemonClient([]string{"-aH"}, "nonex")
	if err != nil {
		t.Fatal(err)
	}

	s.In.Append([]byte("@RSYNCD: 31.0\n@ERROR: Unknown module \"nonex\"\n"))
	got := drain(t, s)
	want := []rsyncsession.Event{
		{Kind: rsyncsession.EventProtocol, Protocol: 31},
		{Kind: rsyncsession.EventError, Text: `Protocol error during login: Unknown module "nonex"`},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events: diff (-want +got):\n%s", diff)
	}
	if got, want := s.State(), rsyncsession.StateFatal; got != want {
		t.Errorf("state = %v, want %v", got, want)
	}
	if _, err := s.Parse(); err == nil {
		t.Errorf("Parse on a fatal session succeeded unexpectedly")
	}
}

func TestProtocolNegotiation(t *testing.T) {
	for _, tt := range []struct {
		banner string
		want   rsyncsession.Event
	}{
		{
			banner: "@RSYNCD: 31.0\n",
			want:   rsyncsession.Event{Kind: rsyncsession.EventProtocol, Protocol: 31},
		},
		{
			// a pre-release of 32 still speaks 31
			banner: "@RSYNCD: 32.-117\n",
			want:   rsyncsession.Event{Kind: rsyncsession.EventProtocol, Protocol: 31},
		},
		{
			banner: "@RSYNCD: 40.5\n",
			want:   rsyncsession.Event{Kind: rsyncsession.EventProtocol, Protocol: 31},
		},
		{
			banner: "@RSYNCD: 27.0\n",
			want: rsyncsession.Event{Kind: rsyncsession.EventError,
				Text: "remote protocol version 27 too old (29 required)"},
		},
		{
			// pre-release of 29 falls below the floor
			banner: "@RSYNCD: 29.-118\n",
			want: rsyncsession.Event{Kind: rsyncsession.EventError,
				Text: "remote protocol version 28 too old (29 required)"},
		},
		{
			banner: "@RSYNCD: OK\n",
			want: rsyncsession.Event{Kind: rsyncsession.EventError,
				Text: `invalid greeting: got "@RSYNCD: OK"`},
		},
	} {
		t.Run(strings.TrimSpace(tt.banner), func(t *testing.T) {
			s, err := rsyncsession.StartDaemonClient([]string{"-aH"}, "mod")
			if err != nil {
				t.Fatal(err)
			}
			s.In.Append([]byte(tt.banner))
			got, err := s.Parse()
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("event: diff (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDaemonServer(t *testing.T) {
	s := rsyncsession.StartDaemonServer(rsyncsession.WithLogger(testlogger.New(t)))
	if got, want := s.Out.String(), "@RSYNCD: 31.0\n"; got != want {
		t.Fatalf("greeting = %q, want %q", got, want)
	}
	s.Out.Clear()

	s.In.Append([]byte("@RSYNCD: 31.0\nAllTheData\n"))
	got := drain(t, s)
	want := []rsyncsession.Event{
		{Kind: rsyncsession.EventProtocol, Protocol: 31},
		{Kind: rsyncsession.EventModule, Text: "AllTheData"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("events: diff (-want +got):\n%s", diff)
	}

	if err := s.SendAuthChallenge("saltsalt"); err != nil {
		t.Fatal(err)
	}
	if got, want := s.Out.String(), "@RSYNCD: AUTHREQD saltsalt\n"; got != want {
		t.Errorf("challenge = %q, want %q", got, want)
	}
	s.Out.Clear()

	hash := rsyncchecksum.PassHash("pass", "saltsalt", s.Protocol())
	s.In.Append([]byte("user " + hash + "\n"))
	ev, err := s.Parse()
	if err != nil {
		t.Fatal(err)
	}
	wantAuth := rsyncsession.Event{Kind: rsyncsession.EventAuth, User: "user", Text: hash}
	if diff := cmp.Diff(wantAuth, ev); diff != "" {
		t.Fatalf("auth event: diff (-want +got):\n%s", diff)
	}

	if err := s.SendOK(); err != nil {
		t.Fatal(err)
	}
	if got, want := s.Out.String(), "@RSYNCD: OK\n"; got != want {
		t.Errorf("after SendOK, write buffer = %q, want %q", got, want)
	}

	s.In.Append([]byte("--server\x00--sender\x00-logDtpr\x00.\x00data/\x00\x00"))
	ev, err = s.Parse()
	if err != nil {
		t.Fatal(err)
	}
	wantCmd := rsyncsession.Event{
		Kind: rsyncsession.EventCommand,
		Argv: []string{"--server", "--sender", "-logDtpr", ".", "data/"},
	}
	if diff := cmp.Diff(wantCmd, ev); diff != "" {
		t.Fatalf("command event: diff (-want +got):\n%s", diff)
	}
	if got, want := s.State(), rsyncsession.StateDaemonServerSend; got != want {
		t.Errorf("state = %v, want %v", got, want)
	}
	if !s.Opts.Sender() || !s.Opts.Recursive() {
		t.Errorf("command options not applied: %+v", s.Opts)
	}
}

func TestDaemonServerListing(t *testing.T) {
	s := rsyncsession.StartDaemonServer()
	s.Out.Clear()

	s.In.Append([]byte("@RSYNCD: 31.0\n#list\n"))
	got := drain(t, s)
	want := []rsyncsession.Event{
		{Kind: rsyncsession.EventProtocol, Protocol: 31},
		{Kind: rsyncsession.EventModule, Text: "#list"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("events: diff (-want +got):\n%s", diff)
	}

	s.SendMotd("hello\n@RSYNCD: fake marker")
	s.SendModuleList([]rsyncsession.Module{
		{Name: "AllTheData", Path: "/srv/data", Comment: "all the data"},
		{Name: "backup", Path: "/srv/backup"},
	})
	const wantOut = "hello\n" +
		" @RSYNCD: fake marker\n" +
		"AllTheData\tall the data\n" +
		"backup\tbackup\n" +
		"@RSYNCD: EXIT\n"
	if got := s.Out.String(); got != wantOut {
		t.Errorf("write buffer = %q, want %q", got, wantOut)
	}
}

func TestDaemonServerInvalidCommand(t *testing.T) {
	s := rsyncsession.StartDaemonServer()
	s.In.Append([]byte("@RSYNCD: 31.0\nAllTheData\n"))
	drain(t, s)
	if err := s.SendOK(); err != nil {
		t.Fatal(err)
	}

	s.In.Append([]byte("--server\x00--frobnicate\x00\x00"))
	ev, err := s.Parse()
	if err != nil {
		t.Fatal(err)
	}
	want := rsyncsession.Event{
		Kind: rsyncsession.EventError,
		Text: "Client sent invalid command: --server --frobnicate",
	}
	if diff := cmp.Diff(want, ev); diff != "" {
		t.Errorf("event: diff (-want +got):\n%s", diff)
	}
	if got, want := s.State(), rsyncsession.StateFatal; got != want {
		t.Errorf("state = %v, want %v", got, want)
	}
}

func TestDaemonServerNewlineCommand(t *testing.T) {
	s := rsyncsession.StartDaemonServer()
	s.In.Append([]byte("@RSYNCD: 29.0\ndata\n"))
	drain(t, s)
	if err := s.SendOK(); err != nil {
		t.Fatal(err)
	}

	s.In.Append([]byte("--server\n--sender\n-r\n.\ndata/\n\n"))
	ev, err := s.Parse()
	if err != nil {
		t.Fatal(err)
	}
	want := rsyncsession.Event{
		Kind: rsyncsession.EventCommand,
		Argv: []string{"--server", "--sender", "-r", ".", "data/"},
	}
	if diff := cmp.Diff(want, ev); diff != "" {
		t.Errorf("event: diff (-want +got):\n%s", diff)
	}
}

func TestStartRemoteSender(t *testing.T) {
	for _, tt := range []struct {
		banner string
		want   string
	}{
		{
			banner: "@RSYNCD: 30.0\n@RSYNCD: OK\n",
			want:   "--server\x00--sender\x00-r\x00.\x00data/\x00\x00",
		},
		{
			banner: "@RSYNCD: 29.0\n@RSYNCD: OK\n",
			want:   "--server\n--sender\n-r\n.\ndata/\n\n",
		},
	} {
		s, err := rsyncsession.StartDaemonClient([]string{"-r"}, "data")
		if err != nil {
			t.Fatal(err)
		}
		s.In.Append([]byte(tt.banner))
		drain(t, s)
		s.Out.Clear()

		if err := s.StartRemoteSenderCommand("rsync --server --sender -r . data/"); err != nil {
			t.Fatal(err)
		}
		if got := s.Out.String(); got != tt.want {
			t.Errorf("protocol %d: write buffer = %q, want %q", s.Protocol(), got, tt.want)
		}
		if s.MultiplexedReads() {
			t.Errorf("protocol %d: multiplexed reads enabled unexpectedly", s.Protocol())
		}
	}
}

// TestFileListRoundTrip drives a full daemon dialogue between a server
// and a client session, then sends a file list from the server's write
// buffer into the client's read buffer.
func TestFileListRoundTrip(t *testing.T) {
	srv := rsyncsession.StartDaemonServer(rsyncsession.WithLogger(testlogger.New(t)))
	cli, err := rsyncsession.StartDaemonClient([]string{"-logDtpr"}, "AllTheData",
		rsyncsession.WithLogger(testlogger.New(t)))
	if err != nil {
		t.Fatal(err)
	}
	relay := func(from, to *rsyncsession.Session) {
		t.Helper()
		if from.Out.Len() == 0 {
			t.Fatal("nothing to relay")
		}
		to.In.Append(from.Out.Bytes())
		from.Out.Clear()
	}

	relay(srv, cli)
	drain(t, cli) // greeting
	relay(cli, srv)
	drain(t, srv) // greeting, module request
	if err := srv.SendOK(); err != nil {
		t.Fatal(err)
	}
	relay(srv, cli)
	drain(t, cli) // OK
	if err := cli.StartRemoteSenderCommand("rsync --server --sender -logDtpr . data/"); err != nil {
		t.Fatal(err)
	}
	relay(cli, srv)
	ev, err := srv.Parse()
	if err != nil {
		t.Fatal(err)
	}
	if ev.Kind != rsyncsession.EventCommand {
		t.Fatalf("event = %v, want COMMAND", ev.Kind)
	}
	if got, want := srv.State(), rsyncsession.StateDaemonServerSend; got != want {
		t.Fatalf("server state = %v, want %v", got, want)
	}
	if got, want := cli.State(), rsyncsession.StateReceiver; got != want {
		t.Fatalf("client state = %v, want %v", got, want)
	}

	want := []*rsyncflist.Entry{
		{
			Name:  ".",
			Mode:  rsyncproto.S_IFDIR | 0o755,
			Size:  4096,
			Mtime: 1700000000,
			Flags: rsyncflist.FlagTopDir | rsyncflist.FlagContentDir,
		},
		{
			Name:      "config.txt",
			Mode:      rsyncproto.S_IFREG | 0o644,
			Size:      2048,
			Mtime:     1700000001,
			MtimeNsec: 500000000,
			Uid:       1000,
			UserName:  "michael",
			Gid:       1000,
			GroupName: "users",
		},
		{
			Name:    "latest",
			Mode:    rsyncproto.S_IFLNK | 0o777,
			Size:    10,
			Symlink: "config.txt",
			Mtime:   1700000001,
			Uid:     1000,
			Gid:     1000,
		},
	}
	enc, err := srv.FileListEncoder(0)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range want {
		if err := enc.WriteEntry(e); err != nil {
			t.Fatalf("WriteEntry(%s): %v", e.Name, err)
		}
	}
	enc.WriteEnd(0)

	relay(srv, cli)
	dec, err := cli.FileListDecoder(0)
	if err != nil {
		t.Fatal(err)
	}
	var got []*rsyncflist.Entry
	for {
		e, err := dec.ReadEntry()
		if err != nil {
			t.Fatalf("ReadEntry: %v", err)
		}
		if e == nil {
			break
		}
		got = append(got, e)
	}
	if ioErrors, err := dec.ReadEnd(); err != nil || ioErrors != 0 {
		t.Fatalf("ReadEnd = %d, %v", ioErrors, err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decoded entries: diff (-want +got):\n%s", diff)
	}
	if cli.In.Len() != 0 {
		t.Errorf("%d bytes left in the read buffer after ReadEnd", cli.In.Len())
	}
}

func TestFileListEncoderStateGuard(t *testing.T) {
	s := rsyncsession.StartDaemonServer()
	if _, err := s.FileListEncoder(0); err == nil {
		t.Error("FileListEncoder before the COMMAND event succeeded unexpectedly")
	}
	c, err := rsyncsession.StartDaemonClient([]string{"-r"}, "data")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.FileListDecoder(0); err == nil {
		t.Error("FileListDecoder before the OK event succeeded unexpectedly")
	}
}

func TestParseResume(t *testing.T) {
	s, err := rsyncsession.StartDaemonClient([]string{"-aH"}, "AllTheData",
		rsyncsession.WithCredentials("user", "pass"))
	if err != nil {
		t.Fatal(err)
	}

	input := "@RSYNCD: 30.0\n@RSYNCD: AUTHREQD qwerty12345\n@RSYNCD: OK\n"
	var got []rsyncsession.Event
	for _, b := range []byte(input) {
		s.In.Append([]byte{b})
		for {
			ev, err := s.Parse()
			if err != nil {
				t.Fatal(err)
			}
			if ev.Kind == rsyncsession.EventNone {
				break
			}
			got = append(got, ev)
		}
	}
	want := []rsyncsession.Event{
		{Kind: rsyncsession.EventProtocol, Protocol: 30},
		{Kind: rsyncsession.EventOK},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events: diff (-want +got):\n%s", diff)
	}
	if got, want := s.Out.String(), "@RSYNCD: 30.0\nAllTheData\nuser Zp77fT8TRrZ+9A9JFNT/UA\n"; got != want {
		t.Errorf("write buffer = %q, want %q", got, want)
	}
}

func addr(t *testing.T, s string) net.Addr {
	t.Helper()
	a, err := net.ResolveTCPAddr("tcp", s)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestCheckACL(t *testing.T) {
	acls := []string{
		"allow 192.168.1.0/24",
		"allow 2001:db8::1/32",
		"deny all",
	}
	for _, tt := range []struct {
		remote    string
		wantAllow bool
	}{
		{"192.168.1.33:1234", true},
		{"[2001:db8::5]:1234", true},
		{"10.0.0.1:1234", false},
		{"[fe80::1]:1234", false},
	} {
		err := rsyncsession.CheckACL(acls, addr(t, tt.remote))
		if allowed := err == nil; allowed != tt.wantAllow {
			t.Errorf("CheckACL(%s): allowed = %v (err: %v), want %v",
				tt.remote, allowed, err, tt.wantAllow)
		}
	}
	if err := rsyncsession.CheckACL(nil, addr(t, "10.0.0.1:1234")); err != nil {
		t.Errorf("empty ACL denied 10.0.0.1: %v", err)
	}
}
