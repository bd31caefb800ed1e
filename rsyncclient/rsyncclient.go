// Package rsyncclient implements the client end of the rsync daemon
// dialogue over a caller-supplied connection: listing a daemon's
// modules, answering auth challenges and requesting a module until the
// server accepts the transfer command. The protocol state lives in the
// sans-I/O rsyncsession package; this package only pumps bytes.
package rsyncclient

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/gokrazy/rsyncproto/internal/log"
	"github.com/gokrazy/rsyncproto/internal/rsyncopts"
	"github.com/gokrazy/rsyncproto/internal/rsyncstats"
	"github.com/gokrazy/rsyncproto/rsyncsession"
)

// Option specifies the client options.
type Option interface {
	applyClient(*Client)
}

type clientOptionFunc func(client *Client)

func (f clientOptionFunc) applyClient(c *Client) {
	f(c)
}

// WithLogger specifies the logger for protocol milestones. The default
// logs to the log package's standard logger.
func WithLogger(logger log.Logger) Option {
	return clientOptionFunc(func(c *Client) {
		c.logger = logger
	})
}

// WithCredentials supplies the username and password used to answer a
// daemon's auth challenge.
func WithCredentials(username, password string) Option {
	return clientOptionFunc(func(c *Client) {
		c.username = username
		c.password = password
	})
}

// A Client connects to rsync daemons over connections dialed by the
// caller. The same Client can be used for any number of connections.
type Client struct {
	logger   log.Logger
	username string
	password string
	args     []string
}

// New creates a client whose behavior is determined by args, the rsync
// command line (without the program name, e.g. []string{"-av"}).
func New(args []string, opts ...Option) (*Client, error) {
	// Surface option errors here rather than on the first connection.
	if _, err := rsyncopts.ParseArguments(args); err != nil {
		return nil, err
	}
	c := &Client{
		logger: log.Default(),
		args:   args,
	}
	for _, opt := range opts {
		opt.applyClient(c)
	}
	return c, nil
}

func (c *Client) sessionOptions() []rsyncsession.Option {
	opts := []rsyncsession.Option{rsyncsession.WithLogger(c.logger)}
	if c.username != "" {
		opts = append(opts, rsyncsession.WithCredentials(c.username, c.password))
	}
	return opts
}

// A ListResult is the outcome of listing a daemon's modules.
type ListResult struct {
	// Lines holds the daemon's informational output: the message of the
	// day followed by one name/comment line per module.
	Lines []string

	Stats rsyncstats.TransferStats
}

// run pumps bytes between conn and sess, calling handle for every
// event, until handle reports that the dialogue is over.
func (c *Client) run(ctx context.Context, conn io.ReadWriter, sess *rsyncsession.Session, stats *rsyncstats.TransferStats, handle func(ev rsyncsession.Event) (done bool, err error)) error {
	crd, cwr := rsyncstats.CounterPair(conn, conn)
	defer func() {
		stats.Read = crd.BytesRead()
		stats.Written = cwr.BytesWritten()
	}()
	flush := func() error {
		if sess.Out.Len() == 0 {
			return nil
		}
		if _, err := cwr.Write(sess.Out.Bytes()); err != nil {
			return err
		}
		sess.Out.Clear()
		return nil
	}

	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := flush(); err != nil {
			return err
		}
		n, err := crd.Read(buf)
		if n > 0 {
			sess.In.Append(buf[:n])
		}
		if err != nil {
			if err == io.EOF {
				return errors.New("connection closed before the dialogue concluded")
			}
			return err
		}
		for {
			ev, err := sess.Parse()
			if err != nil {
				return err
			}
			if ev.Kind == rsyncsession.EventNone {
				break
			}
			done, err := handle(ev)
			if err != nil {
				flush()
				return err
			}
			if done {
				return flush()
			}
		}
	}
}

// List requests the daemon's module listing over conn.
func (c *Client) List(ctx context.Context, conn io.ReadWriter) (*ListResult, error) {
	sess, err := rsyncsession.StartDaemonClient(c.args, "#list", c.sessionOptions()...)
	if err != nil {
		return nil, err
	}
	result := &ListResult{}
	err = c.run(ctx, conn, sess, &result.Stats, func(ev rsyncsession.Event) (bool, error) {
		switch ev.Kind {
		case rsyncsession.EventInfo:
			result.Lines = append(result.Lines, ev.Text)
		case rsyncsession.EventAuthReqd:
			return false, errors.New("daemon requires authentication (use WithCredentials)")
		case rsyncsession.EventError:
			return false, errors.New(ev.Text)
		case rsyncsession.EventExit:
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Request asks the daemon for the named module and, once the server
// accepts, sends the transfer command for path. The returned session
// has negotiated the protocol version; the caller takes over conn for
// the binary phase that follows.
func (c *Client) Request(ctx context.Context, conn io.ReadWriter, module, path string) (*rsyncsession.Session, error) {
	sess, err := rsyncsession.StartDaemonClient(c.args, module, c.sessionOptions()...)
	if err != nil {
		return nil, err
	}
	var stats rsyncstats.TransferStats
	err = c.run(ctx, conn, sess, &stats, func(ev rsyncsession.Event) (bool, error) {
		switch ev.Kind {
		case rsyncsession.EventInfo:
			c.logger.Printf("%s", ev.Text)
		case rsyncsession.EventAuthReqd:
			return false, errors.New("daemon requires authentication (use WithCredentials)")
		case rsyncsession.EventError:
			return false, errors.New(ev.Text)
		case rsyncsession.EventExit:
			return false, fmt.Errorf("daemon ended the session before accepting module %q", module)
		case rsyncsession.EventOK:
			argv := append([]string{"rsync"}, sess.Opts.CommandOptions(path)...)
			if err := sess.StartRemoteSender(argv); err != nil {
				return false, err
			}
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}
