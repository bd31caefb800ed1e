// Package rsyncd drives the server end of the rsync daemon protocol
// over a network connection: it owns the accept loop and the byte
// pumping, while the protocol itself lives in the sans-I/O
// rsyncsession package.
package rsyncd

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/gokrazy/rsyncproto/internal/log"
	"github.com/gokrazy/rsyncproto/internal/rsyncchecksum"
	"github.com/gokrazy/rsyncproto/internal/rsyncstats"
	"github.com/gokrazy/rsyncproto/rsyncsession"
	"golang.org/x/sync/errgroup"
)

// A CommandFunc takes over the connection once the client's command
// line was accepted. conn carries the remaining (possibly multiplexed)
// conversation; sess holds the negotiated protocol version and the
// parsed options.
type CommandFunc func(ctx context.Context, conn io.ReadWriter, sess *rsyncsession.Session, module rsyncsession.Module) error

// Option specifies the server options.
type Option interface {
	applyServer(*Server)
}

type serverOptionFunc func(server *Server)

func (f serverOptionFunc) applyServer(s *Server) {
	f(s)
}

// WithLogger specifies the logger to use for the server.
// It also sets the global logger used by the rsyncproto package.
func WithLogger(logger log.Logger) Option {
	return serverOptionFunc(func(s *Server) {
		s.logger = logger

		// TODO: remove global logger usage once we remove
		//       the ad-hoc logger reference.
		log.SetLogger(logger)
	})
}

// WithMotd specifies the message of the day that is sent to every
// client before module negotiation concludes.
func WithMotd(motd string) Option {
	return serverOptionFunc(func(s *Server) {
		s.motd = motd
	})
}

// WithSecrets specifies the auth database: keys have the form
// "module/user", values are the plain-text passwords. Modules for
// which at least one secret exists require authentication.
func WithSecrets(secrets map[string]string) Option {
	return serverOptionFunc(func(s *Server) {
		s.secrets = secrets
	})
}

// WithCommandHandler specifies the function that takes over the
// connection after the client's command line was accepted.
func WithCommandHandler(handler CommandFunc) Option {
	return serverOptionFunc(func(s *Server) {
		s.handler = handler
	})
}

func NewServer(modules []rsyncsession.Module, opts ...Option) (*Server, error) {
	for _, mod := range modules {
		if err := validateModule(mod); err != nil {
			return nil, err
		}
	}

	server := &Server{
		logger:  log.Default(),
		modules: modules,
	}

	for _, opt := range opts {
		opt.applyServer(server)
	}

	return server, nil
}

type Server struct {
	logger  log.Logger
	modules []rsyncsession.Module
	motd    string
	secrets map[string]string
	handler CommandFunc
}

func (s *Server) getModule(requestedModule string) (rsyncsession.Module, error) {
	for _, mod := range s.modules {
		if mod.Name == requestedModule {
			return mod, nil
		}
	}

	return rsyncsession.Module{}, fmt.Errorf("no such module: %s", requestedModule)
}

func (s *Server) moduleNeedsAuth(name string) bool {
	prefix := name + "/"
	for key := range s.secrets {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

func challenge() (string, error) {
	var salt [16]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return "", err
	}
	return base64.RawStdEncoding.EncodeToString(salt[:]), nil
}

// HandleDaemonConn pumps bytes between conn and a server-side session
// until the daemon dialogue concludes, then hands the connection to
// the configured command handler (if any). remoteAddr is consulted
// for the per-module ACLs.
//
// HandleDaemonConn is equivalent to rsync/clientserver.c:start_daemon.
func (s *Server) HandleDaemonConn(ctx context.Context, conn io.ReadWriter, remoteAddr net.Addr) (err error) {
	crd, cwr := rsyncstats.CounterPair(conn, conn)
	defer func() {
		s.logger.Printf("[%s] connection done: read %d bytes, wrote %d bytes", remoteAddr, crd.BytesRead(), cwr.BytesWritten())
	}()

	sess := rsyncsession.StartDaemonServer(rsyncsession.WithLogger(s.logger))

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
	if err := flush(); err != nil {
		return err
	}

	buf := make([]byte, 32*1024)
	for {
		n, err := crd.Read(buf)
		if n > 0 {
			sess.In.Append(buf[:n])
		}
		if err != nil {
			if err == io.EOF {
				return nil
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

			switch ev.Kind {
			case rsyncsession.EventProtocol:
				// negotiation done, wait for the module request

			case rsyncsession.EventModule:
				if ev.Text == "" || ev.Text == "#list" {
					s.logger.Printf("client %v requested rsync module listing", remoteAddr)
					if s.motd != "" {
						sess.SendMotd(s.motd)
					}
					sess.SendModuleList(s.modules)
					return flush()
				}
				s.logger.Printf("client %v requested rsync module %q", remoteAddr, ev.Text)
				module, err := s.getModule(ev.Text)
				if err != nil {
					sess.SendError(fmt.Sprintf("Unknown module %q", ev.Text))
					flush()
					return err
				}
				if err := rsyncsession.CheckACL(module.ACL, remoteAddr); err != nil {
					sess.SendError(err.Error())
					flush()
					return err
				}
				if s.motd != "" {
					sess.SendMotd(s.motd)
				}
				if s.moduleNeedsAuth(module.Name) {
					salt, err := challenge()
					if err != nil {
						return err
					}
					if err := sess.SendAuthChallenge(salt); err != nil {
						return err
					}
				} else if err := sess.SendOK(); err != nil {
					return err
				}

			case rsyncsession.EventAuth:
				password, ok := s.secrets[sess.Module()+"/"+ev.User]
				want := rsyncchecksum.PassHash(password, sess.Challenge(), sess.Protocol())
				if !ok || ev.Text != want {
					sess.SendError("auth failed on module " + sess.Module())
					flush()
					return fmt.Errorf("auth failed for user %q on module %q", ev.User, sess.Module())
				}
				if err := sess.SendOK(); err != nil {
					return err
				}

			case rsyncsession.EventCommand:
				if err := flush(); err != nil {
					return err
				}
				if s.handler == nil {
					return errors.New("no command handler configured")
				}
				module, err := s.getModule(sess.Module())
				if err != nil {
					return err
				}
				rw := struct {
					io.Reader
					io.Writer
				}{Reader: crd, Writer: cwr}
				return s.handler(ctx, rw, sess, module)

			case rsyncsession.EventError:
				flush()
				return errors.New(ev.Text)

			case rsyncsession.EventExit:
				return flush()
			}

			if err := flush(); err != nil {
				return err
			}
		}
	}
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close() // unblocks Accept()
	}()

	var g errgroup.Group
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				g.Wait()
				return nil // ignore expected 'use of closed network connection' error on context cancel
			default:
				g.Wait()
				return err
			}
		}
		remoteAddr := conn.RemoteAddr()
		s.logger.Printf("remote connection from %s", remoteAddr)
		g.Go(func() error {
			defer conn.Close()
			if err := s.HandleDaemonConn(ctx, conn, remoteAddr); err != nil {
				s.logger.Printf("[%s] handle: %v", remoteAddr, err)
			}
			return nil
		})
	}
}

func validateModule(mod rsyncsession.Module) error {
	if mod.Name == "" {
		return errors.New("module has no name")
	}
	if mod.Path == "" {
		return fmt.Errorf("module %q has empty path", mod.Name)
	}

	return nil
}
