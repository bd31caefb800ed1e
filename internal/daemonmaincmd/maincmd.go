// Package maincmd implements the rsync daemon CLI: it loads the TOML
// configuration, sets up listeners (TCP or systemd socket activation)
// and serves the daemon protocol on them.
package maincmd

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gokrazy/rsyncproto/internal/log"
	"github.com/gokrazy/rsyncproto/internal/rsyncdconfig"
	"github.com/gokrazy/rsyncproto/internal/rsyncwire"
	"github.com/gokrazy/rsyncproto/internal/version"
	"github.com/gokrazy/rsyncproto/rsyncd"
	"github.com/gokrazy/rsyncproto/rsyncsession"
	"github.com/google/renameio/v2"

	// For profiling and debugging
	_ "net/http/pprof"
)

func printVersion() {
	log.Printf("%s daemon, pid %d", version.Read(), os.Getpid())
}

type readWriter struct {
	r io.Reader
	w io.Writer
}

func (r *readWriter) Read(p []byte) (n int, err error)  { return r.r.Read(p) }
func (r *readWriter) Write(p []byte) (n int, err error) { return r.w.Write(p) }

// rejectTransfers answers an accepted command line with a multiplexed
// error message: this daemon speaks the dialogue but does not move file
// contents. Callers who want transfers install their own handler via
// rsyncd.WithCommandHandler.
func rejectTransfers(ctx context.Context, conn io.ReadWriter, sess *rsyncsession.Session, module rsyncsession.Module) error {
	const errorSeed = 0xee
	sess.Out.WriteInt32(errorSeed)
	// Server-side transmissions are multiplexed from the seed onwards.
	if err := sess.Out.WriteMsg(rsyncwire.MsgError, []byte("rsyncproto [sender]: file transfers not supported by this daemon\n")); err != nil {
		return err
	}
	if _, err := conn.Write(sess.Out.Bytes()); err != nil {
		return err
	}
	sess.Out.Clear()
	return fmt.Errorf("module %q (protocol %d): transfers not supported", module.Name, sess.Protocol())
}

func writePidFile(fn string) error {
	return renameio.WriteFile(fn, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644)
}

func serverOptions(cfg *rsyncdconfig.Config) []rsyncd.Option {
	opts := []rsyncd.Option{
		rsyncd.WithCommandHandler(rejectTransfers),
	}
	if cfg.Motd != "" {
		opts = append(opts, rsyncd.WithMotd(cfg.Motd))
	}
	if len(cfg.Secrets) > 0 {
		opts = append(opts, rsyncd.WithSecrets(cfg.Secrets))
	}
	return opts
}

func Main(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer, stderr io.Writer, cfg *rsyncdconfig.Config) error {
	opts, opt := NewGetOpt()
	_, err := opt.Parse(args[1:])
	if opt.Called("help") {
		fmt.Fprint(stderr, opt.Help())
		os.Exit(1)
	}
	if err != nil {
		return err
	}

	// calling convention: daemon mode over remote shell
	// Example: --server --daemon .
	if opts.Daemon && opts.Server {
		if cfg == nil {
			var err error
			cfg, _, err = rsyncdconfig.FromDefaultFiles()
			if err != nil {
				return err
			}
		}
		srv, err := rsyncd.NewServer(cfg.Modules, serverOptions(cfg)...)
		if err != nil {
			return err
		}
		rw := readWriter{
			r: stdin,
			w: stdout,
		}
		return srv.HandleDaemonConn(ctx, &rw, nil)
	}

	if !opts.Daemon {
		return fmt.Errorf("not implemented: non-daemon mode (use --daemon)")
	}

	// calling convention: start a daemon in TCP listening mode (or with
	// systemd socket activation)

	var cfgfn string
	var cfgErr error
	if cfg == nil {
		if opts.Config != "" {
			cfgfn = opts.Config
			cfg, cfgErr = rsyncdconfig.FromFile(cfgfn)
		} else {
			cfg, cfgfn, cfgErr = rsyncdconfig.FromDefaultFiles()
		}
		if cfgErr != nil {
			if os.IsNotExist(cfgErr) {
				log.Printf("config file not found, relying on flags")
				// a non-existant config file is not an error: users can
				// start the daemon with e.g. the -listen and -modulemap
				// flags.
				cfg = &rsyncdconfig.Config{
					Listeners: []rsyncdconfig.Listener{
						{Rsyncd: opts.Listen},
					},
				}
			} else {
				return cfgErr
			}
		} else {
			log.Printf("config file %s loaded", cfgfn)
		}
	}

	if os.IsNotExist(cfgErr) {
		if opts.Listen == "" {
			return fmt.Errorf("-listen not specified, and config file not found: %v", cfgErr)
		}
		// If no config file was found, and the user did not specify a
		// -modulemap flag, use a default value to force the user to
		// configure a module map.
		if opts.ModuleMap == "" {
			opts.ModuleMap = "nonex=/nonexistant/path"
		}
	}

	var listenAddr, monitoringAddr string
	for _, ln := range cfg.Listeners {
		if ln.Rsyncd != "" {
			if listenAddr != "" {
				return fmt.Errorf("more than one rsyncd listener configured in %s", cfgfn)
			}
			listenAddr = ln.Rsyncd
		}
		if ln.HTTPMonitoring != "" {
			monitoringAddr = ln.HTTPMonitoring
		}
	}
	if listenAddr == "" {
		return fmt.Errorf("no rsyncd listener configured, add a [[listener]] to %s", cfgfn)
	}
	if opts.MonitoringListen != "" {
		monitoringAddr = opts.MonitoringListen
	}

	if moduleMap := opts.ModuleMap; moduleMap != "" {
		parts := strings.Split(moduleMap, "=")
		if len(parts) != 2 {
			return fmt.Errorf("malformed -modulemap parameter %q, expected <modulename>=<path>", moduleMap)
		}
		cfg.Modules = append(cfg.Modules, rsyncsession.Module{
			Name: parts[0],
			Path: parts[1],
		})
	}

	printVersion()
	log.Printf("%d rsync modules configured in total", len(cfg.Modules))
	for _, mod := range cfg.Modules {
		log.Printf("rsync module %q with path %s configured", mod.Name, mod.Path)
	}

	if opts.PidFile != "" {
		if err := writePidFile(opts.PidFile); err != nil {
			return err
		}
	}

	if monitoringAddr != "" {
		go func() {
			log.Printf("HTTP server for monitoring listening on http://%s/debug/pprof", monitoringAddr)
			if err := http.ListenAndServe(monitoringAddr, nil); err != nil {
				log.Printf("-monitoring_listen: %v", err)
			}
		}()
	}

	srv, err := rsyncd.NewServer(cfg.Modules, serverOptions(cfg)...)
	if err != nil {
		return err
	}
	var ln net.Listener
	listeners, err := systemdListeners()
	if err != nil {
		return err
	}
	if len(listeners) > 0 {
		ln = listeners[0]
	} else {
		log.Printf("not using systemd socket activation, creating listener")
		ln, err = net.Listen("tcp", listenAddr)
		if err != nil {
			return err
		}
	}

	log.Printf("rsync daemon listening on rsync://%s", ln.Addr())
	return srv.Serve(ctx, ln)
}
