package maincmd

import "github.com/DavidGamba/go-getoptions"

type Opts struct {
	Config           string
	Listen           string
	MonitoringListen string
	ModuleMap        string
	PidFile          string

	Daemon bool
	Server bool
}

func NewGetOpt() (*Opts, *getoptions.GetOpt) {
	var opts Opts
	opt := getoptions.New()

	// rsync bundles short options together, i.e. it sends e.g. -logDtpr
	opt.SetMode(getoptions.Bundling)

	opt.Bool("help", false, opt.Alias("h"))

	opt.StringVar(&opts.Config, "config", "", opt.Description("path to a config file (if unspecified, os.UserConfigDir()/rsyncproto-daemon.toml is used)"))
	opt.StringVar(&opts.Listen, "listen", "", opt.Description("[host]:port listen address for the rsync daemon protocol"))
	opt.StringVar(&opts.MonitoringListen, "monitoring_listen", "", opt.Description("optional [host]:port listen address for a HTTP debug interface"))
	opt.StringVar(&opts.ModuleMap, "modulemap", "", opt.Description("<modulename>=<path> pairs for quick setup of the server, without a config file"))
	opt.StringVar(&opts.PidFile, "pid_file", "", opt.Description("optional path to write the daemon's pid to"))

	opt.BoolVar(&opts.Daemon, "daemon", false, opt.Description("run as an rsync daemon"))
	opt.BoolVar(&opts.Server, "server", false)

	return &opts, opt
}
