// Package rsyncopts implements a parser for command-line options that
// implements a subset of popt(3) semantics; just enough to parse typical
// rsync(1) invocations without the advanced popt features like option
// prefix matching (not --del as an abbreviation, only as its own option).
//
// Each table entry describes one option: its long name, extra spellings,
// an optional single-letter short name, whether a --no- form exists,
// whether repeated use increments, and the type of value it takes. A few
// options with order-sensitive side effects carry a hand-written setter.
//
// If we encounter arguments that rsync(1) parses differently compared to
// this package, then this package should be adjusted to match rsync(1).
package rsyncopts

import (
	"fmt"
	"strings"
	"syscall"
)

// NewOptions returns an Options struct with all options initialized to their
// default values. Note that ParseArguments will set some options based on the
// encountered command-line flags and built-in rules.
func NewOptions() *Options {
	return &Options{
		motd:            1,
		human_readable:  1,
		inc_recursive:   1,
		implied_dirs:    1,
		checksum_choice: "auto",
		rsync_path:      "rsync",
		default_af_hint: syscall.AF_INET6,
		protocol:        31,
	}
}

type Options struct {
	// order matches the option table order
	help             int
	version          int
	verbose          int
	info             string
	debug            string
	stderr_mode      string
	msgs2stderr      int
	quiet            int
	motd             int
	stats            int
	human_readable   int
	dry_run          int
	recursive        int
	inc_recursive    int
	dirs             int
	perms            int
	executability    int
	acls             int
	xattrs           int
	times            int
	atimes           int
	open_noatime     int
	crtimes          int
	omit_dir_times   int
	omit_link_times  int
	modify_window    int
	super            int
	fake_super       int
	owner            int
	group            int
	devices          int
	copy_devices     int
	write_devices    int
	specials         int
	links            int
	copy_links       int
	copy_unsafe_links int
	safe_links       int
	munge_links      int
	copy_dirlinks    int
	keep_dirlinks    int
	hard_links       int
	relative         int
	implied_dirs     int
	chmod            string
	ignore_times     int
	size_only        int
	one_file_system  int
	update           int
	existing         int
	ignore_existing  int
	max_size         int64
	min_size         int64
	max_alloc        int64
	sparse           int
	preallocate      int
	inplace          int
	append_mode      int
	delete           int
	delete_before    int
	delete_during    int
	delete_after     int
	delete_excluded  int
	missing_args     int // 0 = error, 1 = ignore, 2 = delete
	remove_source_files int
	force            int
	ignore_errors    int
	max_delete       int
	f_flag_count     int
	filters          []string
	cvs_exclude      int
	whole_file       int
	checksum         int
	checksum_choice  string
	block_size       int64
	compare_dest     int
	copy_dest        int
	link_dest        int
	basis_dirs       []string
	fuzzy            int
	compress         int
	compress_choice  string
	skip_compress    string
	compress_level   int
	progress         int
	partial          int
	partial_dir      string
	delay_updates    int
	prune_empty_dirs int
	log_file         string
	log_file_format  string
	out_format       string
	itemize_changes  int
	bwlimit          int64
	backup           int
	backup_dir       string
	suffix           string
	list_only        int
	batch_name       string
	read_batch       int
	write_batch      int
	files_from       string
	from0            int
	old_args         int
	secluded_args    int
	trust_sender     int
	numeric_ids      int
	usermap          string
	groupmap         string
	timeout          int
	contimeout       int
	fsync            int
	stop_after       string
	stop_at          string
	rsh              string
	rsync_path       string
	temp_dir         string
	iconv            string
	default_af_hint  int
	allow_8bit_chars int
	mkpath           int
	qsort            int
	copy_as          string
	bind_address     string // numeric IPv4 or IPv6, or a hostname
	port             int
	sockopts         string
	password_file    string
	early_input      string
	blocking_io      int
	outbuf           string
	remote_options   []string // slot 0 is reserved for the program name
	protocol         int
	checksum_seed    int
	server           int
	sender           int

	// positional arguments
	source string
	dest   string
}

func (o *Options) Help() bool              { return o.help != 0 }
func (o *Options) Verbose() bool           { return o.verbose != 0 }
func (o *Options) Quiet() bool             { return o.quiet != 0 }
func (o *Options) Motd() bool              { return o.motd != 0 }
func (o *Options) HumanReadable() bool     { return o.human_readable != 0 }
func (o *Options) DryRun() bool            { return o.dry_run != 0 }
func (o *Options) Recursive() bool         { return o.recursive != 0 }
func (o *Options) IncRecursive() bool      { return o.inc_recursive != 0 }
func (o *Options) Perms() bool             { return o.perms != 0 }
func (o *Options) Acls() bool              { return o.acls != 0 }
func (o *Options) Times() bool             { return o.times != 0 }
func (o *Options) Owner() bool             { return o.owner != 0 }
func (o *Options) Group() bool             { return o.group != 0 }
func (o *Options) Devices() bool           { return o.devices != 0 }
func (o *Options) Specials() bool          { return o.specials != 0 }
func (o *Options) Links() bool             { return o.links != 0 }
func (o *Options) HardLinks() bool         { return o.hard_links != 0 }
func (o *Options) ImpliedDirs() bool       { return o.implied_dirs != 0 }
func (o *Options) OneFileSystem() bool     { return o.one_file_system != 0 }
func (o *Options) Delete() bool            { return o.delete != 0 }
func (o *Options) WholeFile() bool         { return o.whole_file != 0 }
func (o *Options) Checksum() bool          { return o.checksum != 0 }
func (o *Options) ChecksumChoice() string  { return o.checksum_choice }
func (o *Options) Progress() bool          { return o.progress != 0 }
func (o *Options) Partial() bool           { return o.partial != 0 }
func (o *Options) ListOnly() bool          { return o.list_only != 0 }
func (o *Options) NumericIds() bool        { return o.numeric_ids != 0 }
func (o *Options) Usermap() string         { return o.usermap }
func (o *Options) Groupmap() string        { return o.groupmap }
func (o *Options) Timeout() int            { return o.timeout }
func (o *Options) MaxSize() int64          { return o.max_size }
func (o *Options) MinSize() int64          { return o.min_size }
func (o *Options) Bwlimit() int64          { return o.bwlimit }
func (o *Options) Filters() []string       { return o.filters }
func (o *Options) BasisDirs() []string     { return o.basis_dirs }
func (o *Options) RemoteOptions() []string { return o.remote_options }
func (o *Options) AppendMode() int         { return o.append_mode }
func (o *Options) Protocol() int           { return o.protocol }
func (o *Options) Server() bool            { return o.server != 0 }
func (o *Options) Sender() bool            { return o.sender != 0 }
func (o *Options) Source() string          { return o.source }
func (o *Options) Dest() string            { return o.dest }

func (o *Options) table() []poptOption {
	return []poptOption{
		{longName: "help", argInfo: POPT_ARG_NONE, arg: &o.help},
		{longName: "version", shortName: "V", increment: true, argInfo: POPT_ARG_NONE, arg: &o.version},
		{longName: "verbose", shortName: "v", negate: true, increment: true, argInfo: POPT_ARG_NONE, arg: &o.verbose},
		{longName: "info", argInfo: POPT_ARG_STRING, arg: &o.info},
		{longName: "debug", argInfo: POPT_ARG_STRING, arg: &o.debug},
		{longName: "stderr", argInfo: POPT_ARG_STRING, arg: &o.stderr_mode},
		{longName: "msgs2stderr", negate: true, argInfo: POPT_ARG_NONE, arg: &o.msgs2stderr},
		{longName: "quiet", shortName: "q", increment: true, argInfo: POPT_ARG_NONE, arg: &o.quiet},
		{longName: "motd", negate: true, argInfo: POPT_ARG_NONE, arg: &o.motd},
		{longName: "stats", argInfo: POPT_ARG_NONE, arg: &o.stats},
		{longName: "human-readable", shortName: "h", negate: true, increment: true, argInfo: POPT_ARG_NONE, arg: &o.human_readable},
		{longName: "dry-run", shortName: "n", argInfo: POPT_ARG_NONE, arg: &o.dry_run},
		{longName: "archive", shortName: "a", argInfo: POPT_ARG_NONE, set: optArchive},
		{longName: "recursive", shortName: "r", negate: true, argInfo: POPT_ARG_NONE, arg: &o.recursive},
		{longName: "inc-recursive", aliases: []string{"i-r"}, negate: true, argInfo: POPT_ARG_NONE, arg: &o.inc_recursive},
		{longName: "dirs", shortName: "d", negate: true, argInfo: POPT_ARG_NONE, arg: &o.dirs},
		{longName: "perms", shortName: "p", negate: true, argInfo: POPT_ARG_NONE, arg: &o.perms},
		{longName: "executability", shortName: "E", argInfo: POPT_ARG_NONE, arg: &o.executability},
		{longName: "acls", shortName: "A", negate: true, argInfo: POPT_ARG_NONE, set: optAcls},
		{longName: "xattrs", shortName: "X", negate: true, increment: true, argInfo: POPT_ARG_NONE, arg: &o.xattrs},
		{longName: "times", shortName: "t", negate: true, argInfo: POPT_ARG_NONE, arg: &o.times},
		{longName: "atimes", shortName: "U", negate: true, increment: true, argInfo: POPT_ARG_NONE, arg: &o.atimes},
		{longName: "open-noatime", negate: true, argInfo: POPT_ARG_NONE, arg: &o.open_noatime},
		{longName: "crtimes", shortName: "N", negate: true, argInfo: POPT_ARG_NONE, arg: &o.crtimes},
		{longName: "omit-dir-times", shortName: "O", negate: true, argInfo: POPT_ARG_NONE, arg: &o.omit_dir_times},
		{longName: "omit-link-times", shortName: "J", negate: true, argInfo: POPT_ARG_NONE, arg: &o.omit_link_times},
		{longName: "modify-window", shortName: "@", argInfo: POPT_ARG_INT, arg: &o.modify_window},
		{longName: "super", negate: true, argInfo: POPT_ARG_NONE, arg: &o.super},
		{longName: "fake-super", argInfo: POPT_ARG_NONE, arg: &o.fake_super},
		{longName: "owner", shortName: "o", negate: true, argInfo: POPT_ARG_NONE, arg: &o.owner},
		{longName: "group", shortName: "g", negate: true, argInfo: POPT_ARG_NONE, arg: &o.group},
		{shortName: "D", negate: true, argInfo: POPT_ARG_NONE, set: optCombinedDevices},
		{longName: "devices", negate: true, argInfo: POPT_ARG_NONE, arg: &o.devices},
		{longName: "copy-devices", argInfo: POPT_ARG_NONE, arg: &o.copy_devices},
		{longName: "write-devices", negate: true, argInfo: POPT_ARG_NONE, arg: &o.write_devices},
		{longName: "specials", negate: true, argInfo: POPT_ARG_NONE, arg: &o.specials},
		{longName: "links", shortName: "l", negate: true, argInfo: POPT_ARG_NONE, arg: &o.links},
		{longName: "copy-links", shortName: "L", argInfo: POPT_ARG_NONE, arg: &o.copy_links},
		{longName: "copy-unsafe-links", argInfo: POPT_ARG_NONE, arg: &o.copy_unsafe_links},
		{longName: "safe-links", argInfo: POPT_ARG_NONE, arg: &o.safe_links},
		{longName: "munge-links", negate: true, argInfo: POPT_ARG_NONE, arg: &o.munge_links},
		{longName: "copy-dirlinks", shortName: "k", argInfo: POPT_ARG_NONE, arg: &o.copy_dirlinks},
		{longName: "keep-dirlinks", shortName: "K", argInfo: POPT_ARG_NONE, arg: &o.keep_dirlinks},
		{longName: "hard-links", shortName: "H", negate: true, argInfo: POPT_ARG_NONE, arg: &o.hard_links},
		{longName: "relative", shortName: "R", negate: true, argInfo: POPT_ARG_NONE, arg: &o.relative},
		{longName: "implied-dirs", aliases: []string{"i-d"}, negate: true, argInfo: POPT_ARG_NONE, arg: &o.implied_dirs},
		{longName: "chmod", argInfo: POPT_ARG_STRING, arg: &o.chmod},
		{longName: "ignore-times", shortName: "I", argInfo: POPT_ARG_NONE, arg: &o.ignore_times},
		{longName: "size-only", argInfo: POPT_ARG_NONE, arg: &o.size_only},
		{longName: "one-file-system", shortName: "x", negate: true, increment: true, argInfo: POPT_ARG_NONE, arg: &o.one_file_system},
		{longName: "update", shortName: "u", argInfo: POPT_ARG_NONE, arg: &o.update},
		{longName: "existing", aliases: []string{"ignore-non-existing"}, argInfo: POPT_ARG_NONE, arg: &o.existing},
		{longName: "ignore-existing", argInfo: POPT_ARG_NONE, arg: &o.ignore_existing},
		{longName: "max-size", argInfo: POPT_ARG_SIZE, set: optMaxSize},
		{longName: "min-size", argInfo: POPT_ARG_SIZE, set: optMinSize},
		{longName: "max-alloc", argInfo: POPT_ARG_SIZE, arg: &o.max_alloc},
		{longName: "sparse", shortName: "S", negate: true, argInfo: POPT_ARG_NONE, arg: &o.sparse},
		{longName: "preallocate", argInfo: POPT_ARG_NONE, arg: &o.preallocate},
		{longName: "inplace", negate: true, argInfo: POPT_ARG_NONE, arg: &o.inplace},
		{longName: "append", negate: true, argInfo: POPT_ARG_NONE, set: optAppend},
		{longName: "append-verify", argInfo: POPT_ARG_NONE, set: optAppendVerify},
		{longName: "del", argInfo: POPT_ARG_NONE, arg: &o.delete_during},
		{longName: "delete", argInfo: POPT_ARG_NONE, arg: &o.delete},
		{longName: "delete-before", argInfo: POPT_ARG_NONE, arg: &o.delete_before},
		{longName: "delete-during", argInfo: POPT_ARG_NONE, arg: &o.delete_during},
		{longName: "delete-delay", argInfo: POPT_ARG_NONE, set: optDeleteDelay},
		{longName: "delete-after", argInfo: POPT_ARG_NONE, arg: &o.delete_after},
		{longName: "delete-excluded", argInfo: POPT_ARG_NONE, arg: &o.delete_excluded},
		{longName: "delete-missing-args", argInfo: POPT_ARG_NONE, set: optDeleteMissingArgs},
		{longName: "ignore-missing-args", argInfo: POPT_ARG_NONE, set: optIgnoreMissingArgs},
		{longName: "remove-sent-files", argInfo: POPT_ARG_NONE, set: optRemoveSentFiles}, /* deprecated */
		{longName: "remove-source-files", argInfo: POPT_ARG_NONE, arg: &o.remove_source_files},
		{longName: "force", negate: true, argInfo: POPT_ARG_NONE, arg: &o.force},
		{longName: "ignore-errors", negate: true, argInfo: POPT_ARG_NONE, arg: &o.ignore_errors},
		{longName: "max-delete", argInfo: POPT_ARG_INT, arg: &o.max_delete},
		{shortName: "F", argInfo: POPT_ARG_NONE, set: optFFilter},
		{longName: "filter", shortName: "f", argInfo: POPT_ARG_STRING, set: optFilter},
		{longName: "exclude", argInfo: POPT_ARG_STRING, set: optExclude},
		{longName: "include", argInfo: POPT_ARG_STRING, set: optInclude},
		{longName: "exclude-from", argInfo: POPT_ARG_STRING, set: optExcludeFrom},
		{longName: "include-from", argInfo: POPT_ARG_STRING, set: optIncludeFrom},
		{longName: "cvs-exclude", shortName: "C", argInfo: POPT_ARG_NONE, arg: &o.cvs_exclude},
		{longName: "whole-file", shortName: "W", negate: true, argInfo: POPT_ARG_NONE, arg: &o.whole_file},
		{longName: "checksum", shortName: "c", negate: true, argInfo: POPT_ARG_NONE, arg: &o.checksum},
		{longName: "checksum-choice", aliases: []string{"cc"}, argInfo: POPT_ARG_STRING, arg: &o.checksum_choice},
		{longName: "block-size", shortName: "B", argInfo: POPT_ARG_SIZE, arg: &o.block_size},
		{longName: "compare-dest", argInfo: POPT_ARG_STRING, set: optCompareDest},
		{longName: "copy-dest", argInfo: POPT_ARG_STRING, set: optCopyDest},
		{longName: "link-dest", argInfo: POPT_ARG_STRING, set: optLinkDest},
		{longName: "fuzzy", shortName: "y", negate: true, increment: true, argInfo: POPT_ARG_NONE, arg: &o.fuzzy},
		{longName: "compress", shortName: "z", negate: true, increment: true, argInfo: POPT_ARG_NONE, arg: &o.compress},
		{longName: "old-compress", argInfo: POPT_ARG_NONE, set: optOldCompress},
		{longName: "new-compress", argInfo: POPT_ARG_NONE, set: optNewCompress},
		{longName: "compress-choice", aliases: []string{"zc"}, argInfo: POPT_ARG_STRING, arg: &o.compress_choice},
		{longName: "skip-compress", argInfo: POPT_ARG_STRING, arg: &o.skip_compress},
		{longName: "compress-level", aliases: []string{"zl"}, argInfo: POPT_ARG_INT, arg: &o.compress_level},
		{shortName: "P", argInfo: POPT_ARG_NONE, set: optProgressPartial},
		{longName: "progress", negate: true, argInfo: POPT_ARG_NONE, arg: &o.progress},
		{longName: "partial", negate: true, argInfo: POPT_ARG_NONE, set: optPartial},
		{longName: "partial-dir", argInfo: POPT_ARG_STRING, arg: &o.partial_dir},
		{longName: "delay-updates", negate: true, argInfo: POPT_ARG_NONE, arg: &o.delay_updates},
		{longName: "prune-empty-dirs", shortName: "m", negate: true, argInfo: POPT_ARG_NONE, arg: &o.prune_empty_dirs},
		{longName: "log-file", argInfo: POPT_ARG_STRING, arg: &o.log_file},
		{longName: "log-file-format", argInfo: POPT_ARG_STRING, arg: &o.log_file_format},
		{longName: "out-format", aliases: []string{"log-format"}, argInfo: POPT_ARG_STRING, arg: &o.out_format},
		{longName: "itemize-changes", shortName: "i", negate: true, increment: true, argInfo: POPT_ARG_NONE, arg: &o.itemize_changes},
		{longName: "bwlimit", negate: true, argInfo: POPT_ARG_SIZE, set: optBwlimit},
		{longName: "backup", shortName: "b", negate: true, argInfo: POPT_ARG_NONE, arg: &o.backup},
		{longName: "backup-dir", argInfo: POPT_ARG_STRING, arg: &o.backup_dir},
		{longName: "suffix", argInfo: POPT_ARG_STRING, arg: &o.suffix},
		{longName: "list-only", argInfo: POPT_ARG_NONE, arg: &o.list_only},
		{longName: "read-batch", argInfo: POPT_ARG_STRING, set: optReadBatch},
		{longName: "write-batch", argInfo: POPT_ARG_STRING, set: optWriteBatch},
		{longName: "only-write-batch", argInfo: POPT_ARG_STRING, set: optOnlyWriteBatch},
		{longName: "files-from", argInfo: POPT_ARG_STRING, arg: &o.files_from},
		{longName: "from0", shortName: "0", negate: true, argInfo: POPT_ARG_NONE, arg: &o.from0},
		{longName: "old-args", negate: true, argInfo: POPT_ARG_NONE, arg: &o.old_args},
		{longName: "secluded-args", aliases: []string{"protect-args"}, shortName: "s", negate: true, argInfo: POPT_ARG_NONE, arg: &o.secluded_args},
		{longName: "trust-sender", argInfo: POPT_ARG_NONE, arg: &o.trust_sender},
		{longName: "numeric-ids", negate: true, argInfo: POPT_ARG_NONE, arg: &o.numeric_ids},
		{longName: "usermap", argInfo: POPT_ARG_STRING, set: optUsermap},
		{longName: "groupmap", argInfo: POPT_ARG_STRING, set: optGroupmap},
		{longName: "chown", argInfo: POPT_ARG_STRING, set: optChown},
		{longName: "timeout", negate: true, argInfo: POPT_ARG_INT, arg: &o.timeout},
		{longName: "contimeout", negate: true, argInfo: POPT_ARG_INT, arg: &o.contimeout},
		{longName: "fsync", argInfo: POPT_ARG_NONE, arg: &o.fsync},
		{longName: "stop-after", aliases: []string{"time-limit"}, argInfo: POPT_ARG_STRING, arg: &o.stop_after},
		{longName: "stop-at", argInfo: POPT_ARG_STRING, arg: &o.stop_at},
		{longName: "rsh", shortName: "e", argInfo: POPT_ARG_STRING, arg: &o.rsh},
		{longName: "rsync-path", argInfo: POPT_ARG_STRING, arg: &o.rsync_path},
		{longName: "temp-dir", shortName: "T", argInfo: POPT_ARG_STRING, arg: &o.temp_dir},
		{longName: "iconv", negate: true, argInfo: POPT_ARG_STRING, arg: &o.iconv},
		{longName: "ipv4", shortName: "4", argInfo: POPT_ARG_NONE, set: optIPv4},
		{longName: "ipv6", shortName: "6", argInfo: POPT_ARG_NONE, set: optIPv6},
		{longName: "8-bit-output", shortName: "8", negate: true, argInfo: POPT_ARG_NONE, arg: &o.allow_8bit_chars},
		{longName: "mkpath", negate: true, argInfo: POPT_ARG_NONE, arg: &o.mkpath},
		{longName: "qsort", argInfo: POPT_ARG_NONE, arg: &o.qsort},
		{longName: "copy-as", argInfo: POPT_ARG_STRING, arg: &o.copy_as},
		{longName: "address", argInfo: POPT_ARG_STRING, arg: &o.bind_address},
		{longName: "port", argInfo: POPT_ARG_INT, arg: &o.port},
		{longName: "sockopts", argInfo: POPT_ARG_STRING, arg: &o.sockopts},
		{longName: "password-file", argInfo: POPT_ARG_STRING, arg: &o.password_file},
		{longName: "early-input", argInfo: POPT_ARG_STRING, arg: &o.early_input},
		{longName: "blocking-io", negate: true, argInfo: POPT_ARG_NONE, arg: &o.blocking_io},
		{longName: "outbuf", argInfo: POPT_ARG_STRING, arg: &o.outbuf},
		{longName: "remote-option", shortName: "M", argInfo: POPT_ARG_STRING, set: optRemoteOption},
		{longName: "protocol", argInfo: POPT_ARG_INT, arg: &o.protocol},
		{longName: "checksum-seed", argInfo: POPT_ARG_INT, arg: &o.checksum_seed},
		{longName: "server", argInfo: POPT_ARG_NONE, arg: &o.server},
		{longName: "sender", argInfo: POPT_ARG_NONE, set: optSender},
	}
}

// rsync/options.c:parse_arguments
func ParseArguments(args []string) (*Context, error) {
	// NOTE: We do not implement support for refusing options per rsyncd.conf
	// here, as we have our own configuration file.

	opts := NewOptions()
	pc := Context{
		Options: opts,
		args:    args,
	}
	pc.table = opts.table()

	if err := pc.parseArgs(); err != nil {
		return nil, err
	}
	if err := opts.MakeCoherent(); err != nil {
		return nil, err
	}
	return &pc, nil
}

// MakeCoherent applies the cross-option validation that runs once argv is
// exhausted.
func (o *Options) MakeCoherent() error {
	switch o.checksum_choice {
	case "", "auto", "md4", "md5", "none":
	default:
		return fmt.Errorf("unknown checksum name: %s", o.checksum_choice)
	}
	if o.checksum_choice == "none" {
		o.whole_file = 1
	}
	return nil
}

func optArchive(pc *Context, opt *poptOption, negated bool, value string) error {
	o := pc.Options
	if o.recursive == 0 {
		o.recursive = 1
	}
	o.links = 1
	o.perms = 1
	o.times = 1
	o.group = 1
	o.owner = 1
	o.devices = 1
	o.specials = 1
	return nil
}

func optCombinedDevices(pc *Context, opt *poptOption, negated bool, value string) error {
	o := pc.Options
	if negated {
		o.devices = 0
		o.specials = 0
	} else {
		o.devices = 1
		o.specials = 1
	}
	return nil
}

func optAcls(pc *Context, opt *poptOption, negated bool, value string) error {
	o := pc.Options
	if negated {
		o.acls = 0
		return nil
	}
	o.acls = 1
	o.perms = 1
	return nil
}

// optFFilter implements the bare -F shorthand: the first use merges
// per-directory .rsync-filter files, the second additionally excludes the
// filter files themselves from the transfer.
func optFFilter(pc *Context, opt *poptOption, negated bool, value string) error {
	o := pc.Options
	o.f_flag_count++
	switch o.f_flag_count {
	case 1:
		o.filters = append(o.filters, ": /.rsync-filter")
	case 2:
		o.filters = append(o.filters, "- .rsync-filter")
	}
	return nil
}

func optFilter(pc *Context, opt *poptOption, negated bool, value string) error {
	pc.Options.filters = append(pc.Options.filters, value)
	return nil
}

func optExclude(pc *Context, opt *poptOption, negated bool, value string) error {
	pc.Options.filters = append(pc.Options.filters, "- "+value)
	return nil
}

func optInclude(pc *Context, opt *poptOption, negated bool, value string) error {
	pc.Options.filters = append(pc.Options.filters, "+ "+value)
	return nil
}

func optExcludeFrom(pc *Context, opt *poptOption, negated bool, value string) error {
	pc.Options.filters = append(pc.Options.filters, "merge,- "+value)
	return nil
}

func optIncludeFrom(pc *Context, opt *poptOption, negated bool, value string) error {
	pc.Options.filters = append(pc.Options.filters, "merge,+ "+value)
	return nil
}

func optProgressPartial(pc *Context, opt *poptOption, negated bool, value string) error {
	pc.Options.progress = 1
	pc.Options.partial = 1
	return nil
}

func optPartial(pc *Context, opt *poptOption, negated bool, value string) error {
	o := pc.Options
	if negated {
		o.partial = 0
		return nil
	}
	o.partial = 1
	o.progress = 1
	return nil
}

// optAppend increments on server invocations (the client encodes how often
// it saw --append) and sets 1 otherwise.
func optAppend(pc *Context, opt *poptOption, negated bool, value string) error {
	o := pc.Options
	if negated {
		o.append_mode = 0
		return nil
	}
	if o.server != 0 {
		o.append_mode++
	} else {
		o.append_mode = 1
	}
	return nil
}

func optAppendVerify(pc *Context, opt *poptOption, negated bool, value string) error {
	pc.Options.append_mode = 2
	return nil
}

func optDeleteDelay(pc *Context, opt *poptOption, negated bool, value string) error {
	pc.Options.delete_during = 2
	return nil
}

func optDeleteMissingArgs(pc *Context, opt *poptOption, negated bool, value string) error {
	pc.Options.missing_args = 2
	return nil
}

func optIgnoreMissingArgs(pc *Context, opt *poptOption, negated bool, value string) error {
	if pc.Options.missing_args == 0 {
		pc.Options.missing_args = 1
	}
	return nil
}

func optRemoveSentFiles(pc *Context, opt *poptOption, negated bool, value string) error {
	pc.Options.remove_source_files = 2
	return nil
}

func optCompareDest(pc *Context, opt *poptOption, negated bool, value string) error {
	o := pc.Options
	o.compare_dest = 1
	o.basis_dirs = append(o.basis_dirs, value)
	return nil
}

func optCopyDest(pc *Context, opt *poptOption, negated bool, value string) error {
	o := pc.Options
	o.copy_dest = 1
	o.basis_dirs = append(o.basis_dirs, value)
	return nil
}

func optLinkDest(pc *Context, opt *poptOption, negated bool, value string) error {
	o := pc.Options
	o.link_dest = 1
	o.basis_dirs = append(o.basis_dirs, value)
	return nil
}

func optOldCompress(pc *Context, opt *poptOption, negated bool, value string) error {
	pc.Options.compress_choice = "zlib"
	return nil
}

func optNewCompress(pc *Context, opt *poptOption, negated bool, value string) error {
	pc.Options.compress_choice = "zlibx"
	return nil
}

func optUsermap(pc *Context, opt *poptOption, negated bool, value string) error {
	o := pc.Options
	if o.usermap != "" {
		return poptError(POPT_ERROR_BADOPERATION, "--usermap/--chown specified more than once")
	}
	o.usermap = value
	return nil
}

func optGroupmap(pc *Context, opt *poptOption, negated bool, value string) error {
	o := pc.Options
	if o.groupmap != "" {
		return poptError(POPT_ERROR_BADOPERATION, "--groupmap/--chown specified more than once")
	}
	o.groupmap = value
	return nil
}

// optChown translates --chown=USER[:GROUP] into the equivalent catch-all
// usermap/groupmap entries.
func optChown(pc *Context, opt *poptOption, negated bool, value string) error {
	user, group, found := strings.Cut(value, ":")
	if user != "" {
		if err := optUsermap(pc, opt, false, "*:"+user); err != nil {
			return err
		}
	}
	if found && group != "" {
		if err := optGroupmap(pc, opt, false, "*:"+group); err != nil {
			return err
		}
	}
	return nil
}

func optRemoteOption(pc *Context, opt *poptOption, negated bool, value string) error {
	o := pc.Options
	if !strings.HasPrefix(value, "-") {
		return poptError(POPT_ERROR_BADOPERATION, "remote option %q must start with a dash", value)
	}
	if len(o.remote_options) == 0 {
		// slot 0 stays reserved for the remote program name
		o.remote_options = append(o.remote_options, "")
	}
	o.remote_options = append(o.remote_options, value)
	return nil
}

func optReadBatch(pc *Context, opt *poptOption, negated bool, value string) error {
	o := pc.Options
	o.batch_name = value
	o.read_batch = 1
	return nil
}

func optWriteBatch(pc *Context, opt *poptOption, negated bool, value string) error {
	o := pc.Options
	o.batch_name = value
	o.write_batch = 1
	return nil
}

func optOnlyWriteBatch(pc *Context, opt *poptOption, negated bool, value string) error {
	o := pc.Options
	o.batch_name = value
	o.write_batch = -1
	return nil
}

func optMaxSize(pc *Context, opt *poptOption, negated bool, value string) error {
	size, err := ParseSize(value, "b")
	if err != nil {
		return poptError(POPT_ERROR_BADNUMBER, "invalid --max-size value %q: %v", value, err)
	}
	pc.Options.max_size = size
	return nil
}

func optMinSize(pc *Context, opt *poptOption, negated bool, value string) error {
	size, err := ParseSize(value, "b")
	if err != nil {
		return poptError(POPT_ERROR_BADNUMBER, "invalid --min-size value %q: %v", value, err)
	}
	pc.Options.min_size = size
	return nil
}

func optBwlimit(pc *Context, opt *poptOption, negated bool, value string) error {
	if negated {
		pc.Options.bwlimit = 0
		return nil
	}
	size, err := ParseSize(value, "K")
	if err != nil {
		return poptError(POPT_ERROR_BADNUMBER, "invalid --bwlimit value %q: %v", value, err)
	}
	pc.Options.bwlimit = size
	return nil
}

func optIPv4(pc *Context, opt *poptOption, negated bool, value string) error {
	pc.Options.default_af_hint = syscall.AF_INET
	return nil
}

func optIPv6(pc *Context, opt *poptOption, negated bool, value string) error {
	pc.Options.default_af_hint = syscall.AF_INET6
	return nil
}

func optSender(pc *Context, opt *poptOption, negated bool, value string) error {
	o := pc.Options
	if o.server == 0 {
		return poptError(POPT_ERROR_BADOPERATION, "--sender only allowed with --server")
	}
	o.sender = 1
	return nil
}
