package rsyncopts

import "fmt"

func (o *Options) CommandOptions(path string, paths ...string) []string {
	return append(o.ServerOptions(), append([]string{".", path}, paths...)...)
}

// rsync/options.c:server_options
func (o *Options) ServerOptions() []string {
	sargv := []string{"--server"}

	if !o.Sender() {
		sargv = append(sargv, "--sender")
	}

	argstr := "-"
	for i := 0; i < o.verbose; i++ {
		argstr += "v"
	}
	// the -q option is intentionally left out
	if o.update != 0 {
		argstr += "u"
	}
	if o.DryRun() {
		argstr += "n"
	}
	if o.Links() {
		argstr += "l"
	}
	if o.copy_links != 0 {
		argstr += "L"
	}
	if o.whole_file > 0 {
		argstr += "W"
	}
	if o.HardLinks() {
		argstr += "H"
	}
	if o.Owner() {
		argstr += "o"
	}
	if o.Group() {
		argstr += "g"
	}
	if o.Devices() {
		argstr += "D"
	}
	if o.Times() {
		argstr += "t"
	}
	if o.Perms() {
		argstr += "p"
	}
	if o.Recursive() {
		argstr += "r"
	}
	if o.Checksum() {
		argstr += "c"
	}
	if o.ignore_times != 0 {
		argstr += "I"
	}
	if o.relative != 0 {
		argstr += "R"
	}
	if o.OneFileSystem() {
		argstr += "x"
	}
	if o.sparse != 0 {
		argstr += "S"
	}
	if o.compress != 0 {
		argstr += "z"
	}
	// Make a remote --list-only produce a recursive listing.
	if o.ListOnly() && !o.Recursive() {
		argstr += "r"
	}
	if argstr != "-" {
		sargv = append(sargv, argstr)
	}

	if o.Specials() && !o.Devices() {
		sargv = append(sargv, "--specials")
	}
	if o.block_size != 0 {
		sargv = append(sargv, fmt.Sprintf("-B%d", o.block_size))
	}
	if o.Delete() {
		sargv = append(sargv, "--delete")
	}
	if o.Timeout() != 0 {
		sargv = append(sargv, fmt.Sprintf("--timeout=%d", o.Timeout()))
	}
	if o.Bwlimit() != 0 {
		sargv = append(sargv, fmt.Sprintf("--bwlimit=%d", o.Bwlimit()/1024))
	}
	if o.max_size != 0 {
		sargv = append(sargv, fmt.Sprintf("--max-size=%d", o.max_size))
	}
	if o.min_size != 0 {
		sargv = append(sargv, fmt.Sprintf("--min-size=%d", o.min_size))
	}
	if o.Partial() {
		sargv = append(sargv, "--partial")
	}
	if o.NumericIds() {
		sargv = append(sargv, "--numeric-ids")
	}
	if o.existing != 0 {
		sargv = append(sargv, "--existing")
	}
	if o.ignore_existing != 0 {
		sargv = append(sargv, "--ignore-existing")
	}
	if o.temp_dir != "" {
		sargv = append(sargv, "--temp-dir", o.temp_dir)
	}

	// Slot 0 is reserved so that remote_options stays non-nil once
	// the first -M option was seen.
	if len(o.remote_options) > 1 {
		sargv = append(sargv, o.remote_options[1:]...)
	}

	return sargv
}
