package rsyncopts

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseSize(t *testing.T) {
	for _, tt := range []struct {
		arg           string
		defaultSuffix string
		want          int64
	}{
		{"0", "b", 0},
		{"10", "b", 10},
		{"1b", "b", 1},
		{"2k", "b", 2048},
		{"2K", "b", 2048},
		{"2KiB", "b", 2048},
		{"2kb", "b", 2000},
		{"1m", "b", 1048576},
		{"1mb", "b", 1000000},
		{"2.13gb", "b", 2130000000},
		{"2GiB", "b", 2147483648},
		{"100K+1", "b", 102401},
		{"1mb-1", "b", 999999},
		{".5k", "b", 512},
		// --bwlimit assumes KiB when no suffix is given.
		{"100", "K", 102400},
		{"100b", "K", 100},
	} {
		t.Run(tt.arg, func(t *testing.T) {
			got, err := ParseSize(tt.arg, tt.defaultSuffix)
			if err != nil {
				t.Fatalf("ParseSize(%q, %q) = %v", tt.arg, tt.defaultSuffix, err)
			}
			if got != tt.want {
				t.Errorf("ParseSize(%q, %q) = %d, want %d", tt.arg, tt.defaultSuffix, got, tt.want)
			}
		})
	}
}

func TestParseSizeError(t *testing.T) {
	for _, arg := range []string{
		"",
		".",
		"k",
		"12q",
		"1.2.3",
		"10 k",
		"999999999999m",
	} {
		t.Run(arg, func(t *testing.T) {
			if got, err := ParseSize(arg, "b"); err == nil {
				t.Errorf("ParseSize(%q) = %d, want error", arg, got)
			}
		})
	}
}

func TestParseArgumentsArchive(t *testing.T) {
	pc, err := ParseArguments([]string{"-avxH", "--delete"})
	if err != nil {
		t.Fatalf("ParseArguments: %v", err)
	}
	o := pc.Options
	for _, tt := range []struct {
		name string
		got  int
	}{
		{"recursive", o.recursive},
		{"owner", o.owner},
		{"group", o.group},
		{"perms", o.perms},
		{"times", o.times},
		{"devices", o.devices},
		{"specials", o.specials},
		{"links", o.links},
		{"verbose", o.verbose},
		{"one_file_system", o.one_file_system},
		{"hard_links", o.hard_links},
		{"delete", o.delete},
		// defaults that must survive parsing
		{"motd", o.motd},
		{"implied_dirs", o.implied_dirs},
		{"human_readable", o.human_readable},
		{"inc_recursive", o.inc_recursive},
	} {
		if tt.got != 1 {
			t.Errorf("%s = %d, want 1", tt.name, tt.got)
		}
	}
}

func TestParseArgumentsDefaults(t *testing.T) {
	pc, err := ParseArguments(nil)
	if err != nil {
		t.Fatalf("ParseArguments: %v", err)
	}
	o := pc.Options
	if !o.Motd() || !o.HumanReadable() || !o.IncRecursive() || !o.ImpliedDirs() {
		t.Errorf("default options not set: motd=%v human_readable=%v inc_recursive=%v implied_dirs=%v",
			o.Motd(), o.HumanReadable(), o.IncRecursive(), o.ImpliedDirs())
	}
	if got, want := o.ChecksumChoice(), "auto"; got != want {
		t.Errorf("ChecksumChoice() = %q, want %q", got, want)
	}
	if got, want := o.Protocol(), 31; got != want {
		t.Errorf("Protocol() = %d, want %d", got, want)
	}
}

func TestParseArguments(t *testing.T) {
	for _, tt := range []struct {
		args []string
		want func(o *Options) (string, bool)
	}{
		{
			args: []string{"--no-motd"},
			want: func(o *Options) (string, bool) { return "motd cleared", o.motd == 0 },
		},
		{
			args: []string{"--no-human-readable"},
			want: func(o *Options) (string, bool) { return "human_readable cleared", o.human_readable == 0 },
		},
		{
			// hyphens and underscores are interchangeable
			args: []string{"--human_readable"},
			want: func(o *Options) (string, bool) { return "human_readable set", o.human_readable == 2 },
		},
		{
			args: []string{"-vvv"},
			want: func(o *Options) (string, bool) { return "verbose incremented", o.verbose == 3 },
		},
		{
			args: []string{"--no-v"},
			want: func(o *Options) (string, bool) { return "verbose cleared", o.verbose == 0 },
		},
		{
			// a value-taking short option swallows the rest of the bundle
			args: []string{"-T/tmp"},
			want: func(o *Options) (string, bool) { return "temp_dir", o.temp_dir == "/tmp" },
		},
		{
			args: []string{"-T", "/tmp"},
			want: func(o *Options) (string, bool) { return "temp_dir", o.temp_dir == "/tmp" },
		},
		{
			args: []string{"--temp-dir=/tmp"},
			want: func(o *Options) (string, bool) { return "temp_dir", o.temp_dir == "/tmp" },
		},
		{
			args: []string{"--checksum-seed", "2342"},
			want: func(o *Options) (string, bool) { return "checksum_seed", o.checksum_seed == 2342 },
		},
		{
			args: []string{"--max-size=2.13gb"},
			want: func(o *Options) (string, bool) { return "max_size", o.max_size == 2130000000 },
		},
		{
			args: []string{"--bwlimit=100"},
			want: func(o *Options) (string, bool) { return "bwlimit", o.bwlimit == 102400 },
		},
		{
			args: []string{"--no-bwlimit"},
			want: func(o *Options) (string, bool) { return "bwlimit cleared", o.bwlimit == 0 },
		},
		{
			args: []string{"-P"},
			want: func(o *Options) (string, bool) {
				return "progress+partial", o.progress == 1 && o.partial == 1
			},
		},
		{
			args: []string{"--delete-missing-args"},
			want: func(o *Options) (string, bool) { return "missing_args", o.missing_args == 2 },
		},
		{
			args: []string{"--ignore-missing-args", "--delete-missing-args"},
			want: func(o *Options) (string, bool) { return "missing_args", o.missing_args == 2 },
		},
		{
			args: []string{"--append-verify"},
			want: func(o *Options) (string, bool) { return "append_mode", o.append_mode == 2 },
		},
		{
			args: []string{"--server", "--append", "--append"},
			want: func(o *Options) (string, bool) { return "append_mode counted", o.append_mode == 2 },
		},
		{
			args: []string{"--protect-args"},
			want: func(o *Options) (string, bool) { return "secluded_args", o.secluded_args == 1 },
		},
		{
			args: []string{"--ignore-non-existing"},
			want: func(o *Options) (string, bool) { return "existing", o.existing == 1 },
		},
		{
			args: []string{"--log-format=%i %n"},
			want: func(o *Options) (string, bool) { return "out_format", o.out_format == "%i %n" },
		},
		{
			args: []string{"--chown=nobody:nogroup"},
			want: func(o *Options) (string, bool) {
				return "usermap+groupmap", o.usermap == "*:nobody" && o.groupmap == "*:nogroup"
			},
		},
		{
			args: []string{"--old-compress"},
			want: func(o *Options) (string, bool) { return "compress_choice", o.compress_choice == "zlib" },
		},
		{
			args: []string{"--exclude=*.o", "--include=core", "-F", "-F"},
			want: func(o *Options) (string, bool) {
				want := []string{"- *.o", "+ core", ": /.rsync-filter", "- .rsync-filter"}
				return "filters", cmp.Diff(want, o.filters) == ""
			},
		},
		{
			args: []string{"--link-dest=/prev", "--link-dest=/older"},
			want: func(o *Options) (string, bool) {
				return "basis_dirs", o.link_dest == 1 && cmp.Diff([]string{"/prev", "/older"}, o.basis_dirs) == ""
			},
		},
		{
			args: []string{"--checksum-choice=none"},
			want: func(o *Options) (string, bool) {
				return "whole_file forced", o.whole_file == 1
			},
		},
	} {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			pc, err := ParseArguments(tt.args)
			if err != nil {
				t.Fatalf("ParseArguments: %v", err)
			}
			if desc, ok := tt.want(pc.Options); !ok {
				t.Errorf("%v: %s does not hold", tt.args, desc)
			}
		})
	}
}

// TestOptionTable runs every option in the table once with a
// representative value to catch descriptor typos.
func TestOptionTable(t *testing.T) {
	stringValues := map[string]string{
		"checksum-choice": "md5",
		"remote-option":   "-v",
		"chown":           "nobody:nogroup",
		"usermap":         "0-99:nobody",
		"groupmap":        "0-99:nogroup",
	}
	o := NewOptions()
	for _, opt := range o.table() {
		name := opt.name()
		t.Run(name, func(t *testing.T) {
			var args []string
			if opt.longName == "sender" {
				args = append(args, "--server")
			}
			switch opt.argInfo {
			case POPT_ARG_NONE:
				args = append(args, name)
			case POPT_ARG_STRING:
				value, ok := stringValues[opt.longName]
				if !ok {
					value = "value"
				}
				args = append(args, "--"+opt.longName+"="+value)
			case POPT_ARG_INT:
				args = append(args, "--"+opt.longName+"=42")
			case POPT_ARG_SIZE:
				args = append(args, "--"+opt.longName+"=1k")
			}
			if _, err := ParseArguments(args); err != nil {
				t.Errorf("ParseArguments(%q) = %v", args, err)
			}
		})
	}
}

func TestParseArgumentsError(t *testing.T) {
	for _, tt := range []struct {
		args []string
		want int32
	}{
		{
			args: []string{"--frobnicate"},
			want: POPT_ERROR_BADOPT,
		},
		{
			args: []string{"-Z"},
			want: POPT_ERROR_BADOPT,
		},
		{
			args: []string{"--temp-dir"},
			want: POPT_ERROR_NOARG,
		},
		{
			args: []string{"-T"},
			want: POPT_ERROR_NOARG,
		},
		{
			args: []string{"--delete=thoroughly"},
			want: POPT_ERROR_UNWANTEDARG,
		},
		{
			args: []string{"--timeout=soon"},
			want: POPT_ERROR_BADNUMBER,
		},
		{
			args: []string{"--timeout=99999999999"},
			want: POPT_ERROR_OVERFLOW,
		},
		{
			args: []string{"--max-size=1q"},
			want: POPT_ERROR_BADNUMBER,
		},
		{
			args: []string{"--usermap=a:b", "--usermap=c:d"},
			want: POPT_ERROR_BADOPERATION,
		},
		{
			args: []string{"--chown=nobody", "--usermap=a:b"},
			want: POPT_ERROR_BADOPERATION,
		},
		{
			args: []string{"-M", "verbose"},
			want: POPT_ERROR_BADOPERATION,
		},
		{
			args: []string{"--sender"},
			want: POPT_ERROR_BADOPERATION,
		},
		{
			args: []string{"src/", "-v"},
			want: POPT_ERROR_BADOPT,
		},
		{
			args: []string{"src/", "dst/", "extra/"},
			want: POPT_ERROR_BADOPT,
		},
	} {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			_, err := ParseArguments(tt.args)
			if err == nil {
				t.Fatalf("ParseArguments(%q) unexpectedly did not fail", tt.args)
			}
			var pe *PoptError
			if !errors.As(err, &pe) {
				t.Fatalf("ParseArguments(%q) = %v, want a *PoptError", tt.args, err)
			}
			if pe.Errno != tt.want {
				t.Errorf("ParseArguments(%q): errno = %d, want %d", tt.args, pe.Errno, tt.want)
			}
		})
	}
}

func TestMakeCoherentChecksum(t *testing.T) {
	if _, err := ParseArguments([]string{"--checksum-choice=xxh128"}); err == nil {
		t.Errorf("unknown checksum name unexpectedly accepted")
	}
}

func TestParseArgumentsRemaining(t *testing.T) {
	for _, tt := range []struct {
		args     []string
		want     []string
		wantSrc  string
		wantDest string
	}{
		{
			args:     []string{"-aH", "-e", "./rsync.test", "localhost:/tmp/src/", "/tmp/dst"},
			want:     []string{"localhost:/tmp/src/", "/tmp/dst"},
			wantSrc:  "localhost:/tmp/src/",
			wantDest: "/tmp/dst",
		},
		{
			args:    []string{"-a", "--", "--src-with-dashes"},
			want:    []string{"--src-with-dashes"},
			wantSrc: "--src-with-dashes",
		},
	} {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			pc, err := ParseArguments(tt.args)
			if err != nil {
				t.Fatalf("ParseArguments: %v", err)
			}
			if diff := cmp.Diff(tt.want, pc.RemainingArgs); diff != "" {
				t.Errorf("RemainingArgs: unexpected diff (-want +got):\n%s", diff)
			}
			if got := pc.Options.Source(); got != tt.wantSrc {
				t.Errorf("Source() = %q, want %q", got, tt.wantSrc)
			}
			if got := pc.Options.Dest(); got != tt.wantDest {
				t.Errorf("Dest() = %q, want %q", got, tt.wantDest)
			}
		})
	}
}

func TestServerOptions(t *testing.T) {
	pc, err := ParseArguments([]string{"-aH", "-M", "--partial-dir=.rsync-partial"})
	if err != nil {
		t.Fatalf("ParseArguments: %v", err)
	}
	got := pc.Options.ServerOptions()
	want := []string{"--server", "--sender", "-lHogDtpr", "--partial-dir=.rsync-partial"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ServerOptions(): unexpected diff (-want +got):\n%s", diff)
	}
}

func TestCommandOptions(t *testing.T) {
	pc, err := ParseArguments([]string{"-a"})
	if err != nil {
		t.Fatalf("ParseArguments: %v", err)
	}
	got := pc.Options.CommandOptions("module/dir")
	want := []string{"--server", "--sender", "-logDtpr", ".", "module/dir"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("CommandOptions(): unexpected diff (-want +got):\n%s", diff)
	}
}
