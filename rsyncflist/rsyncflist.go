// Package rsyncflist implements the file-list wire format of the rsync
// protocol: entries are delta-coded against their predecessor, with flag
// bits signaling which fields repeat the previous entry's values.
package rsyncflist

import (
	"io"
	"sort"

	"github.com/gokrazy/rsyncproto"
)

// Entry flags, kept per file between list construction and encoding.
// rsync.h: FLAG_*
const (
	FlagTopDir     = 1 << 0
	FlagContentDir = 1 << 1
	FlagImpliedDir = 1 << 2
	FlagDuplicate  = 1 << 3
	FlagHlinked    = 1 << 4
	FlagHlinkFirst = 1 << 5
)

// An Entry describes one file in a file list.
type Entry struct {
	Dir       string // directory part, "" for the transfer root
	Name      string // basename, "." for the root directory itself
	Mode      int32  // Unix mode bits incl. the S_IF* file type
	Uid       int32
	Gid       int32
	UserName  string // uid's name, "" when unknown
	GroupName string // gid's name, "" when unknown
	Mtime     int64  // seconds since the epoch
	MtimeNsec int32
	Size      int64
	Rdev      uint64 // combined major/minor for devices and specials
	Symlink   string // link target, "" for non-symlinks
	Dev       int64  // device/inode pair for hard-link detection
	Ino       int64

	// Contents of the file, consulted in this order when a digest is
	// needed. All may be left unset when --checksum is off.
	Sum    []byte
	Data   []byte
	Handle io.Reader
	Path   string

	Flags uint16 // Flag* bits
}

func (e *Entry) wpath() string {
	if e.Dir == "" {
		return e.Name
	}
	return e.Dir + "/" + e.Name
}

func (e *Entry) fileType() int32 { return e.Mode & rsyncproto.S_IFMT }

func (e *Entry) IsDir() bool     { return e.fileType() == rsyncproto.S_IFDIR }
func (e *Entry) IsRegular() bool { return e.fileType() == rsyncproto.S_IFREG }
func (e *Entry) IsSymlink() bool { return e.fileType() == rsyncproto.S_IFLNK }

func (e *Entry) IsDevice() bool {
	t := e.fileType()
	return t == rsyncproto.S_IFCHR || t == rsyncproto.S_IFBLK
}

func (e *Entry) IsSpecial() bool {
	t := e.fileType()
	return t == rsyncproto.S_IFIFO || t == rsyncproto.S_IFSOCK
}

// sortKey derives the canonical ordering and duplicate-detection key.
// Protocol 29 changed the ordering so that files sort before sibling
// subdirectories: non-directories substitute NUL for the final separator.
// rsync/flist.c:f_name_cmp
func (e *Entry) sortKey(protocolVersion int32) string {
	if protocolVersion < 29 {
		return e.wpath()
	}
	if e.IsDir() {
		if e.Name == "." {
			return e.Dir
		}
		return e.wpath()
	}
	if e.Dir == "" {
		return e.Name
	}
	return e.Dir + "\x00" + e.Name
}

// A FileList accumulates entries in insertion order. Insertion order
// determines each entry's global index (relevant for hard-link back
// references); SortAndClean computes the canonical sorted view.
type FileList struct {
	Entries []*Entry

	// StartIdx is the global index of Entries[0]. Incremental recursion
	// transfers multiple sub-lists within one index space.
	StartIdx int

	sorted []*Entry
}

// Add appends e and returns its global index.
func (fl *FileList) Add(e *Entry) int {
	fl.Entries = append(fl.Entries, e)
	fl.sorted = nil
	return fl.StartIdx + len(fl.Entries) - 1
}

func (fl *FileList) TotalSize() int64 {
	var total int64
	for _, e := range fl.Entries {
		if e.IsRegular() {
			total += e.Size
		}
	}
	return total
}

// Sorted returns the entries ordered by their protocol sort key. The
// result is cached until the next Add or SortAndClean.
func (fl *FileList) Sorted(protocolVersion int32) []*Entry {
	if fl.sorted != nil {
		return fl.sorted
	}
	s := make([]*Entry, len(fl.Entries))
	copy(s, fl.Entries)
	sort.SliceStable(s, func(i, j int) bool {
		return s[i].sortKey(protocolVersion) < s[j].sortKey(protocolVersion)
	})
	fl.sorted = s
	return s
}

// SortAndClean sorts the list and resolves entries sharing a sort key.
// The sender must keep duplicates on the wire (the indices have already
// been used), so it only marks them; everyone else merges:
// two directories merge their top-dir bits, a directory beats a file,
// and of two non-directories the later one is dropped.
// rsync/flist.c:flist_sort_and_clean
func (fl *FileList) SortAndClean(protocolVersion int32, sender bool) []*Entry {
	fl.sorted = nil
	s := fl.Sorted(protocolVersion)
	if sender {
		for i := 1; i < len(s); i++ {
			if s[i].sortKey(protocolVersion) == s[i-1].sortKey(protocolVersion) {
				s[i].Flags |= FlagDuplicate
			}
		}
		return s
	}
	out := make([]*Entry, 0, len(s))
	for _, e := range s {
		if len(out) == 0 {
			out = append(out, e)
			continue
		}
		prev := out[len(out)-1]
		if e.sortKey(protocolVersion) != prev.sortKey(protocolVersion) {
			out = append(out, e)
			continue
		}
		switch {
		case prev.IsDir() && e.IsDir():
			prev.Flags |= e.Flags & (FlagTopDir | FlagContentDir)
			if e.Flags&FlagImpliedDir == 0 {
				prev.Flags &^= FlagImpliedDir
			}
		case prev.IsDir():
			// the directory wins, drop the file
		case e.IsDir():
			out[len(out)-1] = e
		default:
			// keep the earlier of two non-directories
		}
	}
	fl.sorted = out
	return out
}

// Find reports whether the sorted list contains an entry with the given
// sort key.
// rsync/receiver.c:delete_files
func (fl *FileList) Find(protocolVersion int32, e *Entry) bool {
	s := fl.Sorted(protocolVersion)
	key := e.sortKey(protocolVersion)
	i := sort.Search(len(s), func(i int) bool {
		return s[i].sortKey(protocolVersion) >= key
	})
	return i < len(s) && s[i].sortKey(protocolVersion) == key
}
