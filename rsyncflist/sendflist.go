package rsyncflist

import (
	"fmt"

	"github.com/gokrazy/rsyncproto"
	"github.com/gokrazy/rsyncproto/internal/rsyncchecksum"
	"github.com/gokrazy/rsyncproto/internal/rsyncopts"
	"github.com/gokrazy/rsyncproto/internal/rsyncwire"
	"golang.org/x/sys/unix"
)

// cursor holds the previous entry's fields the delta coding compares
// against. Both directions of the codec carry one.
type cursor struct {
	name  string
	mode  int32
	uid   int32
	gid   int32
	mtime int64
	rdev  uint64
	dev   int64
}

// An Encoder writes file-list entries to buf in wire order. Entries must
// be written in their global index order: hard-link back references and
// the delta cursors depend on it.
type Encoder struct {
	buf      *rsyncwire.Buffer
	opts     *rsyncopts.Options
	protocol int32
	checksum rsyncchecksum.Factory

	last     cursor
	idx      int
	startIdx int
	inodes   map[int64]map[int64]int
	uidsSent map[int32]bool
	gidsSent map[int32]bool

	// id→name pairs collected for the trailing tables of protocols < 30
	uidNames []idName
	gidNames []idName
}

type idName struct {
	id   int32
	name string
}

func NewEncoder(buf *rsyncwire.Buffer, opts *rsyncopts.Options, protocolVersion int32, checksum rsyncchecksum.Factory, startIdx int) *Encoder {
	return &Encoder{
		buf:      buf,
		opts:     opts,
		protocol: protocolVersion,
		checksum: checksum,
		idx:      startIdx,
		startIdx: startIdx,
		inodes:   make(map[int64]map[int64]int),
		uidsSent: make(map[int32]bool),
		gidsSent: make(map[int32]bool),
	}
}

func commonPrefixLen(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	if n > 255 {
		n = 255
	}
	return n
}

// WriteEntry encodes one entry and advances the global index.
// rsync/flist.c:send_file_entry
func (enc *Encoder) WriteEntry(e *Entry) error {
	name := e.wpath()
	ndx := enc.idx
	enc.idx++

	var xflags uint16
	if e.IsDir() {
		if e.Flags&FlagTopDir != 0 {
			xflags |= rsyncproto.XMIT_TOP_DIR
			if enc.protocol >= 30 && e.Flags&FlagContentDir == 0 {
				xflags |= rsyncproto.XMIT_NO_CONTENT_DIR
			}
		}
	}

	sameMode := e.Mode == enc.last.mode
	if sameMode {
		xflags |= rsyncproto.XMIT_SAME_MODE
	}

	xmitRdev := (e.IsDevice() && enc.opts.Devices()) ||
		(e.IsSpecial() && enc.opts.Specials())
	major := unix.Major(e.Rdev)
	minor := unix.Minor(e.Rdev)
	sameRdev := e.Rdev == enc.last.rdev
	sameMajor := major == unix.Major(enc.last.rdev)
	minor8 := minor <= 0xFF
	if xmitRdev {
		if enc.protocol < 28 {
			if sameRdev {
				xflags |= rsyncproto.XMIT_SAME_RDEV_pre28
			}
		} else {
			if sameMajor {
				xflags |= rsyncproto.XMIT_SAME_RDEV_MAJOR
			}
			if enc.protocol < 30 && minor8 {
				xflags |= rsyncproto.XMIT_RDEV_MINOR_8_pre30
			}
		}
	}

	sameUid := e.Uid == enc.last.uid
	uidName := ""
	if enc.opts.Owner() {
		if sameUid {
			xflags |= rsyncproto.XMIT_SAME_UID
		} else if enc.protocol >= 30 && !enc.opts.NumericIds() &&
			e.UserName != "" && !enc.uidsSent[e.Uid] {
			uidName = e.UserName
			xflags |= rsyncproto.XMIT_USER_NAME_FOLLOWS
		}
	}

	sameGid := e.Gid == enc.last.gid
	gidName := ""
	if enc.opts.Group() {
		if sameGid {
			xflags |= rsyncproto.XMIT_SAME_GID
		} else if enc.protocol >= 30 && !enc.opts.NumericIds() &&
			e.GroupName != "" && !enc.gidsSent[e.Gid] {
			gidName = e.GroupName
			xflags |= rsyncproto.XMIT_GROUP_NAME_FOLLOWS
		}
	}

	sameTime := e.Mtime == enc.last.mtime
	if sameTime {
		xflags |= rsyncproto.XMIT_SAME_TIME
	}
	if enc.protocol >= 31 && e.MtimeNsec != 0 {
		xflags |= rsyncproto.XMIT_MOD_NSEC
	}

	l1 := commonPrefixLen(name, enc.last.name)
	suffix := name[l1:]
	if l1 > 0 {
		xflags |= rsyncproto.XMIT_SAME_NAME
	}
	if len(suffix) > 255 {
		xflags |= rsyncproto.XMIT_LONG_NAME
	}

	// Hard-link tracking. Protocol 30 replaced the trailing dev/ino
	// pairs with an index back reference to the first sighting.
	trackLinks := enc.opts.HardLinks() && !e.IsDir()
	hlinkPrev := -1
	if trackLinks && enc.protocol >= 30 && e.Ino != 0 {
		if prev, ok := enc.inodes[e.Dev][e.Ino]; ok {
			xflags |= rsyncproto.XMIT_HLINKED
			hlinkPrev = prev
		} else {
			if enc.inodes[e.Dev] == nil {
				enc.inodes[e.Dev] = make(map[int64]int)
			}
			enc.inodes[e.Dev][e.Ino] = ndx
			if e.Flags&FlagHlinked != 0 {
				xflags |= rsyncproto.XMIT_HLINKED | rsyncproto.XMIT_HLINK_FIRST
			}
		}
	}
	if trackLinks && enc.protocol >= 28 && enc.protocol < 30 && e.Dev == enc.last.dev {
		xflags |= rsyncproto.XMIT_SAME_DEV_pre30
	}

	if enc.protocol >= 28 {
		if xflags&0xFF00 != 0 || xflags == 0 {
			xflags |= rsyncproto.XMIT_EXTENDED_FLAGS
			enc.buf.WriteByte(byte(xflags))
			enc.buf.WriteByte(byte(xflags >> 8))
		} else {
			enc.buf.WriteByte(byte(xflags))
		}
	} else {
		// Guarantee a non-zero flags byte: zero terminates the list.
		if xflags&0xFF == 0 {
			if e.IsDir() {
				xflags |= rsyncproto.XMIT_LONG_NAME
			} else {
				xflags |= rsyncproto.XMIT_TOP_DIR
			}
		}
		enc.buf.WriteByte(byte(xflags))
	}

	if xflags&rsyncproto.XMIT_SAME_NAME != 0 {
		enc.buf.WriteByte(byte(l1))
	}
	if xflags&rsyncproto.XMIT_LONG_NAME != 0 {
		enc.buf.WriteVarint32(int32(len(suffix)))
	} else {
		enc.buf.WriteByte(byte(len(suffix)))
	}
	enc.buf.WriteString(suffix)

	if hlinkPrev >= 0 {
		enc.buf.WriteVarint32(int32(hlinkPrev))
		if hlinkPrev < enc.startIdx {
			// The receiver resolves the reference from an earlier
			// sub-list; it needs no further fields.
			enc.commit(e, name)
			return nil
		}
	}

	if err := enc.buf.WriteVarint64(e.Size, 3); err != nil {
		return err
	}

	if xflags&rsyncproto.XMIT_SAME_TIME == 0 {
		if enc.protocol >= 30 {
			if err := enc.buf.WriteVarint64(e.Mtime, 4); err != nil {
				return err
			}
		} else {
			enc.buf.WriteInt32(int32(e.Mtime))
		}
	}
	if xflags&rsyncproto.XMIT_MOD_NSEC != 0 {
		enc.buf.WriteVarint32(e.MtimeNsec)
	}

	if xflags&rsyncproto.XMIT_SAME_MODE == 0 {
		enc.buf.WriteInt32(e.Mode)
	}

	if enc.opts.Owner() && xflags&rsyncproto.XMIT_SAME_UID == 0 {
		if enc.protocol < 30 {
			enc.buf.WriteInt32(e.Uid)
			enc.rememberUid(e.Uid, e.UserName)
		} else {
			enc.buf.WriteVarint32(e.Uid)
			if xflags&rsyncproto.XMIT_USER_NAME_FOLLOWS != 0 {
				enc.buf.WriteByte(byte(len(uidName)))
				enc.buf.WriteString(uidName)
				enc.uidsSent[e.Uid] = true
			}
		}
	}

	if enc.opts.Group() && xflags&rsyncproto.XMIT_SAME_GID == 0 {
		if enc.protocol < 30 {
			enc.buf.WriteInt32(e.Gid)
			enc.rememberGid(e.Gid, e.GroupName)
		} else {
			enc.buf.WriteVarint32(e.Gid)
			if xflags&rsyncproto.XMIT_GROUP_NAME_FOLLOWS != 0 {
				enc.buf.WriteByte(byte(len(gidName)))
				enc.buf.WriteString(gidName)
				enc.gidsSent[e.Gid] = true
			}
		}
	}

	if xmitRdev {
		switch {
		case enc.protocol < 28:
			if xflags&rsyncproto.XMIT_SAME_RDEV_pre28 == 0 {
				enc.buf.WriteInt32(int32(e.Rdev))
			}
		case enc.protocol < 30:
			if xflags&rsyncproto.XMIT_SAME_RDEV_MAJOR == 0 {
				enc.buf.WriteVarint32(int32(major))
			}
			if xflags&rsyncproto.XMIT_RDEV_MINOR_8_pre30 != 0 {
				enc.buf.WriteByte(byte(minor))
			} else {
				enc.buf.WriteInt32(int32(minor))
			}
		default:
			if xflags&rsyncproto.XMIT_SAME_RDEV_MAJOR == 0 {
				enc.buf.WriteVarint32(int32(major))
			}
			enc.buf.WriteVarint32(int32(minor))
		}
	}

	if enc.opts.Links() && e.IsSymlink() {
		enc.buf.WriteVarint32(int32(len(e.Symlink)))
		enc.buf.WriteString(e.Symlink)
	}

	if trackLinks && enc.protocol < 30 {
		if enc.protocol < 26 {
			enc.buf.WriteInt32(int32(e.Dev) + 1)
			enc.buf.WriteInt32(int32(e.Ino))
		} else {
			if xflags&rsyncproto.XMIT_SAME_DEV_pre30 == 0 {
				enc.buf.WriteInt64(e.Dev + 1)
			}
			enc.buf.WriteInt64(e.Ino)
		}
	}

	if enc.opts.Checksum() {
		if e.IsRegular() {
			sum, err := rsyncchecksum.FileChecksum(enc.checksum, rsyncchecksum.FileSource{
				Sum:    e.Sum,
				Data:   e.Data,
				Handle: e.Handle,
				Path:   e.Path,
			})
			if err != nil {
				return fmt.Errorf("checksumming %s: %w", name, err)
			}
			enc.buf.WriteString(string(sum))
		} else if enc.protocol < 28 {
			zero := make([]byte, enc.checksum().Size())
			enc.buf.WriteString(string(zero))
		}
	}

	enc.commit(e, name)
	return nil
}

func (enc *Encoder) commit(e *Entry, name string) {
	enc.last = cursor{
		name:  name,
		mode:  e.Mode,
		uid:   e.Uid,
		gid:   e.Gid,
		mtime: e.Mtime,
		rdev:  e.Rdev,
		dev:   e.Dev,
	}
}

func (enc *Encoder) rememberUid(uid int32, name string) {
	if uid == 0 || name == "" || enc.uidsSent[uid] {
		return
	}
	enc.uidsSent[uid] = true
	enc.uidNames = append(enc.uidNames, idName{uid, name})
}

func (enc *Encoder) rememberGid(gid int32, name string) {
	if gid == 0 || name == "" || enc.gidsSent[gid] {
		return
	}
	enc.gidsSent[gid] = true
	enc.gidNames = append(enc.gidNames, idName{gid, name})
}

// WriteEnd terminates the list: a zero flags byte, the id→name tables
// (protocols < 30 send them trailing; 30 and newer interleave names into
// the entries), and the transfer-wide I/O error flag.
// rsync/flist.c:send_file_list
func (enc *Encoder) WriteEnd(ioErrors int32) {
	enc.buf.WriteByte(0)

	const endOfSet = 0
	if enc.protocol < 30 {
		if enc.opts.Owner() && !enc.opts.NumericIds() {
			for _, un := range enc.uidNames {
				enc.buf.WriteInt32(un.id)
				enc.buf.WriteByte(byte(len(un.name)))
				enc.buf.WriteString(un.name)
			}
			enc.buf.WriteInt32(endOfSet)
		}
		if enc.opts.Group() && !enc.opts.NumericIds() {
			for _, gn := range enc.gidNames {
				enc.buf.WriteInt32(gn.id)
				enc.buf.WriteByte(byte(len(gn.name)))
				enc.buf.WriteString(gn.name)
			}
			enc.buf.WriteInt32(endOfSet)
		}
	}

	enc.buf.WriteInt32(ioErrors)
}
