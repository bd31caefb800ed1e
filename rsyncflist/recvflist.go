package rsyncflist

import (
	"fmt"
	"strings"

	"github.com/gokrazy/rsyncproto"
	"github.com/gokrazy/rsyncproto/internal/rsyncchecksum"
	"github.com/gokrazy/rsyncproto/internal/rsyncopts"
	"github.com/gokrazy/rsyncproto/internal/rsyncwire"
	"golang.org/x/sys/unix"
)

// linux/limits.h
const pathMax = 4096

// A Decoder reads file-list entries from buf. A short read leaves the
// buffer cursor and the delta state untouched so that the same call can
// be retried once more bytes arrived.
type Decoder struct {
	buf      *rsyncwire.Buffer
	opts     *rsyncopts.Options
	protocol int32
	checksum rsyncchecksum.Factory

	last     cursor
	startIdx int
	entries  []*Entry

	// id→name mappings, filled inline (protocol >= 30) or from the
	// trailing tables read by ReadEnd.
	UidNames map[int32]string
	GidNames map[int32]string
}

func NewDecoder(buf *rsyncwire.Buffer, opts *rsyncopts.Options, protocolVersion int32, checksum rsyncchecksum.Factory, startIdx int) *Decoder {
	return &Decoder{
		buf:      buf,
		opts:     opts,
		protocol: protocolVersion,
		checksum: checksum,
		startIdx: startIdx,
		UidNames: make(map[int32]string),
		GidNames: make(map[int32]string),
	}
}

// ReadEntry decodes the next entry. It returns (nil, nil) once the
// terminating zero flags byte was consumed; the trailer then remains to
// be read with ReadEnd.
func (d *Decoder) ReadEntry() (*Entry, error) {
	pos := d.buf.Pos()
	saved := d.last
	e, err := d.readEntry()
	if err != nil {
		d.buf.SetPos(pos)
		d.last = saved
		return nil, err
	}
	if e != nil {
		d.entries = append(d.entries, e)
	}
	return e, nil
}

// rsync/flist.c:recv_file_entry
func (d *Decoder) readEntry() (*Entry, error) {
	b, err := d.buf.ReadByte()
	if err != nil {
		return nil, err
	}
	if b == 0 {
		return nil, nil
	}
	flags := uint16(b)
	if d.protocol >= 28 && flags&rsyncproto.XMIT_EXTENDED_FLAGS != 0 {
		b2, err := d.buf.ReadByte()
		if err != nil {
			return nil, err
		}
		flags |= uint16(b2) << 8
	}

	var l1 int
	if flags&rsyncproto.XMIT_SAME_NAME != 0 {
		l, err := d.buf.ReadByte()
		if err != nil {
			return nil, err
		}
		l1 = int(l)
	}
	var l2 int
	if flags&rsyncproto.XMIT_LONG_NAME != 0 {
		l, err := d.buf.ReadVarint32()
		if err != nil {
			return nil, err
		}
		l2 = int(l)
	} else {
		l, err := d.buf.ReadByte()
		if err != nil {
			return nil, err
		}
		l2 = int(l)
	}
	if l1 > len(d.last.name) || l2 < 0 || l2 >= pathMax-l1 {
		return nil, fmt.Errorf("file name overflow: flags=0x%x l1=%d l2=%d lastname=%q",
			flags, l1, l2, d.last.name)
	}
	suffix, err := d.buf.ReadBytes(l2)
	if err != nil {
		return nil, err
	}
	name := d.last.name[:l1] + string(suffix)

	e := &Entry{Name: name}
	if idx := strings.LastIndexByte(name, '/'); idx != -1 {
		e.Dir = name[:idx]
		e.Name = name[idx+1:]
	}

	if d.protocol >= 30 && d.opts.HardLinks() && flags&rsyncproto.XMIT_HLINKED != 0 {
		e.Flags |= FlagHlinked
		if flags&rsyncproto.XMIT_HLINK_FIRST == 0 {
			prev, err := d.buf.ReadVarint32()
			if err != nil {
				return nil, err
			}
			if int(prev) < d.startIdx {
				// Reference into an earlier sub-list: no further
				// fields were sent for this entry.
				d.commitName(name)
				return e, nil
			}
			if int(prev)-d.startIdx >= len(d.entries) {
				return nil, fmt.Errorf("hard link reference %d out of range", prev)
			}
			// The remaining fields were still sent; decode them as
			// usual so the delta cursors stay in sync.
		}
	}

	if e.Size, err = d.buf.ReadVarint64(3); err != nil {
		return nil, err
	}

	if flags&rsyncproto.XMIT_SAME_TIME != 0 {
		e.Mtime = d.last.mtime
	} else if d.protocol >= 30 {
		if e.Mtime, err = d.buf.ReadVarint64(4); err != nil {
			return nil, err
		}
	} else {
		t, err := d.buf.ReadInt32()
		if err != nil {
			return nil, err
		}
		e.Mtime = int64(t)
	}
	if flags&rsyncproto.XMIT_MOD_NSEC != 0 && d.protocol >= 31 {
		if e.MtimeNsec, err = d.buf.ReadVarint32(); err != nil {
			return nil, err
		}
	}

	if flags&rsyncproto.XMIT_SAME_MODE != 0 {
		e.Mode = d.last.mode
	} else if e.Mode, err = d.buf.ReadInt32(); err != nil {
		return nil, err
	}

	if e.IsDir() && flags&rsyncproto.XMIT_TOP_DIR != 0 {
		e.Flags |= FlagTopDir
		if d.protocol >= 30 && flags&rsyncproto.XMIT_NO_CONTENT_DIR == 0 {
			e.Flags |= FlagContentDir
		}
	}

	if d.opts.Owner() {
		if flags&rsyncproto.XMIT_SAME_UID != 0 {
			e.Uid = d.last.uid
		} else {
			if d.protocol < 30 {
				e.Uid, err = d.buf.ReadInt32()
			} else {
				e.Uid, err = d.buf.ReadVarint32()
			}
			if err != nil {
				return nil, err
			}
			if flags&rsyncproto.XMIT_USER_NAME_FOLLOWS != 0 && d.protocol >= 30 {
				if e.UserName, err = d.readName(); err != nil {
					return nil, err
				}
				d.UidNames[e.Uid] = e.UserName
			}
		}
	}

	if d.opts.Group() {
		if flags&rsyncproto.XMIT_SAME_GID != 0 {
			e.Gid = d.last.gid
		} else {
			if d.protocol < 30 {
				e.Gid, err = d.buf.ReadInt32()
			} else {
				e.Gid, err = d.buf.ReadVarint32()
			}
			if err != nil {
				return nil, err
			}
			if flags&rsyncproto.XMIT_GROUP_NAME_FOLLOWS != 0 && d.protocol >= 30 {
				if e.GroupName, err = d.readName(); err != nil {
					return nil, err
				}
				d.GidNames[e.Gid] = e.GroupName
			}
		}
	}

	if (e.IsDevice() && d.opts.Devices()) || (e.IsSpecial() && d.opts.Specials()) {
		switch {
		case d.protocol < 28:
			if flags&rsyncproto.XMIT_SAME_RDEV_pre28 != 0 {
				e.Rdev = d.last.rdev
			} else {
				rdev, err := d.buf.ReadInt32()
				if err != nil {
					return nil, err
				}
				e.Rdev = uint64(rdev)
			}
		default:
			major := unix.Major(d.last.rdev)
			if flags&rsyncproto.XMIT_SAME_RDEV_MAJOR == 0 {
				m, err := d.buf.ReadVarint32()
				if err != nil {
					return nil, err
				}
				major = uint32(m)
			}
			var minor uint32
			if d.protocol < 30 && flags&rsyncproto.XMIT_RDEV_MINOR_8_pre30 != 0 {
				m, err := d.buf.ReadByte()
				if err != nil {
					return nil, err
				}
				minor = uint32(m)
			} else if d.protocol < 30 {
				m, err := d.buf.ReadInt32()
				if err != nil {
					return nil, err
				}
				minor = uint32(m)
			} else {
				m, err := d.buf.ReadVarint32()
				if err != nil {
					return nil, err
				}
				minor = uint32(m)
			}
			e.Rdev = unix.Mkdev(major, minor)
		}
	}

	if d.opts.Links() && e.IsSymlink() {
		l, err := d.buf.ReadVarint32()
		if err != nil {
			return nil, err
		}
		if l < 0 || l >= pathMax {
			return nil, fmt.Errorf("symlink target overflow: %d bytes", l)
		}
		target, err := d.buf.ReadBytes(int(l))
		if err != nil {
			return nil, err
		}
		e.Symlink = string(target)
	}

	if d.opts.HardLinks() && !e.IsDir() && d.protocol < 30 {
		if d.protocol < 26 {
			dev, err := d.buf.ReadInt32()
			if err != nil {
				return nil, err
			}
			ino, err := d.buf.ReadInt32()
			if err != nil {
				return nil, err
			}
			e.Dev = int64(dev) - 1
			e.Ino = int64(ino)
		} else {
			if flags&rsyncproto.XMIT_SAME_DEV_pre30 != 0 {
				e.Dev = d.last.dev
			} else {
				dev, err := d.buf.ReadInt64()
				if err != nil {
					return nil, err
				}
				e.Dev = dev - 1
			}
			if e.Ino, err = d.buf.ReadInt64(); err != nil {
				return nil, err
			}
		}
	}

	if d.opts.Checksum() {
		if e.IsRegular() {
			sum, err := d.buf.ReadBytes(d.checksum().Size())
			if err != nil {
				return nil, err
			}
			e.Sum = append([]byte(nil), sum...)
		} else if d.protocol < 28 {
			if _, err := d.buf.ReadBytes(d.checksum().Size()); err != nil {
				return nil, err
			}
		}
	}

	d.last = cursor{
		name:  name,
		mode:  e.Mode,
		uid:   e.Uid,
		gid:   e.Gid,
		mtime: e.Mtime,
		rdev:  e.Rdev,
		dev:   e.Dev,
	}
	return e, nil
}

func (d *Decoder) commitName(name string) {
	d.last.name = name
}

func (d *Decoder) readName() (string, error) {
	l, err := d.buf.ReadByte()
	if err != nil {
		return "", err
	}
	b, err := d.buf.ReadBytes(int(l))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadEnd consumes the list trailer: the id→name tables of protocols
// below 30, then the I/O error flag. Like ReadEntry, a short read leaves
// the cursor unchanged.
func (d *Decoder) ReadEnd() (ioErrors int32, err error) {
	pos := d.buf.Pos()
	ioErrors, err = d.readEnd()
	if err != nil {
		d.buf.SetPos(pos)
		return 0, err
	}
	return ioErrors, nil
}

// rsync/uidlist.c:recv_id_list
func (d *Decoder) readIdList(into map[int32]string) error {
	for {
		id, err := d.buf.ReadInt32()
		if err != nil {
			return err
		}
		if id == 0 {
			return nil
		}
		name, err := d.readName()
		if err != nil {
			return err
		}
		into[id] = name
	}
}

func (d *Decoder) readEnd() (int32, error) {
	if d.protocol < 30 {
		if d.opts.Owner() && !d.opts.NumericIds() {
			if err := d.readIdList(d.UidNames); err != nil {
				return 0, err
			}
		}
		if d.opts.Group() && !d.opts.NumericIds() {
			if err := d.readIdList(d.GidNames); err != nil {
				return 0, err
			}
		}
	}
	return d.buf.ReadInt32()
}
