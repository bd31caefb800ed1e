package rsyncproto

// rsync.h
const (
	XMIT_TOP_DIR             = (1 << 0)
	XMIT_SAME_MODE           = (1 << 1)
	XMIT_EXTENDED_FLAGS      = (1 << 2)
	XMIT_SAME_RDEV_pre28     = XMIT_EXTENDED_FLAGS /* Only in protocols < 28 */
	XMIT_SAME_UID            = (1 << 3)
	XMIT_SAME_GID            = (1 << 4)
	XMIT_SAME_NAME           = (1 << 5)
	XMIT_LONG_NAME           = (1 << 6)
	XMIT_SAME_TIME           = (1 << 7)
	XMIT_SAME_RDEV_MAJOR     = (1 << 8)  /* protocols 28 - now */
	XMIT_NO_CONTENT_DIR      = (1 << 8)  /* protocols 30 - now (w/XMIT_TOP_DIR) */
	XMIT_HLINKED             = (1 << 9)  /* protocols 28 - now */
	XMIT_SAME_DEV_pre30      = (1 << 10) /* protocols 28 - 29 */
	XMIT_USER_NAME_FOLLOWS   = (1 << 10) /* protocols 30 - now */
	XMIT_RDEV_MINOR_8_pre30  = (1 << 11) /* protocols 28 - 29 */
	XMIT_GROUP_NAME_FOLLOWS  = (1 << 11) /* protocols 30 - now */
	XMIT_HLINK_FIRST         = (1 << 12) /* protocols 30 - now (w/XMIT_HLINKED) */
	XMIT_MOD_NSEC            = (1 << 13) /* protocols 31 - now */
)

// as per /usr/include/bits/stat.h:
const (
	S_IFMT   = 0o0170000 // bits determining the file type
	S_IFDIR  = 0o0040000 // Directory
	S_IFCHR  = 0o0020000 // Character device
	S_IFBLK  = 0o0060000 // Block device
	S_IFREG  = 0o0100000 // Regular file
	S_IFIFO  = 0o0010000 // FIFO
	S_IFLNK  = 0o0120000 // Symbolic link
	S_IFSOCK = 0o0140000 // Socket
)

// ProtocolVersion defines the newest rsync protocol version this module
// speaks. Version 31 was introduced by rsync 3.1.0 (released 2013) and is
// what current rsync releases negotiate among themselves.
const ProtocolVersion = 31

// MinProtocolVersion is the oldest protocol version this module accepts
// during version negotiation. Peers announcing anything older are turned
// away with an error.
const MinProtocolVersion = 29
