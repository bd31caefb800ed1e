package rsyncwire

import "fmt"

const (
	MsgData  uint8 = 0
	MsgError uint8 = 1
	MsgInfo  uint8 = 2
)

const mplexBase = 7

// rsync.h defines IO_BUFFER_SIZE as 32 * 1024, but gokr-rsyncd increases it
// to 256K. Since we use this as the maximum message size, too, we need to at
// least match it.
const ioBufferSize = 256 * 1024
const maxMessageSize = ioBufferSize

// WriteMsg appends a multiplexed message: a 32-bit little-endian header
// combining tag and payload length, followed by the payload.
func (b *Buffer) WriteMsg(tag uint8, p []byte) error {
	if len(p) > maxMessageSize {
		return fmt.Errorf("rsyncwire: message length %d exceeds max message size (%d)", len(p), maxMessageSize)
	}
	header := uint32(mplexBase+tag)<<24 | uint32(len(p))
	b.WriteInt32(int32(header))
	b.Append(p)
	return nil
}

// ReadMsg consumes one multiplexed message and returns its tag and payload.
func (b *Buffer) ReadMsg() (tag uint8, p []byte, err error) {
	pos := b.pos
	header, err := b.ReadInt32()
	if err != nil {
		return 0, nil, err
	}
	code := uint8(uint32(header) >> 24)
	if code < mplexBase {
		b.pos = pos
		return 0, nil, fmt.Errorf("rsyncwire: invalid multiplex code %d in header %x", code, uint32(header))
	}
	tag = code - mplexBase
	length := uint32(header) & 0x00FFFFFF
	if length > maxMessageSize {
		// NOTE: if you run into this error, one alternative to bumping
		// maxMessageSize is to restructure the program to work with i/o buffer
		// windowing.
		b.pos = pos
		return 0, nil, fmt.Errorf("rsyncwire: length %d exceeds max message size (%d)", length, maxMessageSize)
	}
	p, err = b.ReadBytes(int(length))
	if err != nil {
		b.pos = pos
		return 0, nil, err
	}
	return tag, p, nil
}
