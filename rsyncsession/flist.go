package rsyncsession

import (
	"fmt"

	"github.com/gokrazy/rsyncproto/internal/rsyncchecksum"
	"github.com/gokrazy/rsyncproto/rsyncflist"
)

// checksumFactory resolves the digest for the negotiated options and
// protocol version.
func (s *Session) checksumFactory() (rsyncchecksum.Factory, error) {
	return rsyncchecksum.Select(s.Opts.ChecksumChoice(), s.protocol)
}

// FileListEncoder returns an encoder that writes file-list entries into
// Out, bound to the negotiated options, protocol version and checksum
// digest. It is the sending server's first step after the COMMAND
// event; startIdx is the global index of the first entry (non-zero when
// incremental recursion continues an earlier list).
func (s *Session) FileListEncoder(startIdx int) (*rsyncflist.Encoder, error) {
	if s.state != StateDaemonServerSend {
		return nil, fmt.Errorf("cannot send a file list in state %v", s.state)
	}
	checksum, err := s.checksumFactory()
	if err != nil {
		return nil, err
	}
	return rsyncflist.NewEncoder(s.Out, s.Opts, s.protocol, checksum, startIdx), nil
}

// FileListDecoder returns a decoder that reads the sender's file list
// from In, bound to the negotiated options, protocol version and
// checksum digest. It is the first step of the receiving end: a client
// after StartRemoteSender, or a server whose COMMAND lacked --sender.
func (s *Session) FileListDecoder(startIdx int) (*rsyncflist.Decoder, error) {
	if s.state != StateReceiver && s.state != StateDaemonServerRun {
		return nil, fmt.Errorf("cannot receive a file list in state %v", s.state)
	}
	checksum, err := s.checksumFactory()
	if err != nil {
		return nil, err
	}
	return rsyncflist.NewDecoder(s.In, s.Opts, s.protocol, checksum, startIdx), nil
}
