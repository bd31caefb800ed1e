// Package rsyncproto contains a sans-I/O Go implementation of the rsync wire
// protocol (versions 29 through 31).
//
// The packages in this module never touch sockets, TLS or the file system:
// callers append received bytes to a session, parse events out of it, invoke
// actions, and drain the session’s output buffer onto their own transport.
// rsync daemon is a custom (un-standardized) network protocol, running on
// port 873 by default.
package rsyncproto
