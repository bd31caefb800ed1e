//go:build !linux

package maincmd

import "net"

func systemdListeners() ([]net.Listener, error) {
	// systemd socket activation is only available on Linux.
	return nil, nil
}
