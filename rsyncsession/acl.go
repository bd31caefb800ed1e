package rsyncsession

import (
	"fmt"
	"net"
	"strings"
)

// CheckACL evaluates a module's access control list against the remote
// address. Entries have the form "allow|deny <all|ipnet>"; the first
// matching entry wins and an empty list allows everyone.
//
// rsync/access.c:allow_access
func CheckACL(acls []string, remoteAddr net.Addr) error {
	if len(acls) == 0 {
		return nil
	}
	host, _, err := net.SplitHostPort(remoteAddr.String())
	if err != nil {
		return fmt.Errorf("BUG: invalid remote address %q", remoteAddr.String())
	}
	remoteIP := net.ParseIP(host)
	if remoteIP == nil {
		return fmt.Errorf("BUG: invalid remote host %q", host)
	}
	for _, acl := range acls {
		action, who, ok := strings.Cut(acl, " ")
		if !ok {
			return fmt.Errorf("invalid acl: %q (no space found)", acl)
		}
		if action != "allow" && action != "deny" {
			return fmt.Errorf("invalid acl: %q (syntax: allow|deny <all|ipnet>)", acl)
		}
		if who != "all" {
			_, net, err := net.ParseCIDR(who)
			if err != nil {
				return fmt.Errorf("invalid acl: %q (syntax: allow|deny <all|ipnet>)", acl)
			}
			if !net.Contains(remoteIP) {
				continue
			}
		}
		if action == "deny" {
			return fmt.Errorf("access denied (acl %q)", acl)
		}
		return nil
	}
	return nil
}
