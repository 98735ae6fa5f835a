//go:build linux

// Package net brings the loopback interface up inside a worker's new
// network namespace. Bridge networking (veth pairs, IPAM, iptables NAT)
// is out of scope for this module — see DESIGN.md for what was dropped
// from the teacher's fuller net package and why.
//
// Grounded on HQarroum-microbox/net/net.go's use of
// github.com/vishvananda/netlink.
package net

import (
	"fmt"

	"github.com/vishvananda/netlink"
)

// BringUpLoopback sets the "lo" interface to the UP state in the calling
// process's current network namespace. It must be called from inside the
// worker after it has been cloned into its own network namespace (a fresh
// net namespace starts with "lo" present but down, same as a freshly
// booted bridge-less container).
func BringUpLoopback() error {
	link, err := netlink.LinkByName("lo")
	if err != nil {
		return fmt.Errorf("find loopback interface: %w", err)
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("bring up loopback interface: %w", err)
	}
	return nil
}
