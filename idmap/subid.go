//go:build linux

package idmap

import (
	"bufio"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"
)

// SubidRange reads the first range in an /etc/subuid or /etc/subgid-style
// file matching username, returning its start and length.
//
// Grounded on HQarroum-microbox/sandbox/id.go's firstSubidRange.
func SubidRange(path, username string) (start, length uint32, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ":")
		if len(parts) != 3 || parts[0] != username {
			continue
		}
		s, err1 := strconv.ParseUint(parts[1], 10, 32)
		l, err2 := strconv.ParseUint(parts[2], 10, 32)
		if err1 != nil || err2 != nil || l == 0 {
			continue
		}
		return uint32(s), uint32(l), nil
	}
	if err := sc.Err(); err != nil {
		return 0, 0, fmt.Errorf("scan %s: %w", path, err)
	}
	return 0, 0, fmt.Errorf("no entry for user %q in %s", username, path)
}

// RootlessMappings builds the typical mapping set a rootless zygote passes
// to newuidmap/newgidmap: the sandbox's root (0) mapped across the user's
// full subuid/subgid range, plus selfID (the caller's own uid or gid)
// mapped to itself so files it owns stay accessible inside the sandbox.
func RootlessMappings(subidFile string, selfID uint32) ([]Mapping, error) {
	usr, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("user.Current: %w", err)
	}
	start, length, err := SubidRange(subidFile, usr.Username)
	if err != nil {
		return nil, fmt.Errorf("configure %s (e.g. %q) or run as root: %w",
			subidFile, usr.Username+":100000:65536", err)
	}
	return []Mapping{
		{ChildStart: 0, HostStart: start, Length: length},
		IdentityToRoot(selfID),
	}, nil
}
