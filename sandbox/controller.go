//go:build linux

package sandbox

import (
	"fmt"
	"sync"

	"github.com/porkg-dev/sandboxcore/clone"
	"github.com/porkg-dev/sandboxcore/idmap"
	"github.com/porkg-dev/sandboxcore/ipc"
	"github.com/porkg-dev/sandboxcore/proc"
)

// Controller owns a zygote process and is the host process's only
// entry point into the sandbox core. newTask must always return a fresh,
// zero-valued instance of the single task type this zygote will decode —
// original_source's Zygote<T, S> pins T at compile time via a generic
// parameter; this port uses a factory function instead, which reads more
// naturally in Go and sidesteps the pointer-receiver generics dance for a
// single compile-time type.
type Controller struct {
	conn    *ipc.Conn
	zygote  *proc.ChildProcess
	newTask func() Task

	mu sync.Mutex
}

// Start creates the zygote: a socketpair, a clone with no namespace flags
// (matching original_source's create_zygote — the zygote itself shares
// the host's namespaces; only its workers are isolated), and the HELLO
// handshake.
//
// Start must be called before the hosting process spawns other goroutines
// that might themselves be mid-syscall during the clone: see SPEC_FULL.md
// §5 for why cloning a multi-threaded process is unsafe here.
func Start(newTask func() Task) (*Controller, error) {
	parentConn, childConn, err := ipc.Pair()
	if err != nil {
		return nil, fmt.Errorf("create zygote socketpair: %w", err)
	}

	tools := idmap.FindTools()

	pid, err := clone.Clone(func() int {
		parentConn.Close()
		if err := zygoteMain(childConn, tools, newTask); err != nil {
			return 1
		}
		return 0
	}, 0)
	if err != nil {
		parentConn.Close()
		childConn.Close()
		return nil, fmt.Errorf("clone zygote process: %w", err)
	}
	childConn.Close()

	c := &Controller{
		conn:    parentConn,
		zygote:  proc.NewChildProcess(pid),
		newTask: newTask,
	}
	if err := c.conn.SendByte(Hello); err != nil {
		c.Close()
		return nil, fmt.Errorf("send hello: %w", err)
	}
	return c, nil
}

// SpawnAsync asks the zygote to spawn a worker running task, with fds
// passed alongside it. Concurrent callers are serialized: the command
// byte and the framed task message must travel back to back on the wire
// without another caller's bytes interleaving.
func (c *Controller) SpawnAsync(task Task, fds []int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SendByte(Start); err != nil {
		return fmt.Errorf("send start command: %w", err)
	}
	payload, err := task.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if err := c.conn.SendMessage(payload, fds); err != nil {
		return fmt.Errorf("send task message: %w", err)
	}
	return nil
}

// Close tears down the connection to the zygote and reaps it.
func (c *Controller) Close() error {
	_ = c.conn.Close()
	return c.zygote.Close()
}
