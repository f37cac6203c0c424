// Package lockfile 单实例锁：同一台机器上第二个守护进程直接拒绝启动，
// 防止两个实例对同一账户重复下单。
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

var ErrAlreadyRunning = errors.New("another instance is already running")

// Acquire 在系统临时目录创建 <name>.lock 并写入当前 pid。
// 文件已存在且其 pid 仍然存活时返回 ErrAlreadyRunning；
// 持有者已死亡的残留锁会被清掉后重试一次。
func Acquire(name string) (release func(), err error) {
	path := filepath.Join(os.TempDir(), name+".lock")
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return func() { os.Remove(path) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock: %w", err)
		}
		pid, readErr := readPid(path)
		if readErr == nil && processAlive(pid) {
			return nil, fmt.Errorf("%w: pid %d holds %s", ErrAlreadyRunning, pid, path)
		}
		// 残留锁，持有者已不在
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, fmt.Errorf("remove stale lock: %w", rmErr)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, path)
}

func readPid(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(raw)))
}

// processAlive 用 signal 0 探测进程是否存在。
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
