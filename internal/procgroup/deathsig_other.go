//go:build !windows && !linux

package procgroup

import "syscall"

func setDeathSignal(*syscall.SysProcAttr) {}
