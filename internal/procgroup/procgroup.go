// Package procgroup groups spawned child processes so they are torn down
// together with the supervisor.
//
// On Windows the group is a job object configured with
// JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE: the kernel kills every member when the
// last handle closes, including when the supervisor crashes. On Linux each
// child gets its own process group plus a parent-death signal. Other unix
// systems only get the process group and rely on Close.
package procgroup

import "errors"

var (
	ErrClosed     = errors.New("process group tracker is closed")
	ErrNilProcess = errors.New("process is nil")
)
