// Package thread pins a goroutine to its own kernel thread and gives that
// thread realtime scheduling. The radio driver's worker goroutine must
// answer a FIFO-threshold interrupt before the transceiver drains (or
// fills) the remaining FIFO headroom, a bound of a few milliseconds at
// 50 kbit/s; an ordinary SCHED_OTHER thread can miss that under load.
package thread

import (
	"runtime"
	"syscall"
	"unsafe"
)

// Scheduling policies passed to sched_setscheduler(2).
const (
	SchedFIFO = 1 // run to completion, no time slicing
	SchedRR   = 2 // round-robin among equal-priority realtime threads
)

// rtPriority sits in the lower middle of the 1..99 realtime range: ahead
// of every SCHED_OTHER task, but not competing with kernel IRQ threads.
const rtPriority = 10

type schedParam struct {
	priority int
}

// Realtime locks the calling goroutine to its kernel thread and switches
// that thread to round-robin realtime scheduling. Callers that cannot get
// realtime (no CAP_SYS_NICE, non-Linux rlimits) get an error and keep
// running at normal priority.
func Realtime() error {
	runtime.LockOSThread()
	tid := syscall.Gettid()
	param := schedParam{rtPriority}
	res, _, err := syscall.RawSyscall(syscall.SYS_SCHED_SETSCHEDULER,
		uintptr(tid), SchedRR, uintptr(unsafe.Pointer(&param)))
	if res == 0 {
		return nil
	}
	return err
}
