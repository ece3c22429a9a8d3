// Package timing multiplexes any number of scheduled callbacks onto a single
// concrete timer.
//
// A Minder keeps a deadline ordered set of callbacks and decides which one
// fires next. It never sleeps and never starts goroutines: whenever its queue
// changes it calls the one hook of its Backend, Arm, with the delay until the
// nearest deadline (or a disarm request when the queue is empty). The backend
// owns the real timer and calls Minder.Run when it expires.
//
// This package ships three backends, one per concurrency substrate:
//
//   - ChanBackend for select based event loops. The loop owns the minder,
//     selects on ChanBackend.C and calls Run on expiry.
//   - FuncBackend for OS timer callbacks (time.AfterFunc). An optional dispatch
//     function marshals Run back onto the goroutine that owns the minder.
//   - VirtualScheduler for virtual time. Nothing fires until the test (or a
//     simulation) advances the clock, which makes timeout behavior deterministic.
//
// # Concurrency
//
// A Minder is not safe for concurrent use. NotifyAfter, NotifyAt, Remove and Run
// must all execute on one logical thread of control. Backends that fire on
// another goroutine have to hand Run back to that thread (see FuncBackend).
package timing
