//go:build windows

package console

import "os"

// Windows has no SIGWINCH; the size is only reported on resize requests.
func notifyResize(ch chan<- os.Signal) {}
