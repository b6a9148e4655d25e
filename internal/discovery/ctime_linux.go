//go:build linux

package discovery

import (
	"os"
	"syscall"
	"time"
)

// Linux does not expose birth time through Stat_t; the status change time is
// the closest portable stand-in.
func creationTime(fi os.FileInfo) time.Time {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return time.Unix(int64(st.Ctim.Sec), int64(st.Ctim.Nsec))
	}
	return fi.ModTime()
}
