//go:build !linux && !darwin && !windows

package discovery

import (
	"os"
	"time"
)

func creationTime(fi os.FileInfo) time.Time {
	return fi.ModTime()
}
