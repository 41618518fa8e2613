//go:build linux

package appendfile

import "golang.org/x/sys/unix"

// dropPageCache advises the kernel that bytes already flushed to disk
// are unlikely to be read again soon, so it can evict them from the
// page cache instead of holding gigabytes of rolled log data resident.
// Best effort: errors are not actionable here and are ignored, mirroring
// the original FileUtil.cc comment about POSIX_FADV_DONTNEED.
func (a *AppendFile) dropPageCache() {
	_ = unix.Fadvise(int(a.file.Fd()), 0, 0, unix.FADV_DONTNEED)
}
