package preflight

import (
	"fmt"
	"path/filepath"
	"syscall"
)

const (
	// MinDiskSpaceBytes is the free space below which indexing is refused.
	MinDiskSpaceBytes = 100 * 1024 * 1024

	// MinFileDescriptors is the recommended descriptor limit.
	MinFileDescriptors = 1024
)

// CheckDiskSpace reports free space on the filesystem holding path. path
// need not exist yet; its nearest existing parent is measured.
func CheckDiskSpace(path string) Result {
	r := Result{Name: "disk_space", Required: true}

	var stat syscall.Statfs_t
	for {
		err := syscall.Statfs(path, &stat)
		if err == nil {
			break
		}
		parent := filepath.Dir(path)
		if parent == path {
			r.Status = StatusFail
			r.Message = fmt.Sprintf("failed to check disk space: %v", err)
			return r
		}
		path = parent
	}

	avail := stat.Bavail * uint64(stat.Bsize)
	r.Message = fmt.Sprintf("%s free (minimum: %s)", formatBytes(avail), formatBytes(MinDiskSpaceBytes))
	if avail < MinDiskSpaceBytes {
		r.Status = StatusFail
	}
	return r
}

// CheckFileDescriptors reports the open file limit. Low limits only slow
// down large corpora, so this never fails.
func CheckFileDescriptors() Result {
	r := Result{Name: "file_descriptors"}

	var lim syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &lim); err != nil {
		r.Status = StatusWarn
		r.Message = fmt.Sprintf("failed to read limit: %v", err)
		return r
	}
	r.Message = fmt.Sprintf("%d (recommended: %d)", lim.Cur, MinFileDescriptors)
	if lim.Cur < MinFileDescriptors {
		r.Status = StatusWarn
		r.Details = fmt.Sprintf("run 'ulimit -n %d' to raise it", MinFileDescriptors*10)
	}
	return r
}
