package platform

import (
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

const bufferSize = 1 << 20 // 1 MiB

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, bufferSize)
		return &b
	},
}

// copyReadWrite copies data using pread/pwrite with a pooled buffer.
func copyReadWrite(params CopyFileParams) (CopyResult, error) {
	srcFd, err := os.Open(params.SrcPath)
	if err != nil {
		return CopyResult{}, err
	}
	defer srcFd.Close()

	bufp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bufp)
	buf := *bufp

	var (
		offset  int64
		written int64
	)
	remaining := params.SrcSize
	srcRawFd := int(srcFd.Fd())
	dstRawFd := int(params.DstFd.Fd())

	for remaining > 0 {
		toRead := int(remaining)
		if toRead > bufferSize {
			toRead = bufferSize
		}

		n, err := unix.Pread(srcRawFd, buf[:toRead], offset)
		if err != nil {
			return CopyResult{BytesWritten: written, Method: ReadWrite}, err
		}
		if n == 0 {
			break
		}

		done := 0
		for done < n {
			w, err := unix.Pwrite(dstRawFd, buf[done:n], offset+int64(done))
			if err != nil {
				return CopyResult{BytesWritten: written + int64(done), Method: ReadWrite}, err
			}
			done += w
		}

		offset += int64(n)
		remaining -= int64(n)
		written += int64(n)
	}

	return CopyResult{BytesWritten: written, Method: ReadWrite}, nil
}

// isFallbackErr returns true if err should trigger a fallback to the
// next copy strategy.
func isFallbackErr(err error) bool {
	switch err {
	case unix.ENOSYS, unix.EXDEV, unix.EINVAL, unix.ENOTSUP:
		return true
	}
	if e, ok := err.(*os.PathError); ok {
		return isFallbackErr(e.Err)
	}
	return false
}
