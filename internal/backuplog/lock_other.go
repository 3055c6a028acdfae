//go:build !unix

package backuplog

// fileLock is a no-op where flock(2) is unavailable; the store mutex still
// serializes writers inside one process.
type fileLock struct{}

func lockFile(string) (*fileLock, error) { return &fileLock{}, nil }

func (l *fileLock) unlock() error { return nil }
