package storage

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// caller returns a short "file:line" breadcrumb for the call skip frames
// up, used only by DbError.Verbose().
func caller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
