package assembly

import (
	"runtime"
	"strconv"
	"strings"
)

// goid returns the current goroutine ID. It is the owner token of a slot
// under construction and of the lifetime driver, so re-entrant calls from the
// same goroutine are reported instead of blocking.
func goid() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	idField := strings.Fields(strings.TrimPrefix(string(buf[:n]), "goroutine "))[0]
	id, _ := strconv.ParseInt(idField, 10, 64)
	return id
}
