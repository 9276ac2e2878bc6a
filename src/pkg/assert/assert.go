package assert

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// Assert panics with the caller's location when condition does not hold.
// The optional arguments are a format string followed by its operands.
func Assert(condition bool, args ...any) {
	if condition {
		return
	}

	_, file, line, ok := runtime.Caller(1)
	if !ok {
		file = "unknown"
		line = 0
	}

	where := fmt.Sprintf("%s:%d", filepath.Base(file), line)
	if len(args) == 0 {
		panic("Assertion failed at " + where)
	}

	format, isString := args[0].(string)
	if !isString {
		panic(fmt.Sprintf("Assertion failed at %s: %v", where, args))
	}
	panic(fmt.Sprintf("Assertion failed: %s at %s", fmt.Sprintf(format, args[1:]...), where))
}

func NoError(err error) {
	if err != nil {
		Assert(false, "expected no error, got: %v", err)
	}
}
