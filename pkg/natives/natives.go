// Package natives provides the host-implemented functions installed as
// globals before a script runs, per spec.md §4.7's native-function surface.
package natives

import (
	"time"

	"github.com/kristofer/loxvm/pkg/object"
	"github.com/kristofer/loxvm/pkg/value"
)

// Register installs every native function loxvm ships into define, the
// way a native-function table gets wired into the VM before
// Run. define is typically *vm.VM's DefineNative method.
func Register(define func(name string, fn object.NativeFn)) {
	define("clock", clock)
}

// clock returns the wall-clock seconds elapsed since this package was
// initialized. It does not measure process CPU time, as the C original's
// clock()/CLOCKS_PER_SEC does.
func clock(argCount int, args []value.Value) (value.Value, error) {
	return value.NumberValue(time.Since(startTime).Seconds()), nil
}

var startTime = time.Now()
