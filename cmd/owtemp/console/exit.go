package console

import (
	"errors"
	"fmt"

	"github.com/mklimuk/owtemp"
	"github.com/urfave/cli/v2"
)

// ExitBusy is returned when the bus lock could not be taken in time. The
// command can be retried.
const ExitBusy = 75

func Exit(code int, msg string, args ...interface{}) cli.ExitCoder {
	return cli.Exit(fmt.Sprintf(msg, args...), code)
}

// Fail reports err in red, exiting with ExitBusy for lock timeouts and 1 for
// everything else.
func Fail(err error, msg string) cli.ExitCoder {
	code := 1
	if errors.Is(err, owtemp.ErrLockTimeout) {
		code = ExitBusy
	}
	return Exit(code, "%s: %s", msg, Red(err))
}
