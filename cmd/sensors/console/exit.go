package console

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// Exit codes reported by the sensors cli
const (
	ExitFailure   = 1
	ExitNotReady  = 2
	ExitTransport = 3
	ExitTimeout   = 4
)

func Exit(code int, msg string, args ...interface{}) cli.ExitCoder {
	return cli.Exit(fmt.Sprintf(msg, args...), code)
}
