package console

import (
	"context"

	"github.com/mklimuk/dht20/snsctx"
)

// SetVerbose marks ctx so adapters dump their traffic.
func SetVerbose(parent context.Context, value bool) context.Context {
	Trace = value
	return snsctx.SetVerbose(parent, value)
}

func IsVerbose(ctx context.Context) bool {
	return snsctx.IsVerbose(ctx)
}
