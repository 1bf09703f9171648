package benchmark

import (
	"fmt"
	"strings"

	"github.com/yndnr/zonemesh-go/internal/peer/wire"
)

// PayloadSizes are the string argument sizes used by the codec and
// cipher benchmarks.
var PayloadSizes = []int{16, 256, 1024, 16384}

func sizeLabel(n int) string {
	if n >= 1024 {
		return fmt.Sprintf("%dKiB", n/1024)
	}
	return fmt.Sprintf("%dB", n)
}

// requestMessage builds a session-routed request carrying a mixed
// argument list with one string of size bytes.
func requestMessage(size int) *wire.Message {
	return &wire.Message{
		Type:    wire.MsgRequestSession,
		ID:      4711,
		Session: "alice",
		Invocation: wire.Invocation{
			Object: 100,
			Method: "chat",
			Args: wire.Args{
				wire.Uint(42),
				wire.Int(-7),
				wire.Bool(true),
				wire.Float(0.5),
				wire.String(strings.Repeat("x", size)),
			},
		},
	}
}
