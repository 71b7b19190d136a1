package replcli

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/relaychat/reactorchat/internal/client"
)

// TestInterpreter_StartIsIdempotent exercises the one property the
// otherwise out-of-scope REPL contributes: calling Start twice concurrently
// has the effect of a single run of the loop.
func TestInterpreter_StartIsIdempotent(t *testing.T) {
	in := strings.NewReader("hello\n/quit\n")
	var out bytes.Buffer

	conn := client.New(nil, nil)
	interp := New(conn, in, &out, nil)

	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			interp.Start()
		}()
	}
	wg.Wait()

	// A second, later call must also be a no-op: the loop has already run
	// to completion exactly once.
	interp.Start()
}
