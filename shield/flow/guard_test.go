package flow

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kysee/cloak/shield/types"
	"github.com/stretchr/testify/require"
)

func TestGuard(t *testing.T) {
	g := NewGuard()
	release, err := g.Acquire("ABCD")
	require.NoError(t, err)
	require.True(t, g.InFlight("abcd"))

	_, err = g.Acquire("abcd")
	require.ErrorIs(t, err, types.ErrInFlight)

	release()
	release()
	require.False(t, g.InFlight("abcd"))

	release, err = g.Acquire("abcd")
	require.NoError(t, err)
	release()
}

func TestGuard_Concurrent(t *testing.T) {
	g := NewGuard()
	var (
		wg    sync.WaitGroup
		wins  atomic.Int32
		start = make(chan struct{})
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := g.Acquire("note"); err == nil {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())
}
