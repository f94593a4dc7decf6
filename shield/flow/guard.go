package flow

import (
	"strings"
	"sync"

	"github.com/kysee/cloak/shield/types"
)

// Guard allows one in-flight spend per note.
type Guard struct {
	mtx  sync.Mutex
	busy map[string]struct{}
}

func NewGuard() *Guard {
	return &Guard{busy: make(map[string]struct{})}
}

// Acquire marks commitment as in flight. The returned release func is safe to
// call more than once.
func (g *Guard) Acquire(commitment string) (func(), error) {
	k := strings.ToLower(commitment)

	g.mtx.Lock()
	defer g.mtx.Unlock()
	if _, ok := g.busy[k]; ok {
		return nil, &types.Error{Kind: types.KindInFlight, Message: "note " + commitment + " already has a submission in flight"}
	}
	g.busy[k] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mtx.Lock()
			delete(g.busy, k)
			g.mtx.Unlock()
		})
	}, nil
}

func (g *Guard) InFlight(commitment string) bool {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	_, ok := g.busy[strings.ToLower(commitment)]
	return ok
}
