package engine

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	Logger "github.com/Luismorlan/familyfeed/utils/log"
)

// Engine runs the background modules of a server process (notification
// relays, the hydration reporter, the refresh sweep) and owns the event bus
// they share.
type Engine struct {
	// Modules run in separate routines, each bound to the engine's lifetime.
	Modules []Module

	// Root this engine is running on
	ctx context.Context

	// Cancel function for root context, used for graceful shutdown
	cancel context.CancelFunc

	// The EventBus this engine managed. A golang channel implementation is
	// enough while every module lives in the same process.
	EventBus *gochannel.GoChannel
}

func NewEngine(ms []Module, ctx context.Context, cancel context.CancelFunc, e *gochannel.GoChannel) *Engine {
	return &Engine{
		Modules:  ms,
		ctx:      ctx,
		cancel:   cancel,
		EventBus: e,
	}
}

// Run executes all modules and blocks until every one of them returned.
func (e *Engine) Run() {
	var wg sync.WaitGroup

	for idx := range e.Modules {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			Logger.Log.Infof("start engine module %s", e.Modules[index].Name())
			RunModuleWithGracefulRestart(e.ctx, e.Modules[index])
			Logger.Log.Infof("module %s finished execution", e.Modules[index].Name())
		}(idx)
	}

	wg.Wait()
}

// Shutdown cancels the root context and closes the event bus, which ends
// every subscription modules hold on it.
func (e *Engine) Shutdown() {
	Logger.Log.Infoln("starting graceful shutdown of engine")
	e.cancel()
	if e.EventBus != nil {
		if err := e.EventBus.Close(); err != nil {
			Logger.Log.Errorf("fail to close event bus: %s", err)
		}
	}
}
