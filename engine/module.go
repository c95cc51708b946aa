package engine

import (
	"context"
	"time"

	Logger "github.com/Luismorlan/familyfeed/utils/log"
)

const (
	GracefulRetryDelay = 3 * time.Second

	// Finished hydrations, payload is a structpb encoded report.
	TopicHydrationReport = "topic.hydration_report"
)

// RunModuleWithGracefulRestart runs module until it returns without error or
// ctx is done, waiting GracefulRetryDelay between attempts.
func RunModuleWithGracefulRestart(ctx context.Context, module Module) {
	for {
		err := module.RunModule(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}
		Logger.Log.Errorf("module %s exited with error %v, retry in %s",
			module.Name(), err, GracefulRetryDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(GracefulRetryDelay):
		}
	}
}

type Module interface {
	// RunModule contains the customized logic of the module. It takes in a
	// context object by which its lifecycle is managed. Return error if
	// encountered any error during execution, the module is then restarted.
	RunModule(ctx context.Context) error

	// Return name of the Module. Uniquely identifies the module instance. Note
	// that if there are multiple instances of the same module, each instance
	// should have a unique name instead of using the same name.
	Name() string
}
