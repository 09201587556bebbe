package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"github.com/eqtlab/paycache-syncer/pkg/logger"
)

const panicRestartDelay = time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

// runForever runs every f in ff concurrently and blocks until all of them returned. A panicking f is logged
// and restarted after a delay unless ctx is done.
func runForever(ctx context.Context, log *logger.Logger, ff ...func()) {
	var wg conc.WaitGroup
	for i := range ff {
		f := ff[i]
		wg.Go(func() {
			for {
				var pc panics.Catcher
				pc.Try(f)
				err := pc.Recovered().AsError()
				if err == nil {
					return
				}

				log.Error("panic", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(panicRestartDelay):
				}
			}
		})
	}
	wg.Wait()
}
