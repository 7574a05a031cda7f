package input

import (
	"context"
	"log/slog"
	"sync"

	"github.com/eiannone/keyboard"
)

// IsAbort reports whether a key press asks the batch to stop.
func IsAbort(r rune, k keyboard.Key) bool {
	switch {
	case k == keyboard.KeyEsc, k == keyboard.KeyCtrlC:
		return true
	case r == 'q', r == 'Q':
		return true
	}
	return false
}

// Watch calls cancel on the first abort key press. The returned stop
// releases the keyboard and must be called before exiting.
func Watch(ctx context.Context, cancel context.CancelFunc) (stop func(), err error) {
	keys, err := keyboard.GetKeys(16)
	if nil != err {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case key, ok := <-keys:
				if !ok {
					return
				}
				if IsAbort(key.Rune, key.Key) {
					slog.InfoContext(ctx, "aborting, waiting for charts in progress")
					cancel()
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			if err := keyboard.Close(); nil != err {
				slog.Warn("unable to close keyboard", "error", err)
			}
		})
	}, nil
}
