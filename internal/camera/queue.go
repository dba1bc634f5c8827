package camera

import (
	"context"
	"errors"
	"io"
	"log"
)

// Pump reads frames from a source into a single-slot channel. When the
// consumer falls behind, the pending frame is replaced by the newer one,
// so the recognizer always works on the freshest capture.
type Pump struct {
	frames chan Frame
	done   chan struct{}
}

// StartPump launches the producer goroutine. The frames channel closes
// when the source is exhausted, fails, or the context is cancelled.
func StartPump(ctx context.Context, src Source) *Pump {
	p := &Pump{
		frames: make(chan Frame, 1),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(p.frames)
		defer close(p.done)

		for {
			frame, err := src.Next(ctx)
			if err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
					log.Printf("frame source failed: %v", err)
				}
				return
			}

			// Drop the queued frame if the consumer has not taken it yet.
			select {
			case p.frames <- frame:
			default:
				select {
				case <-p.frames:
				default:
				}
				select {
				case p.frames <- frame:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return p
}

// Frames is the consumer side. It closes when the pump stops.
func (p *Pump) Frames() <-chan Frame {
	return p.frames
}

// Wait blocks until the producer goroutine has exited.
func (p *Pump) Wait() {
	<-p.done
}
