package worker

import (
	"context"
	"math/rand"
	"time"

	"dnsflow/internal/pkg/constants"
	"dnsflow/internal/pkg/logger"
	"dnsflow/internal/pkg/signals"
)

type packetEvent struct {
	ts      time.Time
	ipLen   int
	ipBytes []byte
}

// Run drives the single-threaded cooperative event loop (C8): it fans the
// capture collaborator's callback into a channel (the one goroutine the
// concurrency model permits outside the loop itself, see SPEC_FULL.md §5),
// then services packets, a jittered push timer, and a jittered stats timer
// until ctx is canceled or a file source drains.
//
// For a file source, Run flushes the final batch after drain (the file-read
// half of the documented Open Question in spec.md §9); for a live source,
// ctx cancellation stops the loop without a final flush, preserving that
// open question's observed live-mode behavior.
func (w *Worker) Run(ctx context.Context, parentWatch *signals.ParentWatch) error {
	packets := make(chan packetEvent, constants.PacketChannelBuffer)
	loopDone := make(chan error, 1)

	go func() {
		loopDone <- w.cfg.Source.Loop(func(ts time.Time, ipLen int, ipBytes []byte) {
			cp := make([]byte, len(ipBytes))
			copy(cp, ipBytes)
			select {
			case packets <- packetEvent{ts, ipLen, cp}:
			case <-ctx.Done():
			}
		})
	}()

	pushTimer := time.NewTimer(jitter(constants.PushInterval))
	defer pushTimer.Stop()
	statsTimer := time.NewTimer(jitter(constants.StatsInterval))
	defer statsTimer.Stop()
	statsTicks := 0

	for {
		select {
		case <-ctx.Done():
			if parentWatch != nil {
				parentWatch.Stop()
			}
			_ = w.cfg.Source.Close()
			return nil

		case pkt := <-packets:
			w.handlePacket(pkt.ts, pkt.ipLen, pkt.ipBytes)

		case <-pushTimer.C:
			if w.builder.Len() > 0 && time.Since(w.builder.LastSend()) >= constants.PushInterval {
				if err := w.builder.Flush(); err != nil {
					logger.Warn("push flush failed", "worker", w.cfg.Index, "error", err)
				}
			}
			pushTimer.Reset(jitter(constants.PushInterval))

		case <-statsTimer.C:
			w.emitStats()
			statsTicks++
			if statsTicks%constants.StatsPrintEveryNTicks == 0 {
				if s, err := w.FinalStats(); err == nil {
					w.printStats(s)
				}
			}
			statsTimer.Reset(jitter(constants.StatsInterval))

		case err := <-loopDone:
			// File source drained (or live source's Loop returned, which
			// should only happen on Close/error). Send the last batch
			// (dnsflow.c's "Send last pkt" after dcap_loop_all returns).
			if flushErr := w.builder.Flush(); flushErr != nil {
				logger.Warn("final flush failed", "worker", w.cfg.Index, "error", flushErr)
			}
			return err
		}
	}
}

// jitter adds up to d of uniform jitter on top of a nominal interval,
// mirroring dnsflow.c's jitter_tv (random() % 1_000_000 microseconds added
// to a 1s/10s base).
func jitter(d time.Duration) time.Duration {
	return d + time.Duration(rand.Int63n(int64(d)))
}
