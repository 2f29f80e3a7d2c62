package engine

import (
	"context"
	"time"

	"tutord/internal/channel"
	"tutord/internal/protocol"
)

// beginGeneration reserves a queue slot and then the single in-flight slot.
// While waiting for the in-flight slot it emits queued heartbeats for reqID so
// the dispatcher keeps the request alive. Returns a release func to be deferred.
func (e *Engine) beginGeneration(ctx context.Context, conn channel.EngineConn, reqID int64) (func(), error) {
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}

	timer := time.NewTimer(e.cfg.MaxWait)
	defer timer.Stop()
	select {
	case e.queueCh <- struct{}{}:
	case <-ctx.Done():
		return func() {}, ctx.Err()
	default:
		// Queue full: reject immediately rather than piling up waiters.
		return func() {}, busyError{reqID: reqID}
	}

	acquired := false
	defer func() {
		if !acquired {
			<-e.queueCh
		}
	}()

	hb := time.NewTicker(e.cfg.QueueHeartbeat)
	defer hb.Stop()
	for {
		select {
		case e.genCh <- struct{}{}:
			acquired = true
			e.setState(StateGenerating)
			return func() {
				e.setState(StateReady)
				<-e.genCh
				<-e.queueCh
			}, nil
		case <-hb.C:
			e.emit(conn, protocol.Heartbeat{ReqID: reqID, Reason: "queued"})
		case <-ctx.Done():
			return func() {}, ctx.Err()
		case <-timer.C:
			return func() {}, busyError{reqID: reqID}
		}
	}
}
