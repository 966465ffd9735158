package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/core/attendance"
)

type (
	// RemoteStore is the remote attendance store. BulkUpsert must upsert the whole batch by
	// (subjectId, courseId, date) so that sending the same batch twice is harmless.
	RemoteStore interface {
		BulkUpsert(ctx context.Context, batch Batch) (Ack, error)
	}

	Batch struct {
		ID      string
		Records []attendance.Mark
	}

	// Ack confirms a batch. A nil Accepted confirms every record of the batch.
	Ack struct {
		Accepted []attendance.Key
	}

	Result struct {
		BatchID string
		Sent    int
		Synced  int
		Pending int
	}

	// Engine pushes the ledger's sync queue to the remote store.
	Engine struct {
		ledger *attendance.Ledger
		remote RemoteStore
		logger core.Logger
		group  singleflight.Group

		mu     sync.RWMutex
		online bool
	}
)

// NewEngine returns an engine that considers the device offline until told otherwise.
func NewEngine(ledger *attendance.Ledger, remote RemoteStore, logger core.Logger) *Engine {
	return &Engine{ledger: ledger, remote: remote, logger: logger}
}

func (e *Engine) Online() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.online
}

func (e *Engine) Pending(ctx context.Context) (int, error) {
	return e.ledger.Pending(ctx)
}

// OnConnectivityChange records the connectivity state. Coming back online with a non-empty
// queue triggers exactly one flush, which runs before OnConnectivityChange returns.
func (e *Engine) OnConnectivityChange(ctx context.Context, online bool) (Result, error) {
	e.mu.Lock()
	was := e.online
	e.online = online
	e.mu.Unlock()

	if !online || was {
		return Result{}, nil
	}
	e.logger.Info("connectivity restored")

	pending, err := e.ledger.Pending(ctx)
	if err != nil {
		return Result{}, err
	}
	if pending == 0 {
		return Result{}, nil
	}
	return e.Flush(ctx)
}

// Flush sends the current sync queue as one batch and flags the confirmed records as synced.
// On failure nothing changes locally. Concurrent calls share a single flush.
func (e *Engine) Flush(ctx context.Context) (Result, error) {
	if !e.Online() {
		pending, _ := e.ledger.Pending(ctx)
		return Result{Pending: pending}, &TransientError{Err: ErrOffline}
	}

	v, err, _ := e.group.Do("flush", func() (interface{}, error) {
		return e.flush(ctx)
	})
	res, _ := v.(Result)
	return res, err
}

func (e *Engine) flush(ctx context.Context) (Result, error) {
	snap, err := e.ledger.UnsyncedSnapshot(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(snap) == 0 {
		return Result{}, nil
	}

	batch := Batch{ID: uuid.NewString(), Records: make([]attendance.Mark, 0, len(snap))}
	for _, rec := range snap {
		batch.Records = append(batch.Records, rec.Mark())
	}
	res := Result{BatchID: batch.ID, Sent: len(snap)}

	ack, err := e.remote.BulkUpsert(ctx, batch)
	if err != nil {
		res.Pending = len(snap)
		if n, pErr := e.ledger.Pending(ctx); pErr == nil {
			res.Pending = n
		}
		if IsRejected(err) || IsTransient(err) {
			return res, err
		}
		return res, &TransientError{Err: err}
	}

	confirmed := snap
	if ack.Accepted != nil {
		accepted := make(map[attendance.Key]bool, len(ack.Accepted))
		for _, k := range ack.Accepted {
			accepted[k] = true
		}
		confirmed = make([]attendance.Record, 0, len(ack.Accepted))
		for _, rec := range snap {
			if accepted[rec.Key()] {
				confirmed = append(confirmed, rec)
			}
		}
	}

	if res.Synced, err = e.ledger.MarkSynced(ctx, confirmed); err != nil {
		// the records stay queued and are sent again with the next batch
		return res, errors.Wrapf(err, "confirming batch %s", batch.ID)
	}
	if res.Pending, err = e.ledger.Pending(ctx); err != nil {
		return res, err
	}
	e.logger.Info(fmt.Sprintf("batch %s: sent %d, synced %d, pending %d", res.BatchID, res.Sent, res.Synced, res.Pending))
	return res, nil
}

// Run retries the flush every interval while online, until ctx is done.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !e.Online() {
			continue
		}
		pending, err := e.ledger.Pending(ctx)
		if err != nil {
			e.logger.Error(fmt.Sprintf("counting pending records: %v", err), err)
			continue
		}
		if pending == 0 {
			continue
		}
		if _, err := e.Flush(ctx); err != nil {
			e.logFlushError(err)
		}
	}
}

func (e *Engine) logFlushError(err error) {
	if IsTransient(err) {
		e.logger.Warn(fmt.Sprintf("flushing attendance: %v", err), err)
		return
	}
	e.logger.Error(fmt.Sprintf("flushing attendance: %v", err), err)
}
