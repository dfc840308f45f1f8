package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	mqcontracts "contentplanner/contracts/mq"
	"contentplanner/pkg/metrics"
	"contentplanner/pkg/mq"
	"contentplanner/pkg/otel"
	"contentplanner/pkg/outbox"
	"contentplanner/pkg/trace"
	"contentplanner/pkg/util"
)

// PGStore keeps documents as jsonb rows. Each write records a change event in
// the outbox inside the same transaction; subscriptions listen for those
// events on RabbitMQ and re-read the collection.
type PGStore struct {
	pool   *pgxpool.Pool
	outbox *outbox.Repository
	mqURL  string
	dedup  *util.Deduper
	logger *zap.Logger

	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewPGStore(pool *pgxpool.Pool, mqURL string, dedup *util.Deduper, logger *zap.Logger) *PGStore {
	return &PGStore{
		pool:       pool,
		outbox:     outbox.NewRepository(pool),
		mqURL:      mqURL,
		dedup:      dedup,
		logger:     logger,
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
	}
}

func (s *PGStore) Add(ctx context.Context, path string, data map[string]any) (string, error) {
	userID, collection, err := SplitPath(path)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()

	err = s.observe(ctx, "insert", collection, func(ctx context.Context) error {
		return s.inTx(ctx, func(tx pgx.Tx, commit time.Time) error {
			prepared, err := prepareWrite(data, commit)
			if err != nil {
				return err
			}
			raw, err := encodeJSON(prepared)
			if err != nil {
				return Errorf(CodeInvalidArgument, "encode document: %v", err)
			}

			_, err = tx.Exec(ctx, `
				INSERT INTO documents (path, id, user_id, data, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $5)
			`, path, id, userID, raw, commit)
			if err != nil {
				return translatePgError(err, "insert document")
			}
			return s.recordChange(ctx, tx, userID, collection, id, mqcontracts.OpAdded, commit)
		})
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *PGStore) Update(ctx context.Context, path, id string, data map[string]any) error {
	userID, collection, err := SplitPath(path)
	if err != nil {
		return err
	}
	if err := checkID(path, id); err != nil {
		return err
	}

	return s.observe(ctx, "update", collection, func(ctx context.Context) error {
		return s.inTx(ctx, func(tx pgx.Tx, commit time.Time) error {
			var prev time.Time
			err := tx.QueryRow(ctx, `
				SELECT updated_at FROM documents WHERE path = $1 AND id = $2 FOR UPDATE
			`, path, id).Scan(&prev)
			if errors.Is(err, pgx.ErrNoRows) {
				return Errorf(CodeNotFound, "no document to update: %s/%s", path, id)
			}
			if err != nil {
				return translatePgError(err, "lock document")
			}
			// updatedAt must move forward even within one clock tick
			if !commit.After(prev) {
				commit = prev.Add(time.Microsecond)
			}

			set, deletes := splitDeletes(data)
			prepared, err := prepareWrite(set, commit)
			if err != nil {
				return err
			}
			raw, err := encodeJSON(prepared)
			if err != nil {
				return Errorf(CodeInvalidArgument, "encode document: %v", err)
			}
			if deletes == nil {
				deletes = []string{}
			}

			_, err = tx.Exec(ctx, `
				UPDATE documents SET data = (data - $5::text[]) || $3::jsonb, updated_at = $4
				WHERE path = $1 AND id = $2
			`, path, id, raw, commit, deletes)
			if err != nil {
				return translatePgError(err, "update document")
			}
			return s.recordChange(ctx, tx, userID, collection, id, mqcontracts.OpModified, commit)
		})
	})
}

func (s *PGStore) Delete(ctx context.Context, path, id string) error {
	userID, collection, err := SplitPath(path)
	if err != nil {
		return err
	}
	if err := checkID(path, id); err != nil {
		return err
	}

	return s.observe(ctx, "delete", collection, func(ctx context.Context) error {
		return s.inTx(ctx, func(tx pgx.Tx, commit time.Time) error {
			tag, err := tx.Exec(ctx, `DELETE FROM documents WHERE path = $1 AND id = $2`, path, id)
			if err != nil {
				return translatePgError(err, "delete document")
			}
			if tag.RowsAffected() == 0 {
				return Errorf(CodeNotFound, "no document to delete: %s/%s", path, id)
			}
			return s.recordChange(ctx, tx, userID, collection, id, mqcontracts.OpRemoved, commit)
		})
	})
}

func (s *PGStore) Get(ctx context.Context, path, id string) (Document, error) {
	_, collection, err := SplitPath(path)
	if err != nil {
		return Document{}, err
	}
	if err := checkID(path, id); err != nil {
		return Document{}, err
	}

	var doc Document
	err = s.observe(ctx, "select", collection, func(ctx context.Context) error {
		var raw []byte
		err := s.pool.QueryRow(ctx, `SELECT data FROM documents WHERE path = $1 AND id = $2`, path, id).Scan(&raw)
		if errors.Is(err, pgx.ErrNoRows) {
			return Errorf(CodeNotFound, "document %s/%s not found", path, id)
		}
		if err != nil {
			return translatePgError(err, "get document")
		}
		data, err := decodeJSON(raw)
		if err != nil {
			return wrap(CodeInternal, err, "get document")
		}
		doc = Document{ID: id, Data: data}
		return nil
	})
	return doc, err
}

func (s *PGStore) List(ctx context.Context, path string) ([]Document, error) {
	_, collection, err := SplitPath(path)
	if err != nil {
		return nil, err
	}

	var docs []Document
	err = s.observe(ctx, "select", collection, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT id::text, data FROM documents
			WHERE path = $1
			ORDER BY created_at DESC, id
		`, path)
		if err != nil {
			return translatePgError(err, "list documents")
		}
		defer rows.Close()

		docs = docs[:0]
		for rows.Next() {
			var (
				id  string
				raw []byte
			)
			if err := rows.Scan(&id, &raw); err != nil {
				return translatePgError(err, "scan document")
			}
			data, err := decodeJSON(raw)
			if err != nil {
				return wrap(CodeInternal, err, "list documents")
			}
			docs = append(docs, Document{ID: id, Data: data})
		}
		return translatePgError(rows.Err(), "list documents")
	})
	return docs, err
}

// Subscribe binds an exclusive queue to the collection's routing key, then
// delivers a snapshot on every change event. Broken connections are reported
// to onError and re-established with exponential backoff.
func (s *PGStore) Subscribe(ctx context.Context, path string, onNext func([]Document), onError func(error)) (Unsubscribe, error) {
	userID, collection, err := SplitPath(path)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	subID := uuid.NewString()
	routingKey := mqcontracts.DocumentRoutingKey(userID, collection)
	logger := s.logger.With(
		zap.String("subscription_id", subID),
		zap.String("path", path),
	)

	report := func(err error) {
		if subCtx.Err() != nil || onError == nil {
			return
		}
		onError(err)
	}
	deliver := func(ctx context.Context) {
		docs, err := s.List(ctx, path)
		if err != nil {
			report(err)
			return
		}
		if subCtx.Err() != nil {
			return
		}
		onNext(docs)
	}

	go func() {
		backoff := s.minBackoff
		for subCtx.Err() == nil {
			consumer, err := mq.NewConsumer(s.mqURL, mq.QueueOptions{Exclusive: true}, routingKey, logger)
			if err != nil {
				logger.Warn("Subscription connect failed", zap.Error(err), zap.Duration("retry_in", backoff))
				report(wrap(CodeUnavailable, err, "subscribe"))
				if !sleepCtx(subCtx, backoff) {
					return
				}
				backoff = nextBackoff(backoff, s.maxBackoff)
				continue
			}
			backoff = s.minBackoff

			consumer.SetHandler(func(ctx context.Context, body json.RawMessage) error {
				var event mqcontracts.DocumentChangedPayload
				if err := json.Unmarshal(body, &event); err != nil {
					logger.Warn("Dropping malformed change event", zap.Error(err))
					return nil
				}
				if !s.dedup.AcquireOnce(ctx, "sub:"+subID, event.EventID) {
					return nil
				}
				deliver(ctx)
				return nil
			})

			// Snapshot after the queue is bound so no change falls in between.
			deliver(subCtx)

			err = consumer.StartConsuming(subCtx)
			consumer.Stop()
			if subCtx.Err() != nil {
				return
			}
			if err == nil {
				err = mq.ErrDeliveriesClosed
			}
			logger.Warn("Subscription interrupted", zap.Error(err))
			report(wrap(CodeUnavailable, err, "change feed interrupted"))
			if !sleepCtx(subCtx, backoff) {
				return
			}
		}
	}()

	return Unsubscribe(cancel), nil
}

func (s *PGStore) recordChange(ctx context.Context, tx pgx.Tx, userID, collection, id, op string, at time.Time) error {
	payload := mqcontracts.DocumentChangedPayload{
		EventID:    uuid.NewString(),
		UserID:     userID,
		Collection: collection,
		DocumentID: id,
		Op:         op,
		TraceID:    trace.FromContext(ctx),
		OccurredAt: at,
	}
	err := outbox.InsertEventInTx(ctx, tx, s.outbox, "document", id,
		mqcontracts.DocumentRoutingKey(userID, collection), payload)
	if err != nil {
		return wrap(CodeInternal, err, "record change")
	}
	return nil
}

// inTx runs fn with the transaction's commit time, read from the server clock.
func (s *PGStore) inTx(ctx context.Context, fn func(tx pgx.Tx, commit time.Time) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return translatePgError(err, "begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var commit time.Time
	if err := tx.QueryRow(ctx, `SELECT now()`).Scan(&commit); err != nil {
		return translatePgError(err, "read server time")
	}
	commit = commit.UTC().Truncate(time.Microsecond)

	if err := fn(tx, commit); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return translatePgError(err, "commit")
	}
	return nil
}

func (s *PGStore) observe(ctx context.Context, operation, collection string, fn func(context.Context) error) error {
	start := time.Now()
	err := otel.WithDBSpan(ctx, operation, collection, fn)
	metrics.RecordDBQueryDuration(operation, collection, time.Since(start))
	return err
}

// translatePgError maps driver errors to store codes.
func translatePgError(err error, op string) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "42501":
			return &Error{Code: CodePermissionDenied, Message: op + ": " + pgErr.Message, Err: err}
		case strings.HasPrefix(pgErr.Code, "22"), strings.HasPrefix(pgErr.Code, "23"):
			return &Error{Code: CodeInvalidArgument, Message: op + ": " + pgErr.Message, Err: err}
		case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "57"):
			return &Error{Code: CodeUnavailable, Message: op + ": " + pgErr.Message, Err: err}
		default:
			return &Error{Code: CodeInternal, Message: op + ": " + pgErr.Message, Err: err}
		}
	}

	if retryable, _ := util.ClassifyError(err); retryable || pgconn.SafeToRetry(err) {
		return wrap(CodeUnavailable, err, op)
	}
	return wrap(CodeOf(err), err, fmt.Sprintf("%s failed", op))
}

// checkID rejects ids the uuid column could never hold as not-found.
func checkID(path, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return Errorf(CodeNotFound, "document %s/%s not found", path, id)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}
