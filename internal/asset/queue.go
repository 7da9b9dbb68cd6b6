package asset

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/assetstream/streamer/internal/workerpool"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrUnsupportedKind = errors.New("unsupported asset kind")
	// ErrDuplicateRequest rejects a caller-supplied id that is still open.
	ErrDuplicateRequest = errors.New("request id already in flight")
)

// Queue accepts load requests and reports their completions by polling.
type Queue interface {
	// SubmitTask schedules req and returns its correlation id without
	// waiting for the load.
	SubmitTask(req AssetLoadRequest) RequestID
	// PollCompleted drains every result available right now. It never
	// blocks and returns nil when nothing has finished.
	PollCompleted() []Result
}

// Result is one completed request. Exactly one of Message or Err is set;
// Err is always a *LoadError.
type Result struct {
	ID      RequestID
	Request AssetLoadRequest
	Message *AssetLoadedMessage
	Err     error
}

func (r Result) OK() bool { return r.Err == nil }

// Decoder performs the blocking I/O and parsing for one request. It runs on
// a worker goroutine and must not touch shared resource managers.
type Decoder func(ctx context.Context, req AssetLoadRequest) (AssetLoadedMessagePayload, error)

// DefaultDecoders returns the decoders for every built-in Kind.
func DefaultDecoders() map[Kind]Decoder {
	return map[Kind]Decoder{
		KindGltfModel: DecodeGltf,
		KindLuaScript: DecodeLuaScript,
	}
}

type completion struct {
	id  RequestID
	msg *AssetLoadedMessage
	err error
	// req is set for rejections, which never enter the open map.
	req *AssetLoadRequest
}

// MultithreadedQueue decodes requests on a worker pool and hands results
// back over a channel. SubmitTask and PollCompleted belong to the tick
// goroutine; workers only ever see their own copy of the request.
type MultithreadedQueue struct {
	pool     *workerpool.Pool
	results  chan completion
	rejected []completion
	open     map[RequestID]AssetLoadRequest
	decoders map[Kind]Decoder
	newID    func() RequestID
	timeout  time.Duration
	done     chan struct{}
	log      *zap.Logger
}

type Option func(*MultithreadedQueue)

// WithDecoder registers or replaces the decoder for kind.
func WithDecoder(kind Kind, d Decoder) Option {
	return func(q *MultithreadedQueue) { q.decoders[kind] = d }
}

// WithIDGenerator replaces the uuid v4 generator used for requests that
// arrive without an ID.
func WithIDGenerator(fn func() RequestID) Option {
	return func(q *MultithreadedQueue) { q.newID = fn }
}

// WithResultBuffer sets how many finished results may wait for a poll before
// workers hold on to theirs.
func WithResultBuffer(n int) Option {
	return func(q *MultithreadedQueue) {
		if n > 0 {
			q.results = make(chan completion, n)
		}
	}
}

// WithDecodeTimeout bounds each decode through its context. Zero disables it.
func WithDecodeTimeout(d time.Duration) Option {
	return func(q *MultithreadedQueue) { q.timeout = d }
}

func NewMultithreadedQueue(pool *workerpool.Pool, log *zap.Logger, opts ...Option) *MultithreadedQueue {
	q := &MultithreadedQueue{
		pool:     pool,
		results:  make(chan completion, 256),
		open:     make(map[RequestID]AssetLoadRequest),
		decoders: DefaultDecoders(),
		newID:    uuid.New,
		done:     make(chan struct{}),
		log:      log,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *MultithreadedQueue) SubmitTask(req AssetLoadRequest) RequestID {
	if req.ID == uuid.Nil {
		req.ID = q.newID()
	}
	if _, dup := q.open[req.ID]; dup {
		q.log.Warn("duplicate request id rejected", zap.Stringer("id", req.ID), zap.String("path", req.Path))
		q.reject(req, ErrDuplicateRequest)
		return req.ID
	}

	decode, ok := q.decoders[req.Kind]
	if !ok {
		q.reject(req, ErrUnsupportedKind)
		return req.ID
	}

	q.open[req.ID] = req
	err := q.pool.Spawn(func(ctx context.Context) {
		q.run(ctx, req, decode)
	})
	if err != nil {
		delete(q.open, req.ID)
		q.reject(req, err)
	}
	q.log.Debug("asset load submitted",
		zap.Stringer("id", req.ID),
		zap.Stringer("kind", req.Kind),
		zap.String("path", req.Path))
	return req.ID
}

// reject records a failure that happened before any worker was involved.
// It is returned on the next poll instead of going through the channel so
// SubmitTask never blocks on a full buffer. Rejected requests carry their own
// copy of req and leave the open map alone.
func (q *MultithreadedQueue) reject(req AssetLoadRequest, err error) {
	q.rejected = append(q.rejected, completion{
		id:  req.ID,
		err: &LoadError{ID: req.ID, Kind: req.Kind, Path: req.Path, Err: err},
		req: &req,
	})
}

func (q *MultithreadedQueue) run(ctx context.Context, req AssetLoadRequest, decode Decoder) {
	decodeCtx := ctx
	if q.timeout > 0 {
		var cancel context.CancelFunc
		decodeCtx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	var c completion
	payload, err := decode(decodeCtx, req)
	if err != nil {
		c = completion{id: req.ID, err: &LoadError{ID: req.ID, Kind: req.Kind, Path: req.Path, Err: err}}
	} else {
		c = completion{id: req.ID, msg: NewAssetLoadedMessage(req.ID, payload)}
	}

	select {
	case q.results <- c:
	case <-q.done:
	case <-ctx.Done(): // pool closed
	}
}

func (q *MultithreadedQueue) PollCompleted() []Result {
	var out []Result
	for _, c := range q.rejected {
		out = q.appendResult(out, c)
	}
	q.rejected = q.rejected[:0]

	for {
		select {
		case c := <-q.results:
			out = q.appendResult(out, c)
		default:
			return out
		}
	}
}

func (q *MultithreadedQueue) appendResult(out []Result, c completion) []Result {
	if c.req != nil {
		return append(out, Result{ID: c.id, Request: *c.req, Err: c.err})
	}
	req, ok := q.open[c.id]
	if !ok {
		q.log.Warn("completion for unknown request dropped", zap.Stringer("id", c.id))
		return out
	}
	delete(q.open, c.id)
	return append(out, Result{ID: c.id, Request: req, Message: c.msg, Err: c.err})
}

// Pending returns the number of requests handed to workers and not yet polled.
// Rejections waiting for the next poll are not counted.
func (q *MultithreadedQueue) Pending() int { return len(q.open) }

// Open reports whether id was submitted and has not been polled yet.
func (q *MultithreadedQueue) Open(id RequestID) (AssetLoadRequest, bool) {
	req, ok := q.open[id]
	return req, ok
}

// Close releases workers blocked on a full result buffer. Results not yet
// polled are discarded. It does not wait for workers; the pool is owned by
// the caller, and closing the pool alone also releases blocked workers.
func (q *MultithreadedQueue) Close() error {
	select {
	case <-q.done:
		return fmt.Errorf("asset queue: already closed")
	default:
	}
	close(q.done)
	if n := len(q.open); n > 0 {
		q.log.Info("asset queue closed with open requests", zap.Int("open", n))
	}
	return nil
}
