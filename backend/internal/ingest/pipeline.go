// Package ingest loads catalog rows into the graph: it skips rows already
// present, embeds the rest on a worker pool, and commits them in source
// order with a durable checkpoint after every batch.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"animebot/backend/internal/catalog"
	"animebot/backend/internal/graph"
	"animebot/backend/pkg/logger"
)

// Source yields catalog records with consecutive 1-based indices.
type Source interface {
	Next() (catalog.Record, error)
}

// Embedder turns synthesized text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchWriter commits a batch of operations atomically.
type BatchWriter interface {
	Commit(ctx context.Context, ops []graph.Operation) error
}

// skipper is implemented by sources that can discard already finalized rows
// without parsing them.
type skipper interface {
	SkipThrough(index int64) error
}

// CheckpointStore persists the last finalized row index.
type CheckpointStore interface {
	Load() (int64, error)
	Save(index int64) error
}

const (
	defaultWorkers          = 4
	defaultBatchSize        = 100
	defaultProgressInterval = 500
	windowPerWorker         = 4
)

// Pipeline orchestrates one ingestion run.
type Pipeline struct {
	source      Source
	filter      *ExistenceFilter
	embedder    Embedder
	writer      BatchWriter
	checkpoints CheckpointStore

	workers          int
	batchSize        int
	progressInterval int64
	runID            string

	progress *Progress
	onRow    func(index int64, state RowState)
	logger   *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithWorkers sets the embedding pool size. Default is 4.
func WithWorkers(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return fmt.Errorf("workers must be at least 1, got %d", n)
		}
		p.workers = n
		return nil
	}
}

// WithBatchSize sets the maximum operations per transaction. Default is 100.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return fmt.Errorf("batch size must be at least 1, got %d", n)
		}
		p.batchSize = n
		return nil
	}
}

// WithProgressInterval logs progress every n finalized rows. Zero disables
// progress logging.
func WithProgressInterval(n int) Option {
	return func(p *Pipeline) error {
		if n < 0 {
			n = 0
		}
		p.progressInterval = int64(n)
		return nil
	}
}

// WithProgress publishes live stats into progress.
func WithProgress(progress *Progress) Option {
	return func(p *Pipeline) error {
		if progress != nil {
			p.progress = progress
		}
		return nil
	}
}

// WithRowHook calls fn from the committer each time a row reaches a final
// state, in source order. fn must not block.
func WithRowHook(fn func(index int64, state RowState)) Option {
	return func(p *Pipeline) error {
		p.onRow = fn
		return nil
	}
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(p *Pipeline) error {
		if id != "" {
			p.runID = id
		}
		return nil
	}
}

// NewPipeline creates a pipeline. The store backs the existence filter and
// must be the one writer commits into.
func NewPipeline(
	source Source,
	store graph.Store,
	embedder Embedder,
	writer BatchWriter,
	checkpoints CheckpointStore,
	opts ...Option,
) (*Pipeline, error) {
	switch {
	case source == nil:
		return nil, ErrSourceRequired
	case store == nil:
		return nil, ErrStoreRequired
	case embedder == nil:
		return nil, ErrEmbedderRequired
	case writer == nil:
		return nil, ErrWriterRequired
	case checkpoints == nil:
		return nil, ErrCheckpointRequired
	}

	p := &Pipeline{
		source:           source,
		filter:           NewExistenceFilter(store),
		embedder:         embedder,
		writer:           writer,
		checkpoints:      checkpoints,
		workers:          defaultWorkers,
		batchSize:        defaultBatchSize,
		progressInterval: defaultProgressInterval,
		runID:            uuid.NewString(),
		progress:         &Progress{},
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = logger.Named("ingest").With(zap.String("run_id", p.runID))

	return p, nil
}

// Progress returns the live stats of the current or last run.
func (p *Pipeline) Progress() *Progress {
	return p.progress
}

// rowResult is a row after the worker stage.
type rowResult struct {
	index int64
	row   catalog.Row
	state RowState
	ops   []graph.Operation
	err   error
	// malformed marks rows the source could not parse.
	malformed bool
}

// Run ingests every row after the saved checkpoint. Cancelling ctx stops
// reading new rows; rows already in flight are finished, committed and
// checkpointed before Run returns nil with Stats.Interrupted set. A fatal
// error aborts the run without advancing the checkpoint past the last
// committed batch.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	resume, err := p.checkpoints.Load()
	if err != nil {
		return Stats{}, fmt.Errorf("load checkpoint: %w", err)
	}
	p.progress.start(p.runID, resume)

	// Rows up to the checkpoint were finalized by an earlier run and must
	// not count against the malformed row limit again.
	if s, ok := p.source.(skipper); ok && resume > 0 {
		if err := s.SkipThrough(resume); err != nil {
			return p.finish(err)
		}
	}

	p.logger.Info("Starting ingestion",
		zap.Int64("checkpoint", resume),
		zap.Int("workers", p.workers),
		zap.Int("batch_size", p.batchSize),
	)

	pool, err := ants.NewPool(p.workers)
	if err != nil {
		return p.finish(err)
	}
	defer pool.Release()

	// In-flight work must survive a stop request so it can be drained.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()
	g, gctx := errgroup.WithContext(workCtx)

	window := p.workers * windowPerWorker
	slots := make(chan struct{}, window)
	results := make(chan rowResult, window)
	var interrupted atomic.Bool

	g.Go(func() error {
		return p.read(ctx, gctx, pool, resume, slots, results, &interrupted)
	})
	g.Go(func() error {
		return p.commit(gctx, resume, slots, results)
	})

	err = g.Wait()
	if err == nil && interrupted.Load() {
		p.progress.update(func(s *Stats) { s.Interrupted = true })
		p.logger.Warn("Ingestion interrupted, in-flight rows drained")
	}
	return p.finish(err)
}

func (p *Pipeline) finish(err error) (Stats, error) {
	stats := p.progress.update(func(s *Stats) {
		s.Elapsed = time.Since(s.StartedAt)
		s.Running = false
	})

	fields := []zap.Field{
		zap.Int64("committed", stats.Committed),
		zap.Int64("skipped", stats.Skipped),
		zap.Int64("failed", stats.Failed),
		zap.Int64("malformed", stats.Malformed),
		zap.Int64("duplicates", stats.Duplicates),
		zap.Int64("batches", stats.Batches),
		zap.Int64("checkpoint", stats.Checkpoint),
		zap.Duration("elapsed", stats.Elapsed),
	}
	if err != nil {
		p.logger.Error("Ingestion aborted", append(fields, zap.Error(err))...)
		return stats, err
	}
	p.logger.Info("Ingestion finished", fields...)
	return stats, nil
}

// read feeds rows past the checkpoint to the pool. It stops at EOF, on a
// fatal source error, when stop is cancelled, or when the group fails. The
// results channel is closed once every submitted row has reported.
func (p *Pipeline) read(
	stop, gctx context.Context,
	pool *ants.Pool,
	resume int64,
	slots chan struct{},
	results chan<- rowResult,
	interrupted *atomic.Bool,
) error {
	var inflight sync.WaitGroup
	defer func() {
		inflight.Wait()
		close(results)
	}()

	for {
		select {
		case <-stop.Done():
			interrupted.Store(true)
			return nil
		case <-gctx.Done():
			return nil
		default:
		}

		rec, err := p.source.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if rec.Index <= resume {
			continue
		}

		// A slot bounds rows between reader and committer, and with it
		// the reorder buffer.
		select {
		case slots <- struct{}{}:
		case <-stop.Done():
			interrupted.Store(true)
			return nil
		case <-gctx.Done():
			return nil
		}

		if rec.Err != nil {
			results <- rowResult{index: rec.Index, state: StateFailed, err: rec.Err, malformed: true}
			continue
		}

		inflight.Add(1)
		if err := pool.Submit(func() {
			defer inflight.Done()
			results <- p.process(gctx, rec)
		}); err != nil {
			inflight.Done()
			return fmt.Errorf("submit row %d: %w", rec.Index, err)
		}
	}
}

// process runs the per-row stage: existence check, text synthesis and
// embedding. The returned result is never Pending.
func (p *Pipeline) process(ctx context.Context, rec catalog.Record) rowResult {
	res := rowResult{index: rec.Index, row: rec.Row}
	log := p.logger.With(zap.Int64("row", rec.Index), zap.Int64("anime_id", rec.Row.ID))

	exists, err := p.filter.Exists(ctx, rec.Row.ID)
	if err != nil {
		// Writes are upserts, so proceeding only costs an embedding call.
		log.Warn("Existence check failed, processing row anyway", zap.Error(err))
	}
	if exists {
		res.state = StateSkipped
		return res
	}

	res.state = StateEmbedding
	vec, err := p.embedder.Embed(ctx, catalog.Synthesize(rec.Row))
	if err != nil {
		log.Warn("Row failed", zap.Error(err))
		res.state = StateFailed
		res.err = err
		return res
	}

	res.ops = graph.BuildRowOperations(rec.Row, vec)
	return res
}

// committer consumes results strictly in row order and owns the batch and
// the checkpoint.
type committer struct {
	p        *Pipeline
	batch    *batch
	consumed int64
	saved    int64
}

func (p *Pipeline) commit(ctx context.Context, resume int64, slots <-chan struct{}, results <-chan rowResult) error {
	c := &committer{
		p:        p,
		batch:    newBatch(p.batchSize),
		consumed: resume,
		saved:    resume,
	}
	pending := make(map[int64]rowResult, cap(slots))

	for res := range results {
		if ctx.Err() != nil {
			continue
		}
		pending[res.index] = res
		for {
			next, ok := pending[c.consumed+1]
			if !ok {
				break
			}
			delete(pending, next.index)
			if err := c.finalize(ctx, next); err != nil {
				return err
			}
			<-slots
		}
	}
	if ctx.Err() != nil {
		return nil
	}

	if err := c.flush(ctx); err != nil {
		return err
	}
	// Trailing skipped or failed rows need no write.
	return c.save()
}

func (c *committer) finalize(ctx context.Context, res rowResult) error {
	switch res.state {
	case StateSkipped, StateFailed:
		c.consumed = res.index
		return c.settle(res)

	case StateEmbedding:
		return c.add(ctx, res)

	default:
		return fmt.Errorf("row %d reached committer in state %s", res.index, res.state)
	}
}

// settle counts a row that reached its final state.
func (c *committer) settle(res rowResult) error {
	if !res.state.Final() {
		return fmt.Errorf("row %d settled in non-final state %s", res.index, res.state)
	}
	c.record(func(s *Stats) {
		switch res.state {
		case StateCommitted:
			s.Committed++
		case StateSkipped:
			s.Skipped++
		case StateFailed:
			s.Failed++
			if res.malformed {
				s.Malformed++
			}
		}
	})
	if c.p.onRow != nil {
		c.p.onRow(res.index, res.state)
	}
	return nil
}

// add places a row's operations in the batch, committing before the batch
// would overflow and as soon as it is full. A row is never split.
func (c *committer) add(ctx context.Context, res rowResult) error {
	if !c.batch.fits(len(res.ops)) {
		if err := c.flush(ctx); err != nil {
			return err
		}
	}

	if len(res.ops) > c.batch.limit {
		c.p.logger.Warn("Row exceeds batch size, committing it alone",
			zap.Int64("row", res.index),
			zap.Int64("anime_id", res.row.ID),
			zap.Int("batch_ops", len(res.ops)),
			zap.Int("batch_size", c.batch.limit),
		)
	}

	if c.batch.add(res) {
		c.p.logger.Warn("Anime id repeated within a batch, rows merge into one vertex",
			zap.Int64("row", res.index),
			zap.Int64("anime_id", res.row.ID),
		)
		c.p.progress.update(func(s *Stats) { s.Duplicates++ })
	}
	c.consumed = res.index
	if c.batch.full() {
		return c.flush(ctx)
	}
	return nil
}

// flush commits the batch, marks its rows Committed and checkpoints every
// row consumed so far.
func (c *committer) flush(ctx context.Context) error {
	if c.batch.empty() {
		return nil
	}

	ops, rows := c.batch.take()
	if err := c.p.writer.Commit(ctx, ops); err != nil {
		return err
	}
	c.p.progress.update(func(s *Stats) { s.Batches++ })
	for _, res := range rows {
		res.state = StateCommitted
		if err := c.settle(res); err != nil {
			return err
		}
	}
	return c.save()
}

func (c *committer) save() error {
	if c.consumed <= c.saved {
		return nil
	}
	if err := c.p.checkpoints.Save(c.consumed); err != nil {
		return err
	}
	c.saved = c.consumed
	c.p.progress.update(func(s *Stats) { s.Checkpoint = c.consumed })
	c.p.logger.Debug("Checkpoint saved", zap.Int64("checkpoint", c.consumed))
	return nil
}

func (c *committer) record(fn func(*Stats)) {
	before := c.p.progress.Snapshot().Finalized()
	stats := c.p.progress.update(fn)

	interval := c.p.progressInterval
	if interval > 0 && stats.Finalized()/interval > before/interval {
		c.p.logger.Info("Ingestion progress",
			zap.Int64("finalized", stats.Finalized()),
			zap.Int64("committed", stats.Committed),
			zap.Int64("skipped", stats.Skipped),
			zap.Int64("failed", stats.Failed),
			zap.Int64("checkpoint", stats.Checkpoint),
			zap.Duration("elapsed", stats.Elapsed),
		)
	}
}
