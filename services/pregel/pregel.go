// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pregel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/AleutianPregel/pkg/telemetry"
	"github.com/AleutianAI/AleutianPregel/services/pregel/checkpoint"
	"github.com/AleutianAI/AleutianPregel/services/pregel/concurrency"
	"github.com/AleutianAI/AleutianPregel/services/pregel/messages"
	"github.com/AleutianAI/AleutianPregel/services/pregel/partition"
	"github.com/AleutianAI/AleutianPregel/services/pregel/values"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

// progressInterval is the minimum time between two progress log lines.
const progressInterval = 5 * time.Second

// State is the lifecycle state of a run.
type State int32

const (
	StateCreated State = iota
	StateInitializing
	StateRunning
	StateMasterCompute
	StateHalted
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateMasterCompute:
		return "master_compute"
	case StateHalted:
		return "halted"
	default:
		return "unknown"
	}
}

// Checkpointer persists snapshots taken at superstep barriers.
// *checkpoint.Store implements it.
type Checkpointer interface {
	Save(ctx context.Context, snapshot *checkpoint.Snapshot) error
}

// Option configures a Pregel.
type Option func(*Pregel)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pregel) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithTerminationFlag adds a cooperative termination flag. The run also
// stops when the context passed to Run is done.
func WithTerminationFlag(flag concurrency.TerminationFlag) Option {
	return func(p *Pregel) {
		p.flag = flag
	}
}

// WithCheckpointer saves a snapshot every Config.CheckpointEvery supersteps.
func WithCheckpointer(c Checkpointer) Option {
	return func(p *Pregel) {
		p.checkpointer = c
	}
}

// ProgressFunc observes every completed superstep. It is called on the
// coordinating goroutine between the barrier and master compute, so it must
// not block for long.
type ProgressFunc func(runID string, stats SuperstepStats)

// WithProgress registers a superstep observer.
func WithProgress(fn ProgressFunc) Option {
	return func(p *Pregel) {
		p.progress = fn
	}
}

// WithRunID sets the run id. Default: a random UUID.
func WithRunID(id string) Option {
	return func(p *Pregel) {
		if id != "" {
			p.runID = id
		}
	}
}

// Pregel drives one run of a Computation over a Topology.
//
// Thread Safety: Run may be called once. State may be called concurrently.
type Pregel struct {
	topology     Topology
	config       Config
	computation  Computation
	master       MasterComputation
	strategy     partition.Strategy
	partitions   []partition.Partition
	messenger    messages.Messenger
	pool         *concurrency.Pool
	values       *values.NodeValue
	active       []bool
	flag         concurrency.TerminationFlag
	checkpointer Checkpointer
	progress     ProgressFunc
	logger       *slog.Logger
	runID        string
	state        atomic.Int32
	started      atomic.Bool
}

// workerStats is accumulated by a single worker and summed at the barrier.
type workerStats struct {
	computed int64
	active   int64
	sent     int64
}

// New prepares a run.
//
// Description:
//
//	Validates the configuration and builds everything a run reuses across
//	supersteps: the partitions, the messenger, the worker pool and the
//	node value storage. Auto partitioning is resolved here.
//
// Inputs:
//   - topology: The graph. Must not be nil.
//   - config: Run configuration. Must pass Validate().
//   - computation: The vertex program. Must not be nil.
//   - opts: Optional settings.
//
// Outputs:
//   - *Pregel: Ready to Run.
//   - error: ErrInvalidConfig, ErrNilTopology or ErrNilComputation.
func New(topology Topology, config Config, computation Computation, opts ...Option) (*Pregel, error) {
	if topology == nil {
		return nil, ErrNilTopology
	}
	if computation == nil {
		return nil, ErrNilComputation
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.Reducer == nil {
		if rc, ok := computation.(ReducingComputation); ok {
			config.Reducer = rc.Reducer()
		}
	}

	nodeCount := topology.NodeCount()
	strategy := config.Partitioning
	if strategy == partition.StrategyAuto {
		strategy = partition.Resolve(nodeCount, config.Concurrency, topology.Degree)
	}
	partitions, err := partition.Build(strategy, nodeCount, config.Concurrency, topology.Degree)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	messenger, err := messages.New(config.Discipline, nodeCount, config.Reducer)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	pool, err := concurrency.NewPool(config.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	p := &Pregel{
		topology:    topology,
		config:      config,
		computation: computation,
		strategy:    strategy,
		partitions:  partitions,
		messenger:   messenger,
		pool:        pool,
		values:      values.NewNodeValue(computation.Schema(), nodeCount),
		active:      make([]bool, nodeCount),
		logger:      slog.Default(),
		runID:       uuid.NewString(),
	}
	p.master, _ = computation.(MasterComputation)
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// RunID returns the run id.
func (p *Pregel) RunID() string {
	return p.runID
}

// State returns the current lifecycle state.
func (p *Pregel) State() State {
	return State(p.state.Load())
}

// Partitions returns the work units of the run.
func (p *Pregel) Partitions() []partition.Partition {
	return p.partitions
}

// Values returns the node value storage written by the run.
func (p *Pregel) Values() *values.NodeValue {
	return p.values
}

func (p *Pregel) setState(s State) {
	p.state.Store(int32(s))
}

// Run executes the computation until it converges, is halted by the master
// computation, reaches MaxIterations or is terminated.
//
// Description:
//
//	Termination through ctx or the termination flag is not an error: the
//	result has OutcomeTerminated. A panic in any vertex program call
//	aborts the run and is returned as an error wrapping a
//	*concurrency.PanicError. Contract violations additionally satisfy
//	errors.Is(err, ErrContractViolation).
//
// Inputs:
//   - ctx: Cancellation and tracing context.
//
// Outputs:
//   - *Result: The run result. Nil on error.
//   - error: ErrAlreadyRun or the abort cause.
func (p *Pregel) Run(ctx context.Context) (*Result, error) {
	if !p.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}
	defer p.messenger.Release()
	if closer, ok := p.computation.(ClosingComputation); ok {
		defer closer.Close()
	}
	return p.run(ctx)
}

func (p *Pregel) run(ctx context.Context) (*Result, error) {
	start := time.Now()
	ctx, span := startRunSpan(ctx, p)
	defer span.End()

	logger := telemetry.LoggerWithTrace(ctx, p.logger.With(slog.String("run_id", p.runID)))
	logger.Info("pregel run started",
		slog.Int64("node_count", p.topology.NodeCount()),
		slog.Int("concurrency", p.config.Concurrency),
		slog.String("discipline", p.config.Discipline.String()),
		slog.String("partitioning", p.strategy.String()),
		slog.Int("partitions", len(p.partitions)),
		slog.Int("max_iterations", p.config.MaxIterations))

	flag := concurrency.AllRunning(concurrency.ContextFlag(ctx), p.flag)
	result := &Result{
		RunID:        p.runID,
		Values:       p.values,
		Partitioning: p.strategy,
		Partitions:   len(p.partitions),
	}

	finish := func(outcome Outcome) (*Result, error) {
		p.setState(StateHalted)
		result.Outcome = outcome
		result.Converged = outcome == OutcomeConverged || outcome == OutcomeMasterHalted
		result.Duration = time.Since(start)

		setRunSpanResult(span, result)
		recordRunMetrics(ctx, outcome.String(), result.Duration)
		logger.Info("pregel run finished",
			slog.String("outcome", outcome.String()),
			slog.Int("supersteps", result.Supersteps),
			slog.Bool("converged", result.Converged),
			slog.Duration("duration", result.Duration))
		return result, nil
	}

	fail := func(superstep int, err error) (*Result, error) {
		p.setState(StateHalted)
		telemetry.RecordError(span, err, "run aborted")
		recordRunMetrics(ctx, "failed", time.Since(start))
		logger.Error("pregel run aborted",
			slog.Int("superstep", superstep),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("pregel run %s aborted at superstep %d: %w", p.runID, superstep, err)
	}

	p.setState(StateInitializing)
	if p.topology.NodeCount() == 0 {
		return finish(OutcomeConverged)
	}
	if !flag.Running() {
		return finish(OutcomeTerminated)
	}

	terminated, err := p.initialize(ctx, flag)
	if err != nil {
		return fail(-1, err)
	}
	if terminated {
		return finish(OutcomeTerminated)
	}

	throttle := rate.Sometimes{Interval: progressInterval}
	for superstep := 0; ; superstep++ {
		if superstep >= p.config.MaxIterations {
			return finish(OutcomeMaxIterations)
		}
		if !flag.Running() {
			return finish(OutcomeTerminated)
		}

		p.setState(StateRunning)
		stats, terminated, err := p.superstep(ctx, superstep, flag)
		if err != nil {
			return fail(superstep, err)
		}
		if terminated {
			return finish(OutcomeTerminated)
		}

		result.Stats = append(result.Stats, stats)
		result.Supersteps = superstep + 1

		logger.Debug("superstep completed",
			slog.Int("superstep", superstep),
			slog.Int64("nodes_computed", stats.NodesComputed),
			slog.Int64("active_nodes", stats.ActiveNodes),
			slog.Int64("messages_sent", stats.MessagesSent),
			slog.Duration("duration", stats.Duration))
		throttle.Do(func() {
			logger.Info("pregel progress",
				slog.Int("superstep", superstep),
				slog.Int64("active_nodes", stats.ActiveNodes),
				slog.Int64("messages_sent", stats.MessagesSent))
		})
		if p.progress != nil {
			p.progress(p.runID, stats)
		}

		p.checkpoint(ctx, logger, superstep)

		decision := Continue
		if p.master != nil {
			p.setState(StateMasterCompute)
			decision, err = p.masterCompute(stats)
			if err != nil {
				return fail(superstep, err)
			}
		}

		if stats.ActiveNodes == 0 && stats.MessagesSent == 0 {
			return finish(OutcomeConverged)
		}
		if decision == Halt {
			return finish(OutcomeMasterHalted)
		}
	}
}

// initialize calls Init for every node, partitions in parallel.
func (p *Pregel) initialize(ctx context.Context, runFlag concurrency.TerminationFlag) (bool, error) {
	err := p.pool.SpawnMany(ctx, len(p.partitions), func(ctx context.Context, unit int) error {
		part := p.partitions[unit]
		checker := concurrency.NewChecker(concurrency.AllRunning(runFlag, concurrency.ContextFlag(ctx)), p.config.CheckInterval)
		ictx := newInitContext(p.topology, p.values)
		defer ictx.close()

		for node := part.Start(); node < part.End(); node++ {
			if !checker.Tick() {
				return concurrency.ErrTerminated
			}
			ictx.bind(node)
			p.computation.Init(ictx)
			p.active[node] = true
		}
		return nil
	})
	return classifyAbort(err, runFlag)
}

// superstep runs one superstep across all partitions. The return of
// SpawnMany is the barrier.
func (p *Pregel) superstep(ctx context.Context, superstep int, runFlag concurrency.TerminationFlag) (SuperstepStats, bool, error) {
	ctx, span := startSuperstepSpan(ctx, superstep)
	defer span.End()

	start := time.Now()
	p.messenger.InitSuperstep(superstep)

	perWorker := make([]workerStats, len(p.partitions))
	err := p.pool.SpawnMany(ctx, len(p.partitions), func(ctx context.Context, unit int) error {
		return p.computePartition(ctx, unit, superstep, runFlag, &perWorker[unit])
	})

	stats := SuperstepStats{Superstep: superstep, Duration: time.Since(start)}
	for _, w := range perWorker {
		stats.NodesComputed += w.computed
		stats.ActiveNodes += w.active
		stats.MessagesSent += w.sent
	}
	setSuperstepSpanResult(span, stats)

	terminated, err := classifyAbort(err, runFlag)
	if err != nil {
		telemetry.RecordError(span, err, "superstep aborted")
		return stats, false, err
	}
	if terminated {
		span.SetStatus(codes.Error, "terminated")
		return stats, true, nil
	}

	recordSuperstepMetrics(ctx, p.config.Discipline.String(), stats)
	return stats, false, nil
}

// computePartition computes the scheduled nodes of one partition.
//
// A node is scheduled when it is active or has messages. Both the active
// bits and the node values of the partition are written only here, so no
// locking is needed.
func (p *Pregel) computePartition(ctx context.Context, unit, superstep int, runFlag concurrency.TerminationFlag, stats *workerStats) error {
	part := p.partitions[unit]
	checker := concurrency.NewChecker(concurrency.AllRunning(runFlag, concurrency.ContextFlag(ctx)), p.config.CheckInterval)
	worker := newComputeWorker(p.topology, p.values, p.messenger, superstep)
	it := messages.NewIterator()

	var cctx *ComputeContext
	defer func() {
		if cctx != nil {
			cctx.close()
		}
		stats.sent = worker.sent
	}()

	for node := part.Start(); node < part.End(); node++ {
		if !checker.Tick() {
			return concurrency.ErrTerminated
		}
		if !p.active[node] && !p.messenger.HasMessages(node) {
			continue
		}

		p.messenger.Messages(node, it)
		cctx = worker.bind(node)
		p.computation.Compute(cctx, it)
		cctx.close()

		next := cctx.nextActive()
		p.active[node] = next
		stats.computed++
		if next {
			stats.active++
		}
	}
	return nil
}

// masterCompute runs the master computation on the scheduler goroutine.
// A panic is returned as a *concurrency.PanicError.
func (p *Pregel) masterCompute(stats SuperstepStats) (decision Decision, err error) {
	mctx := &MasterContext{
		values:    p.values,
		tolerance: p.config.Tolerance,
		stats:     stats,
		nodeCount: p.topology.NodeCount(),
		open:      true,
	}
	defer func() { mctx.open = false }()
	defer func() {
		if r := recover(); r != nil {
			err = &concurrency.PanicError{Unit: -1, Value: r, Stack: string(debug.Stack())}
		}
	}()
	return p.master.MasterCompute(mctx), nil
}

// checkpoint saves a snapshot when one is due. Failures are logged and
// the run continues.
func (p *Pregel) checkpoint(ctx context.Context, logger *slog.Logger, superstep int) {
	if p.checkpointer == nil || p.config.CheckpointEvery == 0 || (superstep+1)%p.config.CheckpointEvery != 0 {
		return
	}
	snapshot := checkpoint.Capture(p.runID, superstep, p.values, p.active)
	if err := p.checkpointer.Save(ctx, snapshot); err != nil {
		logger.Warn("checkpoint failed",
			slog.Int("superstep", superstep),
			slog.String("error", err.Error()))
	}
}

// classifyAbort separates cooperative termination from failures. A panic
// always wins over a concurrent termination request.
func classifyAbort(err error, runFlag concurrency.TerminationFlag) (bool, error) {
	if err == nil {
		return false, nil
	}
	var panicErr *concurrency.PanicError
	if errors.As(err, &panicErr) {
		return false, err
	}
	if errors.Is(err, concurrency.ErrTerminated) || !runFlag.Running() {
		return true, nil
	}
	return false, err
}
