// Package solve drives the whole pipeline from program text to models:
// parsing, grounding, constraint translation, completion and search. A
// Solver is multi-shot: every Add extends the accumulated program, and the
// next Solve grounds and solves the extended whole, so facts and
// constraints from earlier steps persist while blocking nogoods from
// enumeration do not. Optimization directives are solved by branch and
// bound over the hidden objective variable.
package solve

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/wanko/clingo/pkg/assemble"
	"github.com/wanko/clingo/pkg/ground"
	"github.com/wanko/clingo/pkg/parse"
	"github.com/wanko/clingo/pkg/program"
	"github.com/wanko/clingo/pkg/search"
	"github.com/wanko/clingo/pkg/store"
	"github.com/wanko/clingo/pkg/support"
	"github.com/wanko/clingo/pkg/theory"
	"github.com/wanko/clingo/pkg/translate"
)

// Mode selects the constraint semantics.
type Mode uint8

const (
	// ModeHTC applies the founded value semantics: constraint variables
	// carry definedness atoms, head occurrences define their variables,
	// and variables that stay undefined in an answer are pinned to zero.
	ModeHTC Mode = iota
	// ModeCSP attaches sum and distinct constraints directly, without
	// definedness. Every variable always has a value.
	ModeCSP
)

type solverConfig struct {
	minInt        int
	maxInt        int
	maxModels     int
	mode          Mode
	strict        bool
	seed          int64
	restartBase   int
	portfolio     int
	checkSolution bool
	checkState    bool
	trace         io.Writer
	handler       func(Model) bool
	logger        *logrus.Logger
}

// Option applies an option to the given solver config.
type Option func(config *solverConfig)

// apply sequentially applies the given options to the config.
func (c *solverConfig) apply(options []Option) {
	for _, option := range options {
		option(c)
	}
}

func newInvalidConfigError(msg string) error {
	return errors.Errorf("invalid solver config: %s", msg)
}

// validate returns an error if the config isn't valid.
func (c *solverConfig) validate() (err error) {
	switch config := c; {
	case config.minInt > config.maxInt:
		err = newInvalidConfigError("min-int must not be larger than max-int")
	case config.maxModels < 0:
		err = newInvalidConfigError("negative model limit")
	case config.portfolio < 1:
		err = newInvalidConfigError("portfolio needs at least one core")
	case config.logger == nil:
		err = newInvalidConfigError("nil logger")
	}

	return
}

func defaultConfig() *solverConfig {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &solverConfig{
		minInt:    -20,
		maxInt:    20,
		portfolio: 1,
		logger:    logger,
	}
}

// WithBounds configures the integer variable domain [min, max].
func WithBounds(min, max int) Option {
	return func(config *solverConfig) {
		config.minInt = min
		config.maxInt = max
	}
}

// WithMaxModels stops enumeration after n models. Zero enumerates all.
func WithMaxModels(n int) Option {
	return func(config *solverConfig) {
		config.maxModels = n
	}
}

// WithMode configures the constraint semantics.
func WithMode(mode Mode) Option {
	return func(config *solverConfig) {
		config.mode = mode
	}
}

// WithStrict turns warnings, like guard bounds outside the integer domain,
// into errors.
func WithStrict() Option {
	return func(config *solverConfig) {
		config.strict = true
	}
}

// WithSeed perturbs the initial decision order of the search.
func WithSeed(seed int64) Option {
	return func(config *solverConfig) {
		config.seed = seed
	}
}

// WithRestartBase scales the Luby restart sequence.
func WithRestartBase(n int) Option {
	return func(config *solverConfig) {
		config.restartBase = n
	}
}

// WithPortfolio races n independently seeded search cores per solve call;
// the first finished core supplies the result and cancels its peers.
func WithPortfolio(n int) Option {
	return func(config *solverConfig) {
		config.portfolio = n
	}
}

// WithSolutionCheck verifies every model before it is reported: the order
// constraints are evaluated against the assigned values and the completion
// nogoods are replayed through an independent SAT solver.
func WithSolutionCheck() Option {
	return func(config *solverConfig) {
		config.checkSolution = true
	}
}

// WithStateCheck verifies that the bound state assigns every variable a
// single in-domain value whenever a model is extracted.
func WithStateCheck() Option {
	return func(config *solverConfig) {
		config.checkState = true
	}
}

// WithTrace writes the rules and constraints emitted by the translation to
// w in source form.
func WithTrace(w io.Writer) Option {
	return func(config *solverConfig) {
		config.trace = w
	}
}

// WithModelHandler calls handler for every model. Returning false stops the
// enumeration. With a portfolio of more than one core the handler runs
// after the winning core finished.
func WithModelHandler(handler func(Model) bool) Option {
	return func(config *solverConfig) {
		config.handler = handler
	}
}

// WithLogger configures the logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(config *solverConfig) {
		config.logger = logger
	}
}

// Result is the outcome of one solve call.
type Result struct {
	Status  search.Status
	Models  []Model
	Optimum *int
	Stats   Statistics
}

// Statistics counts the work of one or more solve calls. With a portfolio
// only the winning core contributes.
type Statistics struct {
	Steps         int
	Models        int
	Conflicts     uint64
	Decisions     uint64
	Restarts      uint64
	Propagations  uint64
	Learnt        uint64
	OrderLiterals int
	Constraints   int
	AuxVars       int
}

func (s *Statistics) add(o Statistics) {
	s.Steps += o.Steps
	s.Models += o.Models
	s.Conflicts += o.Conflicts
	s.Decisions += o.Decisions
	s.Restarts += o.Restarts
	s.Propagations += o.Propagations
	s.Learnt += o.Learnt
	s.OrderLiterals += o.OrderLiterals
	s.Constraints += o.Constraints
	s.AuxVars += o.AuxVars
}

// Solver accumulates program steps and solves them. It is not safe for
// concurrent use; portfolio parallelism happens inside a single Solve call.
type Solver struct {
	cfg   *solverConfig
	steps []string
	stats Statistics
}

// New returns a solver configured with the given options.
func New(options ...Option) (*Solver, error) {
	config := defaultConfig()
	config.apply(options)
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &Solver{cfg: config}, nil
}

// Add appends a program step. The text is parsed for validation right away;
// grounding happens on the next Solve call over all accumulated steps.
func (s *Solver) Add(src string) error {
	if _, err := parse.Parse(src); err != nil {
		return err
	}
	s.steps = append(s.steps, src)
	return nil
}

// Statistics returns the counters accumulated over all solve calls.
func (s *Solver) Statistics() Statistics {
	return s.stats
}

// Translate grounds the accumulated program and writes the rules and
// constraints produced by the founded semantics translation to w, without
// searching for models. In ModeCSP no translation runs and nothing is
// written.
func (s *Solver) Translate(w io.Writer) error {
	_, err := s.build(w)
	return err
}

// Solve grounds the accumulated program and enumerates its models. Programs
// with optimization directives are minimized by branch and bound instead;
// their result carries the improving models and, when the search was not
// cut short, the proven optimum.
func (s *Solver) Solve(ctx context.Context) (*Result, error) {
	return s.solve(ctx, s.cfg.handler)
}

// Stream enumerates models over a channel. The model channel closes when
// the search ends; the error channel then carries at most one entry.
func (s *Solver) Stream(ctx context.Context) (<-chan Model, <-chan error) {
	models := make(chan Model)
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		defer close(models)
		handler := func(m Model) bool {
			select {
			case models <- m:
				return true
			case <-ctx.Done():
				return false
			}
		}
		if _, err := s.solve(ctx, handler); err != nil {
			errs <- err
		}
	}()
	return models, errs
}

func (s *Solver) solve(ctx context.Context, handler func(Model) bool) (*Result, error) {
	sp, err := s.build(s.cfg.trace)
	if err != nil {
		return nil, err
	}

	var res *Result
	if s.cfg.portfolio > 1 {
		res, err = s.race(ctx, sp, handler)
	} else {
		res, _, err = s.run(ctx, sp, 0, handler)
	}
	if err != nil {
		return nil, err
	}

	res.Stats.Steps = 1
	res.Stats.Models = len(res.Models)
	res.Stats.Constraints = len(sp.grd.Problem.Constraints()) + len(sp.grd.Problem.Ties())
	res.Stats.AuxVars = sp.aux
	s.stats.add(res.Stats)
	return res, nil
}

// prepared is one grounded, translated and assembled step, immutable input
// shared by all search cores.
type prepared struct {
	prg  *program.Program
	grd  *assemble.Ground
	vars []theory.Term
	aux  int
	opt  bool
}

func (s *Solver) build(trace io.Writer) (*prepared, error) {
	parsed, err := parse.Parse(strings.Join(s.steps, "\n"))
	if err != nil {
		return nil, err
	}
	prg, err := ground.Ground(parsed, store.New(), s.cfg.logger)
	if err != nil {
		return nil, err
	}
	if err := s.checkGuards(prg); err != nil {
		return nil, err
	}

	sums := prg.Theory
	var vars []theory.Term
	aux := 0
	opt := false
	switch s.cfg.mode {
	case ModeHTC:
		tr := translate.New(prg, translate.Config{
			MinInt: s.cfg.minInt,
			MaxInt: s.cfg.maxInt,
			Trace:  trace,
			Logger: s.cfg.logger,
		})
		if err := tr.Run(); err != nil {
			return nil, err
		}
		sums = tr.Sums()
		vars = tr.Variables()
		aux = tr.AuxVars()
		opt = tr.HasObjective()
	case ModeCSP:
		if len(prg.Objectives) > 0 {
			return nil, errors.New("optimization directives need founded semantics")
		}
	}

	an := support.Analyze(prg, s.cfg.logger)
	grd, err := assemble.Assemble(prg, an, sums, s.cfg.logger)
	if err != nil {
		return nil, err
	}
	return &prepared{prg: prg, grd: grd, vars: vars, aux: aux, opt: opt}, nil
}

// checkGuards reports constant guard bounds outside the integer domain. The
// order literals of such bounds collapse to truth constants, clamping the
// constraint at the domain border.
func (s *Solver) checkGuards(prg *program.Program) error {
	for _, atom := range prg.Theory {
		if atom.Guard == nil {
			continue
		}
		v, err := theory.Eval(atom.Guard.Term)
		if err != nil || !v.IsNumber() {
			continue
		}
		if v.Num < s.cfg.minInt || v.Num > s.cfg.maxInt {
			if s.cfg.strict {
				return errors.Errorf("guard bound %d of %s outside [%d,%d]", v.Num, atom, s.cfg.minInt, s.cfg.maxInt)
			}
			s.cfg.logger.WithFields(logrus.Fields{
				"bound": v.Num,
				"min":   s.cfg.minInt,
				"max":   s.cfg.maxInt,
			}).Warn("guard bound clamped to the integer domain")
		}
	}
	return nil
}

// race runs one search core per portfolio slot over the shared prepared
// input. The first complete core wins and cancels its peers; when every
// core is interrupted the one that got furthest supplies the partial
// result.
func (s *Solver) race(ctx context.Context, sp *prepared, handler func(Model) bool) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		won      *Result
		partial  *Result
		grp, gtx = errgroup.WithContext(ctx)
	)
	for core := 0; core < s.cfg.portfolio; core++ {
		core := core
		grp.Go(func() error {
			res, complete, err := s.run(gtx, sp, core, nil)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if complete {
				if won == nil {
					won = res
					cancel()
				}
			} else if partial == nil || len(res.Models) > len(partial.Models) {
				partial = res
			}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	res := won
	if res == nil {
		res = partial
	}
	if handler != nil {
		for i, m := range res.Models {
			if !handler(m) {
				res.Models = res.Models[:i+1]
				break
			}
		}
	}
	return res, nil
}

func (s *Solver) run(ctx context.Context, sp *prepared, core int, handler func(Model) bool) (*Result, bool, error) {
	seed := s.cfg.seed
	if core > 0 {
		seed += int64(core)
	}
	slv := search.New(sp.grd, search.Config{
		MinInt:   s.cfg.minInt,
		MaxInt:   s.cfg.maxInt,
		LubyBase: s.cfg.restartBase,
		Seed:     seed,
	}, s.cfg.logger)

	res := &Result{Status: search.Unknown}
	var (
		complete bool
		err      error
	)
	if sp.opt {
		complete, err = s.optimize(ctx, sp, slv, res, handler)
	} else {
		complete, err = s.enumerate(ctx, sp, slv, res, handler)
	}
	if err != nil {
		return nil, false, err
	}

	st := slv.Stats()
	res.Stats.Conflicts = st.Conflicts
	res.Stats.Decisions = st.Decisions
	res.Stats.Restarts = st.Restarts
	res.Stats.Propagations = st.Propagations
	res.Stats.Learnt = st.Learnt
	res.Stats.OrderLiterals = slv.State().OrderLiterals()
	return res, complete, nil
}

// enumerate drains the search space model by model, blocking each one. It
// reports whether the enumeration ran to completion.
func (s *Solver) enumerate(ctx context.Context, sp *prepared, slv *search.Solver, res *Result, handler func(Model) bool) (bool, error) {
	for {
		switch slv.Solve(ctx, nil) {
		case search.Interrupted:
			if res.Status != search.Satisfiable {
				res.Status = search.Interrupted
			}
			return false, nil
		case search.Unsatisfiable:
			if res.Status != search.Satisfiable {
				res.Status = search.Unsatisfiable
			}
			return true, nil
		}

		m, err := s.extract(sp, slv)
		if err != nil {
			return false, err
		}
		res.Status = search.Satisfiable
		res.Models = append(res.Models, m)
		if handler != nil && !handler(m) {
			return true, nil
		}
		if s.cfg.maxModels > 0 && len(res.Models) >= s.cfg.maxModels {
			return true, nil
		}
		if !slv.Block() {
			return true, nil
		}
	}
}

// optimize runs branch and bound over the hidden objective variable. Every
// model bounds the objective strictly below its cost through an assumed
// order literal; the last model is optimal when the tightened problem turns
// unsatisfiable.
func (s *Solver) optimize(ctx context.Context, sp *prepared, slv *search.Solver, res *Result, handler func(Model) bool) (bool, error) {
	optVar, ok := sp.grd.Problem.Lookup(translate.OptVar)
	if !ok {
		return false, errors.New("objective variable missing from the order problem")
	}

	var assumptions []store.Lit
	for {
		switch slv.Solve(ctx, assumptions) {
		case search.Interrupted:
			if res.Status != search.Satisfiable {
				res.Status = search.Interrupted
			}
			return false, nil
		case search.Unsatisfiable:
			if res.Status == search.Satisfiable {
				res.Optimum = res.Models[len(res.Models)-1].Cost
				return true, nil
			}
			res.Status = search.Unsatisfiable
			return true, nil
		}

		m, err := s.extract(sp, slv)
		if err != nil {
			return false, err
		}
		cost := slv.State().Value(optVar)
		m.Cost = &cost
		res.Status = search.Satisfiable
		res.Models = append(res.Models, m)
		if handler != nil && !handler(m) {
			return false, nil
		}
		if s.cfg.maxModels > 0 && len(res.Models) >= s.cfg.maxModels {
			return false, nil
		}
		assumptions = []store.Lit{slv.State().Literal(slv, optVar, cost-1)}
	}
}
