package pipeline

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-runway/internal/archive"
	"github.com/dvloznov/finance-runway/internal/domain"
	"github.com/dvloznov/finance-runway/internal/logger"
	"github.com/dvloznov/finance-runway/internal/processor"
	"github.com/dvloznov/finance-runway/internal/snapshot"
	"github.com/google/uuid"
)

// PipelineStep represents a single step in the refresh pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	RunID        string
	SnapshotDate civil.Date
	Window       domain.DateRange

	Accounts     []domain.AccountRaw
	Transactions []domain.TransactionRaw
	ArchiveURIs  []string

	Records  []domain.AccountRecord
	Spending *domain.SpendingSnapshot
	Runway   *domain.RunwaySnapshot

	Results []snapshot.WriteResult
}

// NewState creates the state of one run. The snapshot date is fixed here and
// stamped on every dataset the run produces.
func NewState(snapshotDate civil.Date) *PipelineState {
	return &PipelineState{
		RunID:        uuid.NewString(),
		SnapshotDate: snapshotDate,
		Window:       domain.TrailingYear(snapshotDate),
	}
}

// FetchAccountsStep fetches the raw accounts.
type FetchAccountsStep struct {
	Source Source
}

func (s *FetchAccountsStep) Execute(ctx context.Context, state *PipelineState) error {
	accounts, err := s.Source.FetchAccounts(ctx)
	if err != nil {
		return fmt.Errorf("fetch accounts: %w", err)
	}
	state.Accounts = accounts
	return nil
}

// FetchTransactionsStep fetches the transactions of the trailing window.
type FetchTransactionsStep struct {
	Source Source
}

func (s *FetchTransactionsStep) Execute(ctx context.Context, state *PipelineState) error {
	txs, err := s.Source.FetchTransactions(ctx, state.Window)
	if err != nil {
		return fmt.Errorf("fetch transactions: %w", err)
	}
	state.Transactions = txs
	return nil
}

// ArchiveRawStep saves the raw payloads. It does nothing without an archive.
type ArchiveRawStep struct {
	Archive RawArchive
}

func (s *ArchiveRawStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Archive == nil {
		return nil
	}
	uris, err := s.Archive.Save(ctx, archive.RawPayload{
		SnapshotDate: state.SnapshotDate,
		Accounts:     state.Accounts,
		Transactions: state.Transactions,
	})
	if err != nil {
		return fmt.Errorf("archive raw payload: %w", err)
	}
	state.ArchiveURIs = uris
	return nil
}

// LoadArchivedStep replaces the fetch steps when replaying a saved date.
type LoadArchivedStep struct {
	Archive RawArchive
}

func (s *LoadArchivedStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Archive == nil {
		return fmt.Errorf("load archived payload: no archive configured")
	}
	p, err := s.Archive.Load(ctx, state.SnapshotDate)
	if err != nil {
		return fmt.Errorf("load archived payload: %w", err)
	}
	state.Accounts = p.Accounts
	state.Transactions = p.Transactions
	log := logger.FromContext(ctx)
	log.Info().
		Int("accounts", len(p.Accounts)).
		Int("transactions", len(p.Transactions)).
		Msg("Loaded archived payload")
	return nil
}

// CategorizeStep classifies accounts and logs the per-category totals.
type CategorizeStep struct {
	Rules processor.Rules
}

func (s *CategorizeStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Records = processor.Categorize(state.Accounts, s.Rules, state.SnapshotDate)

	log := logger.FromContext(ctx)
	for _, total := range processor.GroupByCategory(state.Records) {
		log.Info().
			Str("category", string(total.Category)).
			Int("accounts", total.Accounts).
			Str("balance", total.Balance.StringFixed(2)).
			Msg("Accounts by category")
	}
	return nil
}

// AggregateSpendingStep derives the mandatory spending snapshot.
type AggregateSpendingStep struct {
	Rules processor.Rules
	// MandatoryCategories is checked against the fetched transactions.
	MandatoryCategories []string
}

func (s *AggregateSpendingStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	if missing := UnmatchedCategories(s.MandatoryCategories, state.Transactions); len(missing) > 0 {
		log.Warn().Strs("categories", missing).Msg("Mandatory categories without transactions")
	}

	state.Spending = processor.AggregateSpending(state.Transactions, s.Rules, state.SnapshotDate)
	log.Info().
		Str("api_mandatory_spend", state.Spending.APIMandatorySpend.StringFixed(2)).
		Str("grand_total_annual", state.Spending.GrandTotalAnnual.StringFixed(2)).
		Str("rounding", string(s.Rules.Rounding())).
		Msg("Aggregated mandatory spending")
	return nil
}

// ComputeRunwayStep derives the runway from records and spending.
type ComputeRunwayStep struct{}

func (s *ComputeRunwayStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Runway = processor.ComputeRunway(state.Records, state.Spending)
	log := logger.FromContext(ctx)
	if state.Runway == nil {
		log.Warn().Msg("Annual burn is not positive, runway not computed")
		return nil
	}
	log.Info().
		Int64("runway_days", state.Runway.RunwayDays).
		Str("runway_years", state.Runway.RunwayYears.String()).
		Msg("Computed runway")
	return nil
}

// WriteAccountsStep replaces the account snapshot.
type WriteAccountsStep struct {
	Writer SnapshotWriter
}

func (s *WriteAccountsStep) Execute(ctx context.Context, state *PipelineState) error {
	result, err := s.Writer.WriteAccounts(ctx, state.Records)
	if err != nil {
		return err
	}
	state.Results = append(state.Results, result)
	return nil
}

// WriteSpendingStep replaces the spending snapshot.
type WriteSpendingStep struct {
	Writer SnapshotWriter
}

func (s *WriteSpendingStep) Execute(ctx context.Context, state *PipelineState) error {
	result, err := s.Writer.WriteSpending(ctx, state.Spending)
	if err != nil {
		return err
	}
	state.Results = append(state.Results, result)
	return nil
}

// WriteRunwayStep replaces the runway snapshot.
type WriteRunwayStep struct {
	Writer SnapshotWriter
}

func (s *WriteRunwayStep) Execute(ctx context.Context, state *PipelineState) error {
	result, err := s.Writer.WriteRunway(ctx, state.Runway)
	if err != nil {
		return err
	}
	state.Results = append(state.Results, result)
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially. The first failing
// step aborts the run.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx).With().
		Str("run_id", state.RunID).
		Str("snapshot_date", state.SnapshotDate.String()).
		Logger()
	ctx = logger.WithContext(ctx, log)

	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// Deps are the collaborators of the standard pipelines.
type Deps struct {
	Source              Source
	Archive             RawArchive
	Writer              SnapshotWriter
	Rules               processor.Rules
	MandatoryCategories []string
}

// NewRefreshPipeline creates the daily pipeline: fetch, archive, transform
// and write.
func NewRefreshPipeline(d Deps) *Pipeline {
	return NewPipeline(
		&FetchAccountsStep{Source: d.Source},
		&FetchTransactionsStep{Source: d.Source},
		&ArchiveRawStep{Archive: d.Archive},
		&CategorizeStep{Rules: d.Rules},
		&AggregateSpendingStep{Rules: d.Rules, MandatoryCategories: d.MandatoryCategories},
		&ComputeRunwayStep{},
		&WriteAccountsStep{Writer: d.Writer},
		&WriteSpendingStep{Writer: d.Writer},
		&WriteRunwayStep{Writer: d.Writer},
	)
}

// NewReplayPipeline re-derives a snapshot from its archived raw payload.
func NewReplayPipeline(d Deps) *Pipeline {
	return NewPipeline(
		&LoadArchivedStep{Archive: d.Archive},
		&CategorizeStep{Rules: d.Rules},
		&AggregateSpendingStep{Rules: d.Rules, MandatoryCategories: d.MandatoryCategories},
		&ComputeRunwayStep{},
		&WriteAccountsStep{Writer: d.Writer},
		&WriteSpendingStep{Writer: d.Writer},
		&WriteRunwayStep{Writer: d.Writer},
	)
}
