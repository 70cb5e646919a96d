package arena

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"llmarena/internal/agent"
	"llmarena/internal/domain"
	"llmarena/internal/llm"
	"llmarena/internal/market"
	"llmarena/internal/sim"
	"llmarena/internal/store"
)

// defaultMaxRetries is the number of extra agent attempts after the first.
const defaultMaxRetries = 2

// RunnerConfig carries the session parameters shared by all competitors.
type RunnerConfig struct {
	Competitors     []domain.Competitor
	Tickers         map[domain.MarketType][]string
	SlippageBps     float64
	FeeBps          float64
	MaxRetries      int            // extra attempts after the first; default 2
	DailyCallLimits map[string]int // provider -> billed calls per day; 0 = unlimited
	APIKeys         map[string]string
	HistoryDays     int
	HeadlineLimit   int

	// Enricher adds fundamentals, earnings, and insider sections to equity
	// briefings when set.
	Enricher market.Enricher
}

// Runner drives every competitor through one trading session: budget check,
// Strategist, RiskGuard, order execution, persistence.
type Runner struct {
	cfg      RunnerConfig
	store    store.Store
	adapters map[domain.MarketType]market.Adapter
	brokers  map[string]*sim.Broker
	log      *slog.Logger

	// Seams for tests.
	newClient func(provider, model, apiKey string) (llm.Client, error)
	now       func() time.Time
}

// NewRunner creates a Runner over the given store and market adapters.
func NewRunner(st store.Store, adapters map[domain.MarketType]market.Adapter, cfg RunnerConfig) *Runner {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = 90
	}
	if cfg.HeadlineLimit <= 0 {
		cfg.HeadlineLimit = 5
	}
	return &Runner{
		cfg:       cfg,
		store:     st,
		adapters:  adapters,
		brokers:   make(map[string]*sim.Broker),
		log:       slog.Default().With("component", "runner"),
		newClient: llm.NewClient,
		now:       time.Now,
	}
}

// RunSession runs one session for every competitor and returns a result per
// competitor ID. One competitor's failure never aborts the others. With
// dryRun set, agents are invoked but nothing is executed, persisted, or
// billed.
func (r *Runner) RunSession(ctx context.Context, marketType domain.MarketType, sessionType domain.SessionType, sessionDate string, dryRun bool) (map[string]CompetitorResult, error) {
	adapter, ok := r.adapters[marketType]
	if !ok {
		return nil, fmt.Errorf("no adapter for market %s", marketType)
	}
	tickers := r.cfg.Tickers[marketType]
	if len(tickers) == 0 {
		return nil, fmt.Errorf("no tickers configured for market %s", marketType)
	}

	// Market data is shared across competitors so it is fetched once.
	briefings := market.BuildBriefings(ctx, adapter, tickers, sessionDate, r.cfg.HistoryDays, r.cfg.HeadlineLimit)
	if r.cfg.Enricher != nil && marketType == domain.MarketUSEquity {
		market.EnrichBriefings(ctx, r.cfg.Enricher, briefings)
	}
	prices := market.LatestPrices(ctx, adapter, tickers)

	rendered := make([]string, 0, len(briefings))
	for _, b := range briefings {
		rendered = append(rendered, b.PromptString())
	}

	results := make(map[string]CompetitorResult, len(r.cfg.Competitors))
	for _, c := range r.cfg.Competitors {
		res := r.runCompetitor(ctx, c, sessionType, sessionDate, rendered, prices, dryRun)
		results[c.ID] = res
		r.log.Info("competitor session finished",
			"competitor", c.ID, "status", res.Status,
			"skip_reason", res.SkipReason, "fills", len(res.Fills))
	}
	return results, nil
}

func (r *Runner) runCompetitor(ctx context.Context, c domain.Competitor, sessionType domain.SessionType, sessionDate string, briefings []string, prices map[string]float64, dryRun bool) CompetitorResult {
	// Idempotency before any external call. Dry runs persist nothing, so a
	// session that already ran can still be previewed.
	if !dryRun {
		ran, err := r.store.HasRunToday(ctx, c.ID, sessionDate, sessionType)
		if err != nil {
			return Failed(fmt.Errorf("checking run log: %w", err))
		}
		if ran {
			return Skipped("already_ran")
		}
	}

	// Budget pre-check: the happy path needs two calls.
	limit := r.cfg.DailyCallLimits[c.Provider]
	count, err := r.store.DailyCallCount(ctx, c.Provider, sessionDate)
	if err != nil {
		return Failed(fmt.Errorf("loading call count: %w", err))
	}
	if limit > 0 && count+2 > limit {
		return Skipped("call_limit")
	}

	client, err := r.newClient(c.Provider, c.Model, r.cfg.APIKeys[c.Provider])
	if err != nil {
		return Failed(fmt.Errorf("creating llm client: %w", err))
	}

	broker, err := r.brokerFor(ctx, c)
	if err != nil {
		return Failed(err)
	}
	broker.UpdatePrices(prices)

	now := r.now()
	before := broker.Snapshot(now)

	result := CompetitorResult{Status: StatusRan, RunID: uuid.NewString(), EquityBefore: before.Equity()}
	var llmCalls []domain.LLMCall
	recordErr := func(stage, msg string) {
		result.Errors = append(result.Errors, stage+": "+msg)
	}

	// Strategist stage.
	strategist := agent.NewStrategist(client)
	proposal, repairUsed := r.invokeStrategist(ctx, strategist, agent.StrategistInput{
		Briefings:   briefings,
		SessionDate: sessionDate,
		SessionType: sessionType,
	}, c, &llmCalls, recordErr)
	result.Proposal = proposal

	// RiskGuard stage. A repair call means the budget estimate is stale.
	if proposal != nil && repairUsed && limit > 0 {
		count, err := r.store.DailyCallCount(ctx, c.Provider, sessionDate)
		if err != nil {
			return Failed(fmt.Errorf("loading call count: %w", err))
		}
		if count+len(llmCalls)+1 > limit {
			recordErr("risk_guard", "daily call limit reached, holding")
			proposal = nil
		}
	}

	if proposal != nil {
		guard := agent.NewRiskGuard(client)
		result.Plan = r.invokeRiskGuard(ctx, guard, agent.RiskGuardInput{
			Proposal:       proposal,
			Snapshot:       before,
			Prices:         prices,
			MaxOrders:      c.MaxOrdersPerRun,
			MaxPositionPct: c.MaxPositionPct,
		}, c, &llmCalls, recordErr)
	}

	// Execution stage. No plan means HOLD.
	orders := []domain.Order{}
	if result.Plan != nil {
		orders = result.Plan.Orders
	}
	if c.MaxOrdersPerRun > 0 && len(orders) > c.MaxOrdersPerRun {
		recordErr("orders", fmt.Sprintf("plan has %d orders, truncating to %d", len(orders), c.MaxOrdersPerRun))
		orders = orders[:c.MaxOrdersPerRun]
	}

	if dryRun {
		result.EquityAfter = result.EquityBefore
		return result
	}

	if len(orders) > 0 {
		fills, rejections := broker.ExecuteAll(orders, prices, now)
		result.Fills = fills
		for _, rej := range rejections {
			recordErr("execution", rej)
		}
	}

	after := broker.Snapshot(r.now())
	result.EquityAfter = after.Equity()

	// Persistence stage.
	runLog := &domain.RunLog{
		RunID:        result.RunID,
		CompetitorID: c.ID,
		SessionDate:  sessionDate,
		SessionType:  sessionType,
		Timestamp:    now,
		LLMCalls:     llmCalls,
		Proposal:     result.Proposal,
		TradePlan:    result.Plan,
		Fills:        result.Fills,
		Errors:       result.Errors,
		Before:       &before,
		After:        &after,
	}
	if err := r.store.SaveRunLog(ctx, runLog); err != nil {
		return Failed(fmt.Errorf("saving run log: %w", err))
	}
	for _, fill := range result.Fills {
		if err := r.store.SaveTrade(ctx, c.ID, fill); err != nil {
			return Failed(fmt.Errorf("saving trade: %w", err))
		}
	}
	if err := r.store.SaveSnapshot(ctx, c.ID, after); err != nil {
		return Failed(fmt.Errorf("saving snapshot: %w", err))
	}
	// Bill exactly the calls that were logged.
	if len(llmCalls) > 0 {
		if err := r.store.IncrementCallCount(ctx, c.Provider, sessionDate, len(llmCalls)); err != nil {
			return Failed(fmt.Errorf("incrementing call count: %w", err))
		}
	}

	return result
}

// brokerFor returns the competitor's broker, creating and rehydrating it from
// the latest persisted snapshot on first use.
func (r *Runner) brokerFor(ctx context.Context, c domain.Competitor) (*sim.Broker, error) {
	if b, ok := r.brokers[c.ID]; ok {
		return b, nil
	}

	b := sim.NewBroker(c.InitialCash, r.cfg.SlippageBps, r.cfg.FeeBps, c.MaxPositionPct)
	snap, err := r.store.LatestSnapshot(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot for %s: %w", c.ID, err)
	}
	if snap != nil {
		b.Load(snap.Cash, snap.RealizedPnL, snap.Positions)
	}

	r.brokers[c.ID] = b
	return b, nil
}

// ---------------------------------------------------------------------------
// Agent invocation with retries and repair
// ---------------------------------------------------------------------------

// invokeStrategist runs the Strategist with retries and a repair escalation.
// Every attempt is logged as a billed LLMCall. Returns the proposal (nil when
// all attempts failed) and whether a repair call was consumed.
func (r *Runner) invokeStrategist(ctx context.Context, s *agent.Strategist, in agent.StrategistInput, c domain.Competitor, calls *[]domain.LLMCall, recordErr func(stage, msg string)) (*domain.StrategistProposal, bool) {
	var lastResult agent.Result

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		proposal, res := s.Invoke(ctx, in)
		*calls = append(*calls, toLLMCall("strategist", c, res))
		if res.Success {
			return proposal, false
		}
		lastResult = res
		r.log.Warn("strategist attempt failed",
			"competitor", c.ID, "attempt", attempt+1, "error", res.Err)
	}

	// Parse failures leave raw text worth one repair attempt. Transport
	// failures leave nothing to repair.
	if lastResult.RawResponse != "" {
		var proposal domain.StrategistProposal
		res := agent.RepairJSON(ctx, s.Client(), lastResult.RawResponse, lastResult.Err, agent.StrategistProposalSchema, &proposal)
		*calls = append(*calls, toLLMCall("repair", c, res))
		if res.Success {
			return &proposal, true
		}
		recordErr("strategist", "repair failed: "+res.Err)
		return nil, true
	}

	recordErr("strategist", lastResult.Err)
	return nil, false
}

// invokeRiskGuard runs the RiskGuard with the same retry and repair envelope.
func (r *Runner) invokeRiskGuard(ctx context.Context, g *agent.RiskGuard, in agent.RiskGuardInput, c domain.Competitor, calls *[]domain.LLMCall, recordErr func(stage, msg string)) *domain.TradePlan {
	var lastResult agent.Result

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		plan, res := g.Invoke(ctx, in)
		*calls = append(*calls, toLLMCall("risk_guard", c, res))
		if res.Success {
			return plan
		}
		lastResult = res
		r.log.Warn("risk guard attempt failed",
			"competitor", c.ID, "attempt", attempt+1, "error", res.Err)
	}

	if lastResult.RawResponse != "" {
		var plan domain.TradePlan
		res := agent.RepairJSON(ctx, g.Client(), lastResult.RawResponse, lastResult.Err, agent.TradePlanSchema, &plan)
		*calls = append(*calls, toLLMCall("repair", c, res))
		if res.Success {
			return &plan
		}
		recordErr("risk_guard", "repair failed: "+res.Err)
		return nil
	}

	recordErr("risk_guard", lastResult.Err)
	return nil
}

func toLLMCall(callType string, c domain.Competitor, res agent.Result) domain.LLMCall {
	return domain.LLMCall{
		CallType:         callType,
		Provider:         c.Provider,
		Model:            c.Model,
		PromptTokens:     res.PromptTokens,
		CompletionTokens: res.CompletionTokens,
		LatencyMS:        res.LatencyMS,
		Success:          res.Success,
		Error:            res.Err,
		RawResponse:      res.RawResponse,
	}
}
