package books

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/ledger-engine/ledger"
)

// =============================================================================
// SERVICE - Runs report definitions against a source
// =============================================================================

// Service runs reports. Each run re-reads its books from the Source.
type Service struct {
	Source   ledger.Source
	Location *time.Location
	presets  map[Kind]*Definition
}

// NewService creates a Service. Presets are the definitions used by the
// per-kind shortcuts (CashBook, PartyLedger, ...); the first preset of each
// kind wins.
func NewService(src ledger.Source, loc *time.Location, presets ...*Definition) *Service {
	if loc == nil {
		loc = time.UTC
	}
	s := &Service{Source: src, Location: loc, presets: make(map[Kind]*Definition)}
	for _, d := range presets {
		if _, ok := s.presets[d.Kind]; !ok {
			s.presets[d.Kind] = d
		}
	}
	return s
}

// Run computes one report.
func (s *Service) Run(ctx context.Context, def *Definition, req ReportRequest) (*ledger.Report, error) {
	opts, err := def.Options(req, s.Location)
	if err != nil {
		return nil, err
	}

	if opts.Group != nil {
		if err := s.attachAccounts(ctx, def, opts.Group); err != nil {
			return nil, err
		}
	}

	report, err := ledger.Load(ctx, s.Source, def.Book, opts)
	if err != nil {
		return nil, err
	}
	if opts.Group != nil {
		ledger.SortGroupsByTotalDesc(report.Groups)
	}
	return report, nil
}

// CashBook runs the cash book preset.
func (s *Service) CashBook(ctx context.Context, req ReportRequest) (*ledger.Report, error) {
	return s.runPreset(ctx, KindCashBook, req)
}

// PartyLedger runs the party ledger preset. At least one party is required.
func (s *Service) PartyLedger(ctx context.Context, req ReportRequest) (*ledger.Report, error) {
	return s.runPreset(ctx, KindPartyLedger, req)
}

// BalanceSlip runs the invoice balance slip preset.
func (s *Service) BalanceSlip(ctx context.Context, req ReportRequest) (*ledger.Report, error) {
	return s.runPreset(ctx, KindBalanceSlip, req)
}

// Outstanding runs the outstanding preset. Report.Groups holds the
// subgroup totals, largest first.
func (s *Service) Outstanding(ctx context.Context, req ReportRequest) (*ledger.Report, error) {
	return s.runPreset(ctx, KindOutstanding, req)
}

// Accounts loads and parses the account master.
func (s *Service) Accounts(ctx context.Context) ([]Account, error) {
	raw, err := s.Source.Load(ctx, BookAccounts)
	if err != nil {
		return nil, err
	}
	accounts, _ := ParseAccounts(raw)
	return accounts, nil
}

func (s *Service) runPreset(ctx context.Context, kind Kind, req ReportRequest) (*ledger.Report, error) {
	def, ok := s.presets[kind]
	if !ok {
		return nil, fmt.Errorf("%w: no %s report configured", ledger.ErrUnknownBook, kind)
	}
	return s.Run(ctx, def, req)
}

func (s *Service) attachAccounts(ctx context.Context, def *Definition, g *ledger.GroupOptions) error {
	accounts, err := s.Accounts(ctx)
	if err != nil {
		return err
	}
	idx := IndexAccounts(accounts)
	g.Openings = idx.Openings
	g.Names = idx.Names
	if len(g.Members) == 0 && def.Group != nil && def.Group.ByAccountSubgroup {
		g.Members = idx.Members
	}
	if len(g.Members) > 0 && !g.Prefixes.Empty() {
		g.Members = restrictMembers(g.Members, g.Prefixes)
	}
	return nil
}

func restrictMembers(members map[string]string, subgroups ledger.CodeSet) map[string]string {
	out := make(map[string]string, len(members))
	for party, sg := range members {
		if subgroups.Has(sg) {
			out[party] = sg
		}
	}
	return out
}
