package prediction

import (
	"context"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/domain/compound"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/domain/molecule"
	domain "github.com/turtacn/AntiMalaria-Intelligence/internal/domain/prediction"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/intelligence/common"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
)

// leFactor converts pIC50 per heavy atom into kcal/mol per heavy atom.
const leFactor = 1.37

// Composer turns a potency and a reference record into a result.
type Composer struct {
	workers int
	logger  logging.Logger
}

func NewComposer(workers int, logger logging.Logger) *Composer {
	if workers <= 0 {
		workers = 8
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Composer{workers: workers, logger: logger.Named("composer")}
}

// Compose builds the result for one structure.
func Compose(smiles string, potency float64, rec *compound.ReferenceRecord) *domain.Result {
	return &domain.Result{
		SMILES:   smiles,
		PIC50:    potency,
		LELP:     LELP(smiles, potency),
		Category: domain.CategoryFor(potency),
		Compound: rec,
	}
}

// LELP is logP divided by ligand efficiency, where LE = 1.37 * pIC50 /
// heavy atoms. It is nil when the structure does not parse, has no heavy
// atoms, has a logP of exactly zero, or has zero efficiency.
func LELP(smiles string, potency float64) *float64 {
	m, err := molecule.ParseSMILES(smiles)
	if err != nil {
		return nil
	}
	d := molecule.Describe(m)
	if d.HeavyAtoms == 0 || d.LogP == 0 {
		return nil
	}
	le := leFactor * potency / float64(d.HeavyAtoms)
	if le == 0 {
		return nil
	}
	v := d.LogP / le
	return &v
}

type composeItem struct {
	smiles  string
	potency float64
	record  *compound.ReferenceRecord
}

// ComposeAll composes every structure concurrently and returns the results
// in input order. potencies must align with structures.
func (c *Composer) ComposeAll(ctx context.Context, structures []string, potencies []float64, records map[string]*compound.ReferenceRecord) ([]*domain.Result, error) {
	if len(structures) != len(potencies) {
		return nil, errors.Newf(errors.ErrCodeInferenceFailed,
			"got %d potencies for %d structures", len(potencies), len(structures))
	}
	items := make([]composeItem, len(structures))
	for i, smi := range structures {
		items[i] = composeItem{smiles: smi, potency: potencies[i], record: records[smi]}
	}

	processor := common.NewBatchProcessor[composeItem, *domain.Result](
		common.WithBatchName("compose"),
		common.WithMaxConcurrency(c.workers),
		common.WithBatchLogger(c.logger),
	)
	res, err := processor.Process(ctx, items, func(_ context.Context, it composeItem) (*domain.Result, error) {
		return Compose(it.smiles, it.potency, it.record), nil
	})
	if err != nil {
		return nil, err
	}
	if idx, err := res.FirstError(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to compose result for "+structures[idx])
	}

	out := make([]*domain.Result, len(res.Results))
	for i, r := range res.Results {
		out[i] = r.Result
	}
	return out, nil
}
