package cli

import (
	"encoding/json"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/application/prediction"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/domain/compound"
	domain "github.com/turtacn/AntiMalaria-Intelligence/internal/domain/prediction"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/intelligence/featurize"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/intelligence/potency"
)

// cliUser owns batches produced offline.
const cliUser = "cli"

type predictOptions struct {
	structureFlags
	model      string
	descriptor string
	modelDir   string
	noEnrich   bool
	pubchemURL string
}

// NewPredictCmd creates the predict command.
func NewPredictCmd() *cobra.Command {
	opts := &predictOptions{}

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict pIC50 for SMILES structures",
		Long: "Encode each structure, score the batch with one estimator artifact from the\n" +
			"model directory and report potency, category and LELP. Reference data is\n" +
			"looked up on PubChem unless --no-enrich is set.",
		Example: "  ami predict --model rf_ecfp.json --smiles 'CCO,c1ccccc1O'\n" +
			"  ami predict --model gbm_pubchemfp.gob --descriptor PUBCHEMFP --file compounds.csv -o csv",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredict(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.model, "model", "", "estimator artifact file name in the model directory [REQUIRED]")
	f.StringVar(&opts.descriptor, "descriptor", "", "molecular descriptor (ECFP, PUBCHEMFP); inferred from the artifact name when empty")
	f.StringVar(&opts.smiles, "smiles", "", "comma-separated SMILES")
	f.StringVar(&opts.file, "file", "", "CSV file with one SMILES per row in the first column")
	f.StringVar(&opts.modelDir, "model-dir", "", "model directory (default: model.dir from config)")
	f.BoolVar(&opts.noEnrich, "no-enrich", false, "skip the PubChem lookup")
	f.StringVar(&opts.pubchemURL, "pubchem-url", "", "PubChem REST base URL (default: enrichment.base_url from config)")
	_ = cmd.MarkFlagRequired("model")

	return cmd
}

func runPredict(cmd *cobra.Command, opts *predictOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := cliCtx.commandContext(cmd.Context())
	defer cancel()
	log := cliCtx.Logger

	scheme, err := schemeFor(opts.descriptor, opts.model)
	if err != nil {
		return err
	}
	structures, source, err := opts.read(cliCtx.Config.Pipeline.MaxSMILESLength)
	if err != nil {
		return err
	}

	models, err := cliCtx.modelRegistry(opts.modelDir)
	if err != nil {
		return err
	}
	if err := models.Load(ctx, opts.model); err != nil {
		return err
	}
	engine := potency.NewEngine(
		featurize.NewEncoder(cliCtx.loadMasks()),
		models,
		potency.WithEncodeWorkers(cliCtx.Config.Model.EncodeWorkers),
		potency.WithLogger(log),
	)
	potencies, err := engine.Predict(ctx, structures, opts.model, scheme)
	if err != nil {
		return err
	}

	records := map[string]*compound.ReferenceRecord{}
	if !opts.noEnrich {
		coord, err := cliCtx.enricher(opts.pubchemURL)
		if err != nil {
			return err
		}
		records = coord.Enrich(ctx, structures)
	}

	results, err := prediction.NewComposer(cliCtx.Config.Pipeline.ComposeWorkers, log).
		ComposeAll(ctx, structures, potencies, records)
	if err != nil {
		return err
	}

	batch := domain.NewBatch(cliUser, uuid.Nil, source)
	batch.Complete(results)
	log.Info("prediction complete",
		logging.String("model", opts.model),
		logging.String("scheme", scheme.String()),
		logging.Int("structures", len(results)))

	return PrintResult(cmd, &predictionReport{batch: batch})
}

// predictionReport renders a completed batch for each output format.
type predictionReport struct {
	batch *domain.Batch
}

func (r *predictionReport) TableHeaders() []string {
	return []string{"SMILES", "pIC50", "Category", "LELP", "PubChem CID", "IUPAC Name"}
}

func (r *predictionReport) TableRows() [][]string {
	rows := make([][]string, 0, len(r.batch.Results))
	for _, res := range r.batch.Results {
		row := []string{
			res.SMILES,
			strconv.FormatFloat(res.PIC50, 'f', 3, 64),
			string(res.Category),
			"",
			"",
			"",
		}
		if res.LELP != nil {
			row[3] = strconv.FormatFloat(*res.LELP, 'f', 3, 64)
		}
		if c := res.Compound; c != nil {
			if c.CID != nil {
				row[4] = strconv.FormatInt(*c.CID, 10)
			}
			if c.IUPACName != nil {
				row[5] = *c.IUPACName
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// CSV uses the same layout as the service download.
func (r *predictionReport) CSV() ([]byte, error) {
	return prediction.WriteCSV(r.batch)
}

func (r *predictionReport) MarshalJSON() ([]byte, error) {
	results := r.batch.Results
	if results == nil {
		results = []*domain.Result{}
	}
	return json.Marshal(results)
}
