package cli

import (
	"os"
	"strings"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/application/enrichment"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/application/prediction"
	domain "github.com/turtacn/AntiMalaria-Intelligence/internal/domain/prediction"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/chemdb/pubchem"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/intelligence/common"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/intelligence/featurize"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
)

// structureFlags are the input flags shared by predict and featurize.
type structureFlags struct {
	smiles string
	file   string
}

// read returns the normalized structures and how they were supplied. The
// file wins when both flags are set. Structures longer than maxLen bytes are
// rejected when maxLen is positive.
func (f *structureFlags) read(maxLen int) ([]string, domain.InputSource, error) {
	in := &prediction.BatchInput{ModelMethod: "-", ModelDescriptor: "-"}
	if f.file != "" {
		fh, err := os.Open(f.file)
		if err != nil {
			return nil, domain.InputSourceCSV, errors.Wrap(err, errors.ErrCodePredictionFileParse, "open input file").WithDetail(f.file)
		}
		defer fh.Close()
		in.File = &prediction.Upload{Name: f.file, Body: fh}
	} else {
		in.SMILES = prediction.SplitText(f.smiles)
	}
	if err := in.Validate(); err != nil {
		return nil, "", err
	}
	structures, source, err := in.Structures()
	if err != nil {
		return nil, source, err
	}
	if err := prediction.CheckLength(structures, maxLen); err != nil {
		return nil, source, err
	}
	return structures, source, nil
}

// maskPaths maps every scheme to its configured mask file.
func (c *CLIContext) maskPaths() map[featurize.Scheme]string {
	return map[featurize.Scheme]string{
		featurize.SchemeECFP:      c.Config.Model.ECFPFeaturesPath,
		featurize.SchemePubChemFP: c.Config.Model.PubChemFPFeaturesPath,
	}
}

// loadMasks loads every configured mask. A missing mask disables only its
// scheme.
func (c *CLIContext) loadMasks() *featurize.MaskRegistry {
	masks := featurize.NewMaskRegistry(c.Logger)
	masks.LoadFiles(c.maskPaths())
	return masks
}

// modelRegistry opens the registry over dir, or the configured directory.
func (c *CLIContext) modelRegistry(dir string) (*common.ModelRegistry, error) {
	if dir == "" {
		dir = c.Config.Model.Dir
	}
	return common.NewModelRegistry(dir, nil, c.Logger)
}

// enricher resolves reference records through PubChem with a run-local
// store. baseURL overrides the configured endpoint when set.
func (c *CLIContext) enricher(baseURL string) (*enrichment.Coordinator, error) {
	cfg := c.Config.Enrichment
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	client, err := pubchem.NewClientFromConfig(cfg, c.Logger)
	if err != nil {
		return nil, err
	}
	opts := append(enrichment.OptionsFromConfig(cfg), enrichment.WithLogger(c.Logger))
	return enrichment.NewCoordinator(enrichment.NewMemoryStore(), client, opts...), nil
}

// schemeFor picks the scheme named by descriptor, or the one whose name
// appears in the artifact file name.
func schemeFor(descriptor, artifact string) (featurize.Scheme, error) {
	if descriptor != "" {
		return featurize.ParseScheme(descriptor)
	}
	lower := strings.ToLower(artifact)
	for _, s := range featurize.Schemes() {
		if strings.Contains(lower, strings.ToLower(s.String())) {
			return s, nil
		}
	}
	return "", errors.New(errors.ErrCodeEncodingUnavailable, "cannot infer descriptor; pass --descriptor").WithDetail(artifact)
}
