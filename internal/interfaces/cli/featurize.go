package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/intelligence/featurize"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
)

type featurizeOptions struct {
	structureFlags
	descriptor string
}

// NewFeaturizeCmd creates the featurize command.
func NewFeaturizeCmd() *cobra.Command {
	opts := &featurizeOptions{}

	cmd := &cobra.Command{
		Use:   "featurize",
		Short: "Print the masked feature vectors of SMILES structures",
		Long: "Compute the Morgan fingerprint of each structure and project it through the\n" +
			"descriptor's feature mask, exactly as the estimators see it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeaturize(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.descriptor, "descriptor", string(featurize.SchemeECFP), "molecular descriptor (ECFP, PUBCHEMFP)")
	f.StringVar(&opts.smiles, "smiles", "", "comma-separated SMILES")
	f.StringVar(&opts.file, "file", "", "CSV file with one SMILES per row in the first column")

	return cmd
}

func runFeaturize(cmd *cobra.Command, opts *featurizeOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	scheme, err := featurize.ParseScheme(opts.descriptor)
	if err != nil {
		return err
	}
	structures, _, err := opts.read(cliCtx.Config.Pipeline.MaxSMILESLength)
	if err != nil {
		return err
	}

	masks := cliCtx.loadMasks()
	if _, err := masks.Mask(scheme); err != nil {
		return err
	}
	enc := featurize.NewEncoder(masks)

	report := &featureReport{Scheme: scheme, Width: masks.Width(scheme)}
	for _, smi := range structures {
		vec, ok := enc.Encode(smi, scheme)
		if !ok {
			return errors.Newf(errors.ErrCodeEncodingUnavailable, "Invalid SMILES string: %s", smi)
		}
		report.Rows = append(report.Rows, FeatureRow{SMILES: smi, Vector: vec})
	}
	return PrintResult(cmd, report)
}

// FeatureRow is the masked vector of one structure.
type FeatureRow struct {
	SMILES string    `json:"smiles"`
	Vector []float64 `json:"vector"`
}

// active lists the positions set in the vector.
func (r FeatureRow) active() []int {
	var out []int
	for i, v := range r.Vector {
		if v != 0 {
			out = append(out, i)
		}
	}
	return out
}

type featureReport struct {
	Scheme featurize.Scheme `json:"descriptor"`
	Width  int              `json:"width"`
	Rows   []FeatureRow     `json:"structures"`
}

func (r *featureReport) TableHeaders() []string {
	return []string{"SMILES", "Width", "Set", "Active features"}
}

func (r *featureReport) TableRows() [][]string {
	rows := make([][]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		active := row.active()
		pos := make([]string, len(active))
		for i, a := range active {
			pos[i] = strconv.Itoa(a)
		}
		rows = append(rows, []string{
			row.SMILES,
			strconv.Itoa(len(row.Vector)),
			strconv.Itoa(len(active)),
			strings.Join(pos, " "),
		})
	}
	return rows
}
