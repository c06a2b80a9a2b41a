package cli

import (
	"context"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/AntiMalaria-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/intelligence/common"
	"github.com/turtacn/AntiMalaria-Intelligence/internal/intelligence/featurize"
	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
)

// NewModelsCmd creates the models command group.
func NewModelsCmd() *cobra.Command {
	var modelDir string

	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect estimator artifacts in the model directory",
	}
	cmd.PersistentFlags().StringVar(&modelDir, "model-dir", "", "model directory (default: model.dir from config)")

	cmd.AddCommand(newModelsListCmd(&modelDir), newModelsValidateCmd(&modelDir))
	return cmd
}

func newModelsListCmd(modelDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Load every artifact and list the ones that loaded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := cliCtx.commandContext(cmd.Context())
			defer cancel()

			reg, err := cliCtx.modelRegistry(*modelDir)
			if err != nil {
				return err
			}
			if _, err := reg.LoadAll(ctx); err != nil {
				return err
			}
			return PrintResult(cmd, modelList(reg.List()))
		},
	}
}

type modelList []*common.ModelEntry

func (l modelList) TableHeaders() []string {
	return []string{"Model", "Kind", "Features", "Size", "SHA-256"}
}

func (l modelList) TableRows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, e := range l {
		rows = append(rows, []string{
			e.ID, e.Kind, strconv.Itoa(e.Features), strconv.FormatInt(e.SizeBytes, 10), e.Checksum,
		})
	}
	return rows
}

// ValidationRow is the verdict for one artifact.
type ValidationRow struct {
	Model      string `json:"model"`
	Descriptor string `json:"descriptor,omitempty"`
	Kind       string `json:"kind,omitempty"`
	Features   int    `json:"features"`
	MaskWidth  int    `json:"mask_width"`
	Valid      bool   `json:"valid"`
	Problem    string `json:"problem,omitempty"`
}

type validationReport []ValidationRow

func (r validationReport) TableHeaders() []string {
	return []string{"Model", "Descriptor", "Kind", "Features", "Mask", "Status"}
}

func (r validationReport) TableRows() [][]string {
	rows := make([][]string, 0, len(r))
	for _, v := range r {
		status := "ok"
		if !v.Valid {
			status = v.Problem
		}
		rows = append(rows, []string{
			v.Model, v.Descriptor, v.Kind, strconv.Itoa(v.Features), strconv.Itoa(v.MaskWidth), status,
		})
	}
	return rows
}

func newModelsValidateCmd(modelDir *string) *cobra.Command {
	var descriptor string

	cmd := &cobra.Command{
		Use:   "validate [artifact...]",
		Short: "Check that artifacts load and match their descriptor's mask width",
		Long: "Load each named artifact (every artifact in the directory when none is named)\n" +
			"and compare its feature count with the width of the descriptor's feature mask.\n" +
			"The command fails when any artifact is invalid.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := cliCtx.commandContext(cmd.Context())
			defer cancel()

			reg, err := cliCtx.modelRegistry(*modelDir)
			if err != nil {
				return err
			}
			names := args
			if len(names) == 0 {
				if names, err = artifactNames(reg.Dir()); err != nil {
					return err
				}
			}
			masks := cliCtx.loadMasks()

			report := make(validationReport, 0, len(names))
			invalid := 0
			for _, name := range names {
				row := validateArtifact(ctx, reg, masks, name, descriptor)
				if !row.Valid {
					invalid++
					cliCtx.Logger.Warn("invalid artifact", logging.String("model", name), logging.String("problem", row.Problem))
				}
				report = append(report, row)
			}
			if err := PrintResult(cmd, report); err != nil {
				return err
			}
			if invalid > 0 {
				return errors.Newf(errors.ErrCodeModelLoadFailed, "%d of %d artifacts are invalid", invalid, len(report))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&descriptor, "descriptor", "", "descriptor to validate against; inferred from each artifact name when empty")
	return cmd
}

func validateArtifact(ctx context.Context, reg *common.ModelRegistry, masks *featurize.MaskRegistry, name, descriptor string) ValidationRow {
	row := ValidationRow{Model: name}
	if err := reg.Load(ctx, name); err != nil {
		row.Problem = err.Error()
		return row
	}
	entry, _ := reg.Entry(name)
	row.Kind = entry.Kind
	row.Features = entry.Features

	scheme, err := schemeFor(descriptor, name)
	if err != nil {
		row.Problem = err.Error()
		return row
	}
	row.Descriptor = scheme.String()
	if _, err := masks.Mask(scheme); err != nil {
		row.Problem = err.Error()
		return row
	}
	row.MaskWidth = masks.Width(scheme)
	// Zero means the artifact does not pin its width.
	if row.Features != 0 && row.Features != row.MaskWidth {
		row.Problem = "feature count " + strconv.Itoa(row.Features) + " does not match mask width " + strconv.Itoa(row.MaskWidth)
		return row
	}
	row.Valid = true
	return row
}

// artifactNames lists the loadable artifacts in dir, sorted.
func artifactNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeModelLoadFailed, "list model directory").WithDetail(dir)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && common.SupportedArtifact(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
