// Command refrepo is a thin command-line front end over
// internal/repository. It exists to give the library's write and read
// surface an end-to-end smoke path, not to be a full curation tool: no
// fetch integration, no colorized rendering, no interactive prompts.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ref-builder/ref-builder/internal/otu"
	"github.com/ref-builder/ref-builder/internal/repository"
)

var verbose bool

func newLogger() *zap.Logger {
	if verbose {
		l, err := zap.NewDevelopment()
		if err == nil {
			return l
		}
	}
	l, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "refrepo",
		Short:         "curated viral reference genome repository",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable development-mode logging")

	root.AddCommand(
		initCmd(),
		createOTUCmd(),
		showCmd(),
		excludeCmd(),
		allowCmd(),
		rebuildIndexCmd(),
	)
	return root
}

func initCmd() *cobra.Command {
	var name, organism string
	var tolerance float64

	cmd := &cobra.Command{
		Use:   "init PATH",
		Short: "create a new, empty repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			defer logger.Sync()

			r, err := repository.Init(args[0], name, organism, tolerance, repository.WithLogger(logger))
			if err != nil {
				return err
			}
			defer r.Close()

			meta := r.Meta()
			fmt.Printf("initialized repository %s (%s) at %s\n", meta.Name, meta.ID, r.Dir())
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "repository name")
	cmd.Flags().StringVar(&organism, "organism", "", "organism this repository curates")
	cmd.Flags().Float64Var(&tolerance, "tolerance", 0.03, "default segment length tolerance")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("organism")
	return cmd
}

func createOTUCmd() *cobra.Command {
	var acronym, name, lineagePath, planPath string
	var taxid int
	var strandedness, moleculeType, topology string

	cmd := &cobra.Command{
		Use:   "create-otu PATH",
		Short: "create a new OTU",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lineage, err := readLineage(lineagePath)
			if err != nil {
				return fmt.Errorf("read lineage: %w", err)
			}
			plan, err := readPlan(planPath)
			if err != nil {
				return fmt.Errorf("read plan: %w", err)
			}

			logger := newLogger()
			defer logger.Sync()

			r, err := repository.Open(args[0], repository.WithLogger(logger))
			if err != nil {
				return err
			}
			defer r.Close()

			if err := r.Lock(); err != nil {
				return err
			}
			defer r.Unlock()

			tx, err := r.Begin()
			if err != nil {
				return err
			}

			created, err := tx.CreateOTU(context.Background(), repository.CreateOTUInput{
				Acronym: acronym,
				Molecule: otu.Molecule{
					Strandedness: otu.Strandedness(strandedness),
					Type:         otu.MoleculeType(moleculeType),
					Topology:     otu.Topology(topology),
				},
				Lineage: lineage,
				Name:    name,
				Taxid:   taxid,
				Plan:    plan,
			})
			if err != nil {
				tx.Abort()
				return err
			}
			if err := tx.Commit(); err != nil {
				return err
			}

			fmt.Printf("created otu %s (taxid %d, %s)\n", created.ID, created.Taxid, created.Name)
			return nil
		},
	}

	cmd.Flags().IntVar(&taxid, "taxid", 0, "NCBI taxonomy id")
	cmd.Flags().StringVar(&acronym, "acronym", "", "OTU acronym")
	cmd.Flags().StringVar(&name, "name", "", "OTU name")
	cmd.Flags().StringVar(&lineagePath, "lineage-json", "", "path to a lineage JSON document")
	cmd.Flags().StringVar(&planPath, "plan-json", "", "path to a plan JSON document")
	cmd.Flags().StringVar(&strandedness, "strandedness", string(otu.StrandednessSingle), "molecule strandedness (single|double)")
	cmd.Flags().StringVar(&moleculeType, "molecule-type", string(otu.MoleculeTypeRNA), "molecule type (DNA|RNA|cRNA|mRNA|tRNA)")
	cmd.Flags().StringVar(&topology, "topology", string(otu.TopologyLinear), "molecule topology (linear|circular)")
	_ = cmd.MarkFlagRequired("taxid")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("lineage-json")
	_ = cmd.MarkFlagRequired("plan-json")
	return cmd
}

func readLineage(path string) (otu.Lineage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return otu.Lineage{}, err
	}
	var lineage otu.Lineage
	if err := json.Unmarshal(data, &lineage); err != nil {
		return otu.Lineage{}, err
	}
	return lineage, nil
}

func readPlan(path string) (otu.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return otu.Plan{}, err
	}
	var plan otu.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return otu.Plan{}, err
	}
	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	for i := range plan.Segments {
		if plan.Segments[i].ID == uuid.Nil {
			plan.Segments[i].ID = uuid.New()
		}
	}
	return plan, nil
}

func showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show IDENTIFIER PATH",
		Short: "print an OTU resolved by id, taxid, acronym, or id prefix",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			defer logger.Sync()

			r, err := repository.Open(args[1], repository.WithLogger(logger))
			if err != nil {
				return err
			}
			defer r.Close()

			ctx := context.Background()
			o, err := r.GetOTUByIdentifier(ctx, args[0])
			if err != nil {
				return err
			}

			modified, ok, err := r.OTULastModified(ctx, o.ID)
			if err != nil {
				return err
			}

			fmt.Printf("%s (taxid %d, acronym %s)\n", o.Name, o.Taxid, o.Acronym)
			fmt.Printf("id: %s\n", o.ID)
			fmt.Printf("isolates: %s\n", humanize.Comma(int64(len(o.Isolates))))
			fmt.Printf("sequences: %s\n", humanize.Comma(int64(len(o.Sequences()))))
			fmt.Printf("excluded accessions: %d\n", len(o.ExcludedAccessions))
			if ok {
				fmt.Printf("last modified: %s\n", humanize.Time(modified))
			}
			return nil
		},
	}
	return cmd
}

func excludeCmd() *cobra.Command {
	var taxid int

	cmd := &cobra.Command{
		Use:   "exclude ACCESSION... PATH",
		Short: "add accessions to an OTU's exclusion set",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExclusionChange(taxid, args, true)
		},
	}
	cmd.Flags().IntVar(&taxid, "taxid", 0, "NCBI taxonomy id of the target OTU")
	_ = cmd.MarkFlagRequired("taxid")
	return cmd
}

func allowCmd() *cobra.Command {
	var taxid int

	cmd := &cobra.Command{
		Use:   "allow ACCESSION... PATH",
		Short: "remove accessions from an OTU's exclusion set",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExclusionChange(taxid, args, false)
		},
	}
	cmd.Flags().IntVar(&taxid, "taxid", 0, "NCBI taxonomy id of the target OTU")
	_ = cmd.MarkFlagRequired("taxid")
	return cmd
}

func runExclusionChange(taxid int, args []string, exclude bool) error {
	path := args[len(args)-1]
	accessions := args[:len(args)-1]

	logger := newLogger()
	defer logger.Sync()

	r, err := repository.Open(path, repository.WithLogger(logger))
	if err != nil {
		return err
	}
	defer r.Close()

	if err := r.Lock(); err != nil {
		return err
	}
	defer r.Unlock()

	ctx := context.Background()
	id, err := r.ResolveOTUID(ctx, fmt.Sprintf("%d", taxid))
	if err != nil {
		return err
	}

	tx, err := r.Begin()
	if err != nil {
		return err
	}

	var excluded map[string]struct{}
	if exclude {
		excluded, err = tx.ExcludeAccessions(ctx, id, accessions)
	} else {
		excluded, err = tx.AllowAccessions(ctx, id, accessions)
	}
	if err != nil {
		tx.Abort()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	verb := "excluded"
	if !exclude {
		verb = "allowed"
	}
	fmt.Printf("%s %s; otu now excludes %d accession(s): %s\n", verb, strings.Join(accessions, ", "), len(excluded), sortedJoin(excluded))
	return nil
}

func sortedJoin(set map[string]struct{}) string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}

func rebuildIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rebuild-index PATH",
		Short: "rebuild the derived SQL index from the event log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			defer logger.Sync()

			r, err := repository.Open(args[0], repository.WithLogger(logger))
			if err != nil {
				return err
			}
			defer r.Close()

			if err := r.RebuildIndex(context.Background()); err != nil {
				return err
			}
			fmt.Println("index rebuilt")
			return nil
		},
	}
	return cmd
}
