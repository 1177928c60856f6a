package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/archdoc/internal/config"
	"github.com/ashita-ai/archdoc/internal/jsonutil"
	"github.com/ashita-ai/archdoc/internal/model"
	"github.com/ashita-ai/archdoc/internal/report"
	"github.com/ashita-ai/archdoc/internal/storage"
)

// storeFlags select a local project store. Defaults follow the server's
// ARCHDOC_STORE, ARCHDOC_DATA_FILE and ARCHDOC_SQLITE_PATH.
type storeFlags struct {
	kind string
	path string
}

func (f *storeFlags) register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&f.kind, "store", envOr("ARCHDOC_STORE", config.StoreFile), "store kind: file or sqlite")
	cmd.PersistentFlags().StringVar(&f.path, "path", "", "store path (default from ARCHDOC_DATA_FILE or ARCHDOC_SQLITE_PATH)")
}

// load reads the whole project list from the selected store.
func (f *storeFlags) load(ctx context.Context) ([]model.Project, error) {
	switch f.kind {
	case config.StoreFile:
		path := f.path
		if path == "" {
			path = envOr("ARCHDOC_DATA_FILE", "data/design_projects.json")
		}
		return storage.NewFileStore(path).Load(ctx)
	case config.StoreSQLite:
		path := f.path
		if path == "" {
			path = envOr("ARCHDOC_SQLITE_PATH", "data/archdoc.db")
		}
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("sqlite store: %w", err)
		}
		s, err := storage.OpenSQLite(ctx, path)
		if err != nil {
			return nil, err
		}
		defer func() { _ = s.Close() }()
		return s.Load(ctx)
	default:
		return nil, fmt.Errorf("unsupported store %q (use file or sqlite; query postgres through the server)", f.kind)
	}
}

func (f *storeFlags) find(ctx context.Context, id string) (model.Project, error) {
	projects, err := f.load(ctx)
	if err != nil {
		return model.Project{}, err
	}
	for _, p := range projects {
		if p.ID == id {
			return p, nil
		}
	}
	return model.Project{}, fmt.Errorf("project %q not found", id)
}

func newProjectsCmd() *cobra.Command {
	var sf storeFlags
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List, show and export projects in a local store",
	}
	sf.register(cmd)
	cmd.AddCommand(newProjectsListCmd(&sf), newProjectsShowCmd(&sf), newProjectsExportCmd(&sf))
	return cmd
}

func newProjectsListCmd(sf *storeFlags) *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			projects, err := sf.load(cmd.Context())
			if err != nil {
				return err
			}
			q := strings.ToLower(strings.TrimSpace(query))
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSTYLE\tCOMPONENTS\tVERSIONS\tUPDATED")
			for _, p := range projects {
				d := p.SystemDesign
				if q != "" && !strings.Contains(strings.ToLower(d.ProjectName), q) {
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
					p.ID, d.ProjectName, d.Architecture.ArchitectureStyle,
					len(d.Architecture.Components), len(p.Versions),
					p.UpdatedAt.Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "case-insensitive name filter")
	return cmd
}

func newProjectsShowCmd(sf *storeFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Print the rendered report for a project as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := sf.find(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out, err := jsonutil.MarshalNoEscape(report.Render(p.SystemDesign), "  ")
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func newProjectsExportCmd(sf *storeFlags) *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export <project-id>",
		Short: "Export a project's design document",
		Long: `Export the curated design document for a project as JSON or YAML.
With --output - the document goes to stdout; with --output set to a
directory the file is named like the server's download.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !report.ValidFormat(format) {
				return fmt.Errorf("%w: %q", report.ErrUnknownFormat, format)
			}
			p, err := sf.find(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			data, _, err := report.Encode(report.BuildExport(p, time.Now().UTC()), format)
			if err != nil {
				return err
			}
			if output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			path := output
			if info, err := os.Stat(output); err == nil && info.IsDir() {
				path = filepath.Join(output, report.FileName(p.SystemDesign.ProjectName, format))
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := os.WriteFile(path, data, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", report.FormatJSON, "json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file or directory, - for stdout")
	return cmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
