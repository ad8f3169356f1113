package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shanehull/insightpipe/internal/notify"
	"github.com/shanehull/insightpipe/internal/pipeline"
	"github.com/shanehull/insightpipe/internal/table"
)

const appName = "insightpipe"

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Crawl tech news, extract insights with Gemini and publish them to Google Sheets",
		Long: `Runs every step in order: crawl the configured categories, extract an
insight record per article, flatten the records into a wide table, split the
multi-valued columns into narrow tables and publish all tables.

Each step can also be run on its own over the files the previous step wrote.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runAll,
	}

	cobra.EnableCommandSorting = false
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (defaults are used when empty)")

	root.AddCommand(
		newCrawlCmd(),
		newExtractCmd(),
		newFlattenCmd(),
		newNormalizeCmd(),
		newPublishCmd(),
	)
	return root
}

func runAll(cmd *cobra.Command, _ []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	opts := []pipeline.Option{
		pipeline.WithCrawler(a.crawler()),
		pipeline.WithReporter(notify.ConsoleReporter{W: cmd.OutOrStdout()}),
		pipeline.WithReporter(notify.NewEmailReporter(notify.NewEmailSender(a.cfg.Email, a.log), a.log)),
	}

	ex, err := a.extractor(ctx)
	if err != nil {
		return err
	}
	opts = append(opts, pipeline.WithExtractor(ex))

	pub, err := a.publisher(ctx)
	if err != nil {
		return err
	}
	if pub != nil {
		opts = append(opts, pipeline.WithPublisher(pub))
	}

	exp, err := a.exporter()
	if err != nil {
		return err
	}
	if exp != nil {
		opts = append(opts, pipeline.WithExporter(exp))
	}

	return pipeline.New(a.cfg, a.log, opts...).Run(ctx)
}

func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the configured categories and save the articles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()

			p := pipeline.New(a.cfg, a.log, pipeline.WithCrawler(a.crawler()))
			res, err := p.Crawl(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %d articles to %s\n", res.Total, res.CombinedPath)
			if len(res.Failed) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Failed categories: %v\n", res.Failed)
			}
			return nil
		},
	}
}

func newExtractCmd() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract an insight record for every crawled article",
		Long: `Extract an insight record for every crawled article. Records are
journaled as they are produced; an interrupted run resumes where it stopped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()

			ex, err := a.extractor(cmd.Context())
			if err != nil {
				return err
			}
			if input == "" {
				if input, err = pipeline.LatestArticlesPath(a.cfg.DataDir); err != nil {
					return err
				}
			}

			res, err := pipeline.New(a.cfg, a.log, pipeline.WithExtractor(ex)).Extract(cmd.Context(), input)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %d records to %s (%d skipped, %d failed)\n",
				len(res.Records), res.OutputPath, len(res.Skipped), len(res.Failed))
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "crawl output file (defaults to the newest combined file in the data dir)")
	return cmd
}

func newFlattenCmd() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "flatten",
		Short: "Flatten insight records into the wide table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()

			if input == "" {
				input = pipeline.InsightsPath(a.cfg.DataDir)
			}
			wide, path, err := pipeline.New(a.cfg, a.log).Flatten(input)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %d rows to %s\n", len(wide.Rows), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "extraction output file")
	return cmd
}

func newNormalizeCmd() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Split the multi-valued columns of the wide table into narrow tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()

			var opts []pipeline.Option
			exp, err := a.exporter()
			if err != nil {
				return err
			}
			if exp != nil {
				opts = append(opts, pipeline.WithExporter(exp))
			}

			if input == "" {
				input = table.WidePath(a.cfg.DataDir)
			}
			res, err := pipeline.New(a.cfg, a.log, opts...).Normalize(cmd.Context(), input)
			if err != nil {
				return err
			}
			for _, col := range res.Columns {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows\n", col, len(res.Tables[col].Rows))
			}
			if len(res.Missing) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Missing columns: %v\n", res.Missing)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "wide table CSV")
	return cmd
}

func newPublishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Upload the local tables to the configured spreadsheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()

			var opts []pipeline.Option
			pub, err := a.publisher(cmd.Context())
			if err != nil {
				return err
			}
			if pub != nil {
				opts = append(opts, pipeline.WithPublisher(pub))
			}

			outcomes, err := pipeline.New(a.cfg, a.log, opts...).Publish(cmd.Context())
			for _, o := range outcomes {
				fmt.Fprintln(cmd.OutOrStdout(), o)
			}
			return err
		},
	}
}
