package main

import (
	"github.com/spf13/cobra"

	"github.com/Lllllllleong/pageresizer/internal/config"
	"github.com/Lllllllleong/pageresizer/internal/models"
)

var listOnly bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Resize the input file or directory, or replay the manifest with --use-manifest",
	RunE: func(cmd *cobra.Command, _ []string) error {
		useManifest, _ := cmd.Flags().GetBool("use-manifest")
		p, err := newPipeline(func(c *config.Config) {
			c.UseManifest = c.UseManifest || useManifest
		})
		if err != nil {
			return err
		}
		report, err := p.Run(cmd.Context())
		if err != nil {
			return err
		}
		return finish(report)
	},
}

var fileCmd = &cobra.Command{
	Use:   "file <document>",
	Short: "Resize a single document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline(func(c *config.Config) { c.InputPath = args[0] })
		if err != nil {
			return err
		}
		report, err := p.RunSingleFile(cmd.Context())
		if err != nil {
			return err
		}
		return finish(report)
	},
}

var dirCmd = &cobra.Command{
	Use:   "dir <directory>",
	Short: "Resize every document in a directory and write the manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline(func(c *config.Config) {
			c.InputPath = args[0]
			c.UseManifest = false
			listingDefaults(c)
		})
		if err != nil {
			return err
		}
		if listOnly {
			refs, unavailable, err := p.ListDirectory()
			if err != nil {
				return err
			}
			if err := printDocuments(refs); err != nil {
				return err
			}
			printUnavailable(unavailable)
			return nil
		}
		report, err := p.RunDirectory(cmd.Context())
		if err != nil {
			return err
		}
		return finish(report)
	},
}

var manifestCmd = &cobra.Command{
	Use:   "manifest [manifest-file]",
	Short: "Resize the documents listed in a manifest, in manifest order",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline(func(c *config.Config) {
			c.UseManifest = true
			if len(args) == 1 {
				c.ManifestPath = args[0]
			}
			listingDefaults(c)
		})
		if err != nil {
			return err
		}
		if listOnly {
			refs, unavailable := p.ManifestDocuments()
			if err := printDocuments(refs); err != nil {
				return err
			}
			printUnavailable(unavailable)
			return nil
		}
		report, err := p.RunFromManifest(cmd.Context())
		if err != nil {
			return err
		}
		return finish(report)
	},
}

var reportCmd = &cobra.Command{
	Use:   "report <directory>",
	Short: "Resize a directory sequentially and report the time spent per document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline(func(c *config.Config) {
			c.InputPath = args[0]
			c.UseManifest = false
		})
		if err != nil {
			return err
		}
		report, err := p.RunWithReport(cmd.Context())
		if err != nil {
			return err
		}
		if err := printTimings(report); err != nil {
			return err
		}
		return finish(report)
	},
}

func init() {
	runCmd.Flags().Bool("use-manifest", false, "Read documents from the manifest instead of the input path")
	dirCmd.Flags().BoolVar(&listOnly, "list", false, "Print the ordered documents and exit")
	manifestCmd.Flags().BoolVar(&listOnly, "list", false, "Print the resolved documents and exit")
}

// listingDefaults lets --list run without an output directory.
func listingDefaults(c *config.Config) {
	if listOnly && c.OutputPath == "" {
		c.OutputPath = "."
	}
}

func finish(report *models.RunReport) error {
	if err := printSummary(report); err != nil {
		return err
	}
	return exitStatus(report.Failed, report.Total)
}
