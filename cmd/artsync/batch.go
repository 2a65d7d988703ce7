package main

import (
	"github.com/spf13/cobra"

	"artsync/pkg/crawler"
	apperrors "artsync/pkg/errors"
)

var batchCmd = &cobra.Command{
	Use:   "batch <jobs.yaml>",
	Short: "Run a file of crawl commands in order",
	Long: `Run a YAML file of crawl commands in order. The errors of each job are
printed before the next one starts. The exit code reflects the whole batch.`,
	Example: `  # jobs.yaml
  jobs:
    - command: member
      ids: ["12345", "67890"]
    - command: tags
      ids: ["landscape"]
      bookmark_count: 500
      end_page: 5
    - command: bookmarks
      visibility: both

  artsync batch jobs.yaml --batch`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().BoolVar(&resume, "resume", false, "resume account and tag jobs from their checkpoints")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	b, err := crawler.LoadBatch(args[0])
	if err != nil {
		return exitCode(apperrors.NewConfig(err))
	}
	a, err := newApp(cmd)
	if err != nil {
		return exitCode(err)
	}
	defer a.close()

	runErr := a.crawler.RunBatch(a.ctx, b, func(job crawler.Command, failures []apperrors.Entry) {
		a.report(job.String(), failures)
	})
	return a.finish(runErr)
}
