package main

import (
	"github.com/spf13/cobra"

	"artsync/pkg/crawler"
)

// crawlFlags are the per-command traversal options
type crawlFlags struct {
	page         int
	endPage      int
	outputDir    string
	visibility   string
	tag          string
	export       string
	limit        int
	startDate    string
	endDate      string
	minBookmarks int
	oldestFirst  bool
	partialMatch bool
	titleCaption bool
}

func (f *crawlFlags) pages(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.page, "page", 1, "first page to crawl")
	cmd.Flags().IntVar(&f.endPage, "end-page", 0, "last page to crawl (0 uses number_of_page from config)")
}

func (f *crawlFlags) filters(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.startDate, "start-date", "", "only artifacts created on or after this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.endDate, "end-date", "", "only artifacts created on or before this date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&f.minBookmarks, "bookmark-count", 0, "skip artifacts with fewer bookmarks")
	cmd.Flags().BoolVar(&f.oldestFirst, "oldest-first", false, "crawl from the oldest result")
	cmd.Flags().BoolVar(&f.partialMatch, "partial-match", false, "match tags partially")
	cmd.Flags().BoolVar(&f.titleCaption, "title-caption", false, "search titles and captions instead of tags")
}

func (f *crawlFlags) command(kind crawler.CommandKind, ids []string) crawler.Command {
	return crawler.Command{
		Kind:         kind,
		IDs:          ids,
		Page:         f.page,
		EndPage:      f.endPage,
		OutputDir:    f.outputDir,
		Visibility:   f.visibility,
		Tag:          f.tag,
		Export:       f.export,
		Limit:        f.limit,
		StartDate:    f.startDate,
		EndDate:      f.endDate,
		MinBookmarks: f.minBookmarks,
		OldestFirst:  f.oldestFirst,
		PartialMatch: f.partialMatch,
		TitleCaption: f.titleCaption,
	}
}

func newMemberCmd() *cobra.Command {
	var f crawlFlags
	cmd := &cobra.Command{
		Use:   "member <member_id>...",
		Short: "Download the artworks of one or more accounts",
		Example: `  artsync member 12345
  artsync member 12345 67890 --end-page 3
  artsync member 12345 --tag landscape
  artsync member 12345 --resume`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, f.command(crawler.CmdMember, args))
		},
	}
	f.pages(cmd)
	cmd.Flags().StringVar(&f.outputDir, "output-dir", "", "save into this directory instead of the configured root")
	cmd.Flags().StringVar(&f.tag, "tag", "", "only the account's artworks carrying this tag")
	cmd.Flags().BoolVar(&resume, "resume", false, "resume from the last checkpointed page")
	return cmd
}

func newTagsCmd() *cobra.Command {
	var f crawlFlags
	cmd := &cobra.Command{
		Use:   "tags <query>...",
		Short: "Download the results of tag searches",
		Example: `  artsync tags "landscape"
  artsync tags "landscape sunset" --bookmark-count 500 --start-date 2024-01-01`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, f.command(crawler.CmdTags, args))
		},
	}
	f.pages(cmd)
	f.filters(cmd)
	cmd.Flags().StringVar(&f.outputDir, "output-dir", "", "save into this directory instead of the configured root")
	cmd.Flags().BoolVar(&resume, "resume", false, "resume from the last checkpointed page")
	return cmd
}

func newTagsListCmd() *cobra.Command {
	var f crawlFlags
	cmd := &cobra.Command{
		Use:   "tags-list <file>",
		Short: "Run a tag search for every line of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := f.command(crawler.CmdTagsList, nil)
			c.File = args[0]
			return runCommand(cmd, c)
		},
	}
	f.pages(cmd)
	f.filters(cmd)
	return cmd
}

func newBookmarksCmd() *cobra.Command {
	var f crawlFlags
	cmd := &cobra.Command{
		Use:   "bookmarks",
		Short: "Download every followed account",
		Long: `Download every followed account. With --export the followed accounts
are written to a member list file instead, ready for 'artsync list'.`,
		Example: `  artsync bookmarks --visibility both
  artsync bookmarks --export followed.txt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, f.command(crawler.CmdBookmarks, nil))
		},
	}
	f.pages(cmd)
	cmd.Flags().StringVar(&f.visibility, "visibility", "public", "public, private or both")
	cmd.Flags().StringVar(&f.export, "export", "", "write the followed accounts to this list file and exit")
	return cmd
}

func newImageBookmarksCmd() *cobra.Command {
	var f crawlFlags
	cmd := &cobra.Command{
		Use:   "image-bookmarks",
		Short: "Download bookmarked artworks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, f.command(crawler.CmdImageBookmarks, nil))
		},
	}
	f.pages(cmd)
	cmd.Flags().StringVar(&f.visibility, "visibility", "public", "public, private or both")
	cmd.Flags().StringVar(&f.tag, "tag", "", "only bookmarks carrying this bookmark tag")
	return cmd
}

func newFeedCmd() *cobra.Command {
	var f crawlFlags
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Download new works from followed accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, f.command(crawler.CmdFeed, nil))
		},
	}
	f.pages(cmd)
	return cmd
}

func newGroupCmd() *cobra.Command {
	var f crawlFlags
	cmd := &cobra.Command{
		Use:   "group <group_id>...",
		Short: "Download the images posted to groups",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, f.command(crawler.CmdGroup, args))
		},
	}
	cmd.Flags().IntVar(&f.limit, "limit", 0, "stop after this many items (0 is unlimited)")
	return cmd
}

func newImageCmd() *cobra.Command {
	var f crawlFlags
	return &cobra.Command{
		Use:   "image <artifact_id>...",
		Short: "Download single artworks by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, f.command(crawler.CmdImage, args))
		},
	}
}

func newListCmd() *cobra.Command {
	var f crawlFlags
	cmd := &cobra.Command{
		Use:   "list [file]",
		Short: "Download every account in a list file, or every stored account",
		Long: `Download every account in a list file. Each line holds a member id,
optionally followed by a directory name. Lines starting with # are ignored.

Without a file, the accounts recorded in the database are crawled; with
day_last_updated set only those not updated for that many days.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := f.command(crawler.CmdList, nil)
			if len(args) == 1 {
				c.File = args[0]
			}
			return runCommand(cmd, c)
		},
	}
	f.pages(cmd)
	return cmd
}

func init() {
	rootCmd.AddCommand(
		newMemberCmd(),
		newTagsCmd(),
		newTagsListCmd(),
		newBookmarksCmd(),
		newImageBookmarksCmd(),
		newFeedCmd(),
		newGroupCmd(),
		newImageCmd(),
		newListCmd(),
	)
}
