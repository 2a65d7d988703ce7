package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"artsync/pkg/crawler"
	apperrors "artsync/pkg/errors"
	"artsync/pkg/logger"
	"artsync/pkg/storage"
	"artsync/pkg/ui"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Inspect and maintain the artifact database",
}

var dbStale int

var dbListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded accounts",
	Args:  cobra.NoArgs,
	RunE: withStore(func(cmd *cobra.Command, args []string, store storage.Store) error {
		subjects, err := store.ListSubjects(cmd.Context(), dbStale)
		if err != nil {
			return err
		}
		if len(subjects) == 0 {
			ui.PrintInfo("No accounts recorded", "run 'artsync member <id>' first")
			return nil
		}
		for _, s := range subjects {
			updated := "never"
			if !s.LastUpdate.IsZero() {
				updated = s.LastUpdate.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(ui.Out, "%-12d %-30s last=%-12d updated=%s %s\n",
				s.ID, s.Name, s.LastArtifact, updated, ui.Dim(s.SaveFolder))
		}
		return nil
	}),
}

var dbArtifactsCmd = &cobra.Command{
	Use:   "artifacts <member_id>",
	Short: "List the artifacts recorded for an account",
	Args:  cobra.ExactArgs(1),
	RunE: withStore(func(cmd *cobra.Command, args []string, store storage.Store) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		recs, err := store.ListArtifacts(cmd.Context(), id)
		if err != nil {
			return err
		}
		for _, r := range recs {
			fmt.Fprintf(ui.Out, "%-12d %-8s %s\n", r.ID, r.Mode, r.SaveName)
		}
		return nil
	}),
}

var dbDeleteCmd = &cobra.Command{
	Use:   "delete <member_id>",
	Short: "Forget an account and all of its artifacts",
	Args:  cobra.ExactArgs(1),
	RunE: withStore(func(cmd *cobra.Command, args []string, store storage.Store) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if err := store.DeleteSubjectCascade(cmd.Context(), id); err != nil {
			return err
		}
		ui.PrintSuccess(fmt.Sprintf("Account %d removed from the database", id))
		return nil
	}),
}

var dbBlacklistCmd = &cobra.Command{
	Use:   "blacklist <member_id> <artifact_id>",
	Short: "Never download an artifact",
	Args:  cobra.ExactArgs(2),
	RunE: withStore(func(cmd *cobra.Command, args []string, store storage.Store) error {
		owner, err := parseID(args[0])
		if err != nil {
			return err
		}
		id, err := parseID(args[1])
		if err != nil {
			return err
		}
		if err := store.BlacklistArtifact(cmd.Context(), owner, id); err != nil {
			return err
		}
		ui.PrintSuccess(fmt.Sprintf("Artifact %d blacklisted", id))
		return nil
	}),
}

var dbImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Add the member ids of a file to the database",
	Args:  cobra.ExactArgs(1),
	RunE: withStore(func(cmd *cobra.Command, args []string, store storage.Store) error {
		f, err := os.Open(args[0])
		if err != nil {
			return apperrors.NewConfig(err)
		}
		defer f.Close()
		entries, err := crawler.ParseMemberList(f)
		if err != nil {
			return apperrors.NewConfig(err)
		}
		ids := make([]int64, len(entries))
		for i, e := range entries {
			ids[i] = e.MemberID
		}
		n, err := store.ImportSubjects(cmd.Context(), ids)
		if err != nil {
			return err
		}
		ui.PrintSuccess(fmt.Sprintf("Imported %d of %d accounts", n, len(ids)))
		return nil
	}),
}

var dbExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write every recorded member id, one per line",
	Args:  cobra.MaximumNArgs(1),
	RunE: withStore(func(cmd *cobra.Command, args []string, store storage.Store) error {
		ids, err := store.ExportSubjects(cmd.Context())
		if err != nil {
			return err
		}
		w := io.Writer(os.Stdout)
		if len(args) == 1 {
			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		bw := bufio.NewWriter(w)
		for _, id := range ids {
			fmt.Fprintln(bw, id)
		}
		return bw.Flush()
	}),
}

func init() {
	dbListCmd.Flags().IntVar(&dbStale, "stale", 0, "only accounts not updated for this many days")
	dbCmd.AddCommand(dbListCmd, dbArtifactsCmd, dbDeleteCmd, dbBlacklistCmd, dbImportCmd, dbExportCmd)
	rootCmd.AddCommand(dbCmd)
}

// withStore opens the database for a maintenance command. It needs no
// session.
func withStore(run func(cmd *cobra.Command, args []string, store storage.Store) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig(cmd)
		if err != nil {
			return exitCode(err)
		}
		store, err := openStore(cmd.Context(), cfg, log)
		if err != nil {
			return exitCode(err)
		}
		defer closeStore(store, log)
		return exitCode(run(cmd, args, store))
	}
}

func closeStore(store storage.Store, log logger.Logger) {
	if err := store.Close(); err != nil {
		log.WithError(err).Warn("failed to close database")
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, apperrors.NewConfig(fmt.Errorf("%q is not a numeric id", s))
	}
	return id, nil
}
