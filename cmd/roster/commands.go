package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/thebtf/intervue/internal/dashboard"
	"github.com/thebtf/intervue/internal/roster"
	"github.com/thebtf/intervue/pkg/models"
)

var errNoHistory = errors.New("revision history needs the sqlite or postgres driver")

func newStatsCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the roster overview",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, flags, func(s *session) error {
				ov := dashboard.Summarize(s.store.List())
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), ov)
				}

				table := tablewriter.NewWriter(cmd.OutOrStdout())
				table.SetHeader([]string{"Metric", "Value"})
				table.Append([]string{"Candidates", strconv.Itoa(ov.TotalCandidates)})
				table.Append([]string{"Completed", strconv.Itoa(ov.CompletedCount)})
				table.Append([]string{"Completion rate", strconv.Itoa(ov.CompletionRate) + "%"})
				table.Append([]string{"Average score", strconv.Itoa(ov.AvgScore)})
				table.Append([]string{"Avg time per question", strconv.Itoa(ov.AvgTimePerQuestion) + "s"})
				if ov.TopPerformer != nil {
					table.Append([]string{"Top performer", fmt.Sprintf("%s (%d)", ov.TopPerformer.Name, ov.TopPerformer.Score)})
				}
				for _, d := range models.Difficulties {
					table.Append([]string{"Answered " + string(d), strconv.Itoa(len(ov.DifficultyStats[d]))})
				}
				table.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the overview as JSON")
	return cmd
}

func newListCmd(flags *globalFlags) *cobra.Command {
	var status, sortBy string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List candidates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, flags, func(s *session) error {
				candidates := dashboard.Filter(s.store.List(), models.SessionStatus(status))
				key, desc := dashboard.ParseSort(sortBy)
				dashboard.Sort(candidates, key, desc)

				active := s.store.ActiveID()
				table := tablewriter.NewWriter(cmd.OutOrStdout())
				table.SetHeader([]string{"ID", "Name", "Status", "Score", "Answered", "Started"})
				for _, c := range candidates {
					name := c.Name
					if c.ID == active {
						name += " *"
					}
					table.Append([]string{
						c.ID,
						name,
						string(c.Status),
						strconv.Itoa(c.Score),
						fmt.Sprintf("%d/%d", c.AnsweredCount(), len(c.Questions)),
						c.StartedAt.Format(time.DateTime),
					})
				}
				table.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (info_collection, interviewing, completed)")
	cmd.Flags().StringVar(&sortBy, "sort", "", "sort by name, score or startedAt; prefix with - for descending")
	return cmd
}

func newExportCmd(flags *globalFlags) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the roster payload as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, flags, func(s *session) error {
				data, err := roster.Encode(s.store.Snapshot())
				if err != nil {
					return err
				}
				if output == "" || output == "-" {
					_, err = cmd.OutOrStdout().Write(append(data, '\n'))
					return err
				}
				return os.WriteFile(output, data, 0600)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newResetCmd(flags *globalFlags) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every candidate",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to reset without --yes")
			}
			return withSession(cmd, flags, func(s *session) error {
				n := s.store.Len()
				if err := s.store.ResetAll(cmdContext(cmd)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d candidates\n", n)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}

func newRevisionsCmd(flags *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "revisions",
		Short: "List stored revisions of the roster payload",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, flags, func(s *session) error {
				if s.backend.State == nil {
					return errNoHistory
				}
				revs, err := s.backend.State.Revisions(cmdContext(cmd), s.store.Namespace(), limit)
				if err != nil {
					return err
				}
				table := tablewriter.NewWriter(cmd.OutOrStdout())
				table.SetHeader([]string{"Revision", "Saved", "Bytes"})
				for _, r := range revs {
					table.Append([]string{
						strconv.FormatInt(r.Revision, 10),
						r.CreatedAt.Format(time.DateTime),
						strconv.Itoa(r.Size),
					})
				}
				table.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of revisions")
	return cmd
}

func newRestoreCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore REVISION",
		Short: "Restore the roster payload from a stored revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rev, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid revision %q", args[0])
			}
			return withSession(cmd, flags, func(s *session) error {
				if s.backend.State == nil {
					return errNoHistory
				}
				ctx := cmdContext(cmd)
				payload, err := s.backend.State.RevisionPayload(ctx, s.store.Namespace(), rev)
				if err != nil {
					return err
				}
				snap, err := roster.Decode(payload)
				if err != nil {
					return fmt.Errorf("revision %d: %w", rev, err)
				}
				if err := s.backend.Write(ctx, s.store.Namespace(), payload); err != nil {
					return err
				}
				// Pick up the restored payload so the closing flush keeps it.
				if err := s.store.Reload(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Restored revision %d (%d candidates)\n", rev, len(snap.Candidates))
				return nil
			})
		},
	}
	return cmd
}

func newNamespacesCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "namespaces",
		Short: "List roster keys stored in the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, flags, func(s *session) error {
				if s.backend.State == nil {
					return errNoHistory
				}
				keys, err := s.backend.State.Keys(cmdContext(cmd))
				if err != nil {
					return err
				}
				for _, k := range keys {
					fmt.Fprintln(cmd.OutOrStdout(), k)
				}
				return nil
			})
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version: %s\n", app, Version)
		},
	}
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}
