package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/stitch/internal/core/domain"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect and finalize sessions",
}

var sessionShowCmd = withServices(&cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session with its chunks and segments",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionShow,
})

var sessionProgressCmd = withServices(&cobra.Command{
	Use:   "progress <session-id>",
	Short: "Show transcription progress of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionProgress,
})

var sessionFinalizeCmd = withServices(&cobra.Command{
	Use:   "finalize <session-id>",
	Short: "Finalize a session",
	Long: `Cuts the remaining transcript into a last segment, consolidates all
segment summaries and invokes the finalizer. Business identifiers given as
flags override the ones stored on the session.`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionFinalize,
})

func init() {
	sessionFinalizeCmd.Flags().Int64("therapist-id", 0, "therapist identifier")
	sessionFinalizeCmd.Flags().Int64("patient-id", 0, "patient identifier")
	sessionFinalizeCmd.Flags().Int64("organization-id", 0, "organization identifier")
	sessionFinalizeCmd.Flags().Int64("appointment-id", 0, "appointment identifier")
	sessionProgressCmd.Flags().Bool("json", false, "print JSON")

	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionProgressCmd)
	sessionCmd.AddCommand(sessionFinalizeCmd)
	rootCmd.AddCommand(sessionCmd)
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	session, err := services.Query.Session(ctx, args[0])
	if err != nil {
		return err
	}
	chunks, err := services.Query.Chunks(ctx, session.ID)
	if err != nil {
		return err
	}
	segments, err := services.Query.Segments(ctx, session.ID)
	if err != nil {
		return err
	}

	cmd.Printf("Session:   %s\n", session.ID)
	cmd.Printf("Status:    %s\n", session.Status)
	cmd.Printf("Watermark: %.3fs\n", session.LastKeptEndSeconds)
	cmd.Printf("Rolling:   %d tokens\n", session.RollingTokenCount)
	if session.FinalResultKey != "" {
		cmd.Printf("Result:    %s\n", session.FinalResultKey)
	}

	cmd.Printf("\nChunks (%d):\n", len(chunks))
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  SEQ\tSTATUS\tSTART\tEND\tATTEMPTS\tERROR")
	for i := range chunks {
		c := &chunks[i]
		fmt.Fprintf(w, "  %d\t%s\t%d\t%d\t%d\t%s\n", c.Seq, c.Status, c.StartMs, c.EndMs, c.Attempts, c.ErrorCode)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	cmd.Printf("\nSegments (%d):\n", len(segments))
	w = tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  INDEX\tSTATUS\tTOKENS\tERROR")
	for i := range segments {
		s := &segments[i]
		fmt.Fprintf(w, "  %d\t%s\t%d\t%s\n", s.Index, s.Status, s.TokenCount, s.ErrorMessage)
	}
	return w.Flush()
}

func runSessionProgress(cmd *cobra.Command, args []string) error {
	p, err := services.Query.Progress(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	}

	cmd.Printf("%s: %d%% (%d/%d transcribed, %d failed, %d pending, %d segments) [%s]\n",
		p.SessionID, p.Percent, p.Succeeded, p.Total, p.Failed, p.Pending, p.Segments, p.Status)
	return nil
}

func runSessionFinalize(cmd *cobra.Command, args []string) error {
	var ids domain.BusinessIDs
	for flag, dst := range map[string]**int64{
		"therapist-id":    &ids.TherapistID,
		"patient-id":      &ids.PatientID,
		"organization-id": &ids.OrganizationID,
		"appointment-id":  &ids.AppointmentID,
	} {
		if !cmd.Flags().Changed(flag) {
			continue
		}
		v, err := cmd.Flags().GetInt64(flag)
		if err != nil {
			return fmt.Errorf("getting %s flag: %w", flag, err)
		}
		*dst = &v
	}

	if err := services.Finalizer.Finalize(cmd.Context(), args[0], ids); err != nil {
		return fmt.Errorf("finalize failed: %w", err)
	}
	cmd.Printf("Session %s finalized.\n", args[0])
	return nil
}

// parseIndex parses a non-negative integer argument.
func parseIndex(name, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", domain.ErrInvalidInput, name, s)
	}
	return n, nil
}
