package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var chunkCmd = &cobra.Command{
	Use:   "chunk",
	Short: "Manage audio chunks",
}

var chunkRetryCmd = withServices(&cobra.Command{
	Use:   "retry <session-id> <seq>",
	Short: "Re-enqueue a failed, cancelled or timed out chunk",
	Args:  cobra.ExactArgs(2),
	RunE:  runChunkRetry,
})

var segmentCmd = &cobra.Command{
	Use:   "segment",
	Short: "Manage transcript segments",
}

var segmentResummarizeCmd = withServices(&cobra.Command{
	Use:   "resummarize <session-id> <index>",
	Short: "Summarize a segment again from its stored input",
	Args:  cobra.ExactArgs(2),
	RunE:  runSegmentResummarize,
})

func init() {
	chunkCmd.AddCommand(chunkRetryCmd)
	segmentCmd.AddCommand(segmentResummarizeCmd)
	rootCmd.AddCommand(chunkCmd)
	rootCmd.AddCommand(segmentCmd)
}

func runChunkRetry(cmd *cobra.Command, args []string) error {
	seq, err := parseIndex("seq", args[1])
	if err != nil {
		return err
	}
	chunk, err := services.Dispatcher.RetryChunk(cmd.Context(), args[0], seq)
	if err != nil {
		return fmt.Errorf("retry failed: %w", err)
	}
	cmd.Printf("Chunk %d of %s is %s (attempt %d).\n", chunk.Seq, chunk.SessionID, chunk.Status, chunk.Attempts)
	return nil
}

func runSegmentResummarize(cmd *cobra.Command, args []string) error {
	index, err := parseIndex("index", args[1])
	if err != nil {
		return err
	}
	if err := services.Orchestrator.RetrySegmentSummary(cmd.Context(), args[0], index); err != nil {
		return fmt.Errorf("resummarize failed: %w", err)
	}
	cmd.Printf("Segment %d of %s summarized.\n", index, args[0])
	return nil
}
