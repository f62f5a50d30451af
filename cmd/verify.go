package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/attendance-kiosk/internal/attendance"
	"github.com/kozaktomas/attendance-kiosk/internal/gallery"
	"github.com/kozaktomas/attendance-kiosk/internal/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <image>",
	Short: "Verify a probe photo against the directory",
	Long: `Run one verification from an image file and mark the matched person
present. Use --dry-run to score without recording attendance.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().String("tenant", "", "Tenant (school) identifier (required)")
	verifyCmd.Flags().String("kind", string(gallery.KindStudent), "Subject kind: STUDENT or STAFF")
	verifyCmd.Flags().String("session", "", "Session (MORNING, AFTERNOON, FULL_DAY); resolved from the clock when empty")
	verifyCmd.Flags().StringSlice("candidate", nil, "Restrict matching to these candidate ids")
	verifyCmd.Flags().StringSlice("candidate-name", nil, "Restrict matching to candidates with these names")
	verifyCmd.Flags().Bool("dry-run", false, "Score the photo without recording attendance")

	verifyCmd.MarkFlagRequired("tenant")
}

func parseKind(s string) (gallery.Kind, error) {
	switch s {
	case string(gallery.KindStudent):
		return gallery.KindStudent, nil
	case string(gallery.KindStaff):
		return gallery.KindStaff, nil
	default:
		return "", fmt.Errorf("unknown kind %q, expected STUDENT or STAFF", s)
	}
}

func runVerify(cmd *cobra.Command, args []string) error {
	tenant := mustGetString(cmd, "tenant")
	session := attendance.Session(mustGetString(cmd, "session"))
	if session != "" && !attendance.ValidSession(session) {
		return fmt.Errorf("unknown session %q", session)
	}
	kind, err := parseKind(mustGetString(cmd, "kind"))
	if err != nil {
		return err
	}

	payload, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	p, err := buildPipeline(zap.NewNop())
	if err != nil {
		return err
	}
	defer p.Close()

	ctx := context.Background()

	allowIDs := mustGetStringSlice(cmd, "candidate")
	for _, name := range mustGetStringSlice(cmd, "candidate-name") {
		ids, err := p.directory.ResolveIDsByName(ctx, tenant, kind, name)
		if err != nil {
			return fmt.Errorf("resolving candidate name %q: %w", name, err)
		}
		if len(ids) == 0 {
			return fmt.Errorf("no active candidate named %q", name)
		}
		allowIDs = append(allowIDs, ids...)
	}

	resp, err := p.verifier.Verify(ctx, verify.Request{
		Tenant:   tenant,
		Kind:     kind,
		Payload:  payload,
		Session:  session,
		AllowIDs: allowIDs,
		Remark:   "cli verification",
		DryRun:   mustGetBool(cmd, "dry-run"),
	})
	if err != nil {
		return err
	}

	printVerifyResult(resp)
	return nil
}

func printVerifyResult(resp *verify.Response) {
	if !resp.Matched {
		fmt.Printf("No match (%s)\n", resp.Reason)
		for _, entry := range resp.Ranked {
			fmt.Printf("  %-12s %-30s score %d\n", entry.CandidateID, entry.Name, entry.Score)
		}
		return
	}

	fmt.Printf("Matched %s (%s) with score %d\n", resp.Match.Name, resp.Match.CandidateID, resp.Match.Score)
	if resp.Match.PhotoHandle != "" {
		fmt.Printf("  Reference: %s (%s)\n", resp.Match.PhotoHandle, resp.Match.PhotoSource)
	}
	if resp.Attendance == nil {
		return
	}
	if resp.Attendance.Error != "" {
		fmt.Printf("  Attendance NOT recorded: %s\n", resp.Attendance.Error)
		return
	}
	if resp.Attendance.Outcome == "" {
		fmt.Printf("  Dry run, attendance not recorded (%s %s)\n", resp.Attendance.Date, resp.Attendance.Session)
		return
	}
	fmt.Printf("  Attendance %s for %s %s\n", resp.Attendance.Outcome, resp.Attendance.Date, resp.Attendance.Session)
}
