package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"ordersync/internal/order"
	"ordersync/internal/session"
	"ordersync/internal/utils"
)

// PrintSnapshot renders a session view to w
func PrintSnapshot(w io.Writer, actor order.Actor, snap session.Snapshot) {
	separator := strings.Repeat("=", 80)
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintf(w, "%s %s  tab=%s  page=%d/%d", actor.Role, actor.ID, snap.Tab, snap.Page, snap.TotalPages)
	if snap.Search != "" {
		fmt.Fprintf(w, "  search=%q", snap.Search)
	}
	if snap.Loading {
		fmt.Fprint(w, "  (loading)")
	}
	if !snap.Connected {
		fmt.Fprint(w, "  (offline)")
	}
	fmt.Fprintln(w)

	var badges []string
	for _, tab := range order.Tabs {
		badges = append(badges, fmt.Sprintf("%s:%d", tab, snap.Badges[tab]))
	}
	fmt.Fprintf(w, "Unread: %s\n", strings.Join(badges, "  "))
	fmt.Fprintln(w, separator)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tLABEL\tPAYMENT\tITEMS\tTOTAL\tFLAGS")
	for _, vm := range snap.Orders {
		fmt.Fprintf(tw, "%s\t%s\t%s/%s\t%d\t%s\t%s\n",
			vm.OrderNumber, vm.Label, vm.PaymentMethod, vm.PaymentStatus,
			vm.ItemCount, vm.Total.StringFixed(2), flags(vm.Unread, vm.Claimable, vm.NeedsPaymentRetry))
	}
	tw.Flush()

	if snap.HasMore {
		fmt.Fprintln(w, "... more orders available")
	}
	if len(snap.PendingRetry) > 0 {
		fmt.Fprintf(w, "Payment retry pending: %s\n", strings.Join(snap.PendingRetry, ", "))
	}
	if snap.Err != nil {
		fmt.Fprintf(w, "Error [%s]: %v\n", order.KindOf(snap.Err), snap.Err)
	}
	fmt.Fprintln(w, separator)
}

func flags(unread, claimable, retry bool) string {
	var out []string
	if unread {
		out = append(out, "unread")
	}
	if claimable {
		out = append(out, "claimable")
	}
	if retry {
		out = append(out, "payment-retry")
	}
	return strings.Join(out, ",")
}

// PrintSummary prints the sync metrics collected during a run
func PrintSummary(w io.Writer, metrics *utils.Metrics, logger *utils.Logger) {
	snap := metrics.GetSnapshot()

	separator := strings.Repeat("=", 80)
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "SYNC SUMMARY")
	fmt.Fprintln(w, separator)
	fmt.Fprintf(w, "Fetches issued:     %d\n", snap.FetchesIssued)
	fmt.Fprintf(w, "Fetches discarded:  %d\n", snap.FetchesDiscarded)
	fmt.Fprintf(w, "Push disconnects:   %d\n", snap.Disconnects)
	for event, n := range snap.PushEvents {
		fmt.Fprintf(w, "Push %-14s  %d\n", event+":", n)
	}
	for outcome, n := range snap.Merges {
		fmt.Fprintf(w, "Merge %-13s  %d\n", outcome+":", n)
	}
	for endpoint, m := range snap.APICalls {
		fmt.Fprintf(w, "API %-15s  %d ok / %d failed  avg %s  max %s\n",
			endpoint+":", m.SuccessfulCalls, m.FailedCalls, m.AvgDuration, m.MaxDuration)
	}
	fmt.Fprintln(w, separator)

	if logger != nil {
		logger.Info("Sync summary", snap.Fields())
	}
}

// snapshotRecord is the JSON form of a snapshot; errors do not marshal
type snapshotRecord struct {
	session.Snapshot
	Err     string     `json:"error,omitempty"`
	ErrKind order.Kind `json:"errorKind,omitempty"`
}

// SaveSnapshotJSON writes the last snapshot of a run to a file
func SaveSnapshotJSON(snap session.Snapshot, filename string) error {
	rec := snapshotRecord{Snapshot: snap}
	if snap.Err != nil {
		rec.Err = snap.Err.Error()
		rec.ErrKind = order.KindOf(snap.Err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}

	return nil
}
