package reporter

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordersync/internal/order"
	"ordersync/internal/session"
	"ordersync/internal/utils"
	"ordersync/internal/view"
)

func sampleSnapshot() session.Snapshot {
	return session.Snapshot{
		Tab: order.TabDelivered,
		Orders: []view.ViewModel{{
			OrderID:           "O1",
			OrderNumber:       "#O1",
			Label:             "DELIVERED",
			Status:            order.StatusDelivered,
			PaymentMethod:     order.PaymentCOD,
			PaymentStatus:     order.PaymentPending,
			Total:             decimal.RequireFromString("448"),
			ItemCount:         2,
			NeedsPaymentRetry: true,
		}},
		Badges:       map[order.Tab]int{order.TabNew: 3},
		Page:         1,
		TotalPages:   1,
		Connected:    false,
		PendingRetry: []string{"O1"},
		Err:          order.Errorf(order.KindPartialReconciliation, "deliver", "O1", "payment not recorded"),
	}
}

func TestPrintSnapshot(t *testing.T) {
	var buf bytes.Buffer
	PrintSnapshot(&buf, order.Actor{Role: order.RoleDeliveryPartner, ID: "D1"}, sampleSnapshot())
	out := buf.String()

	assert.Contains(t, out, "tab=DELIVERED")
	assert.Contains(t, out, "(offline)")
	assert.Contains(t, out, "NEW:3")
	assert.Contains(t, out, "448.00")
	assert.Contains(t, out, "payment-retry")
	assert.Contains(t, out, "Payment retry pending: O1")
	assert.Contains(t, out, "Error [PartialReconciliation]")
}

func TestPrintSummary(t *testing.T) {
	metrics := utils.NewMetrics()
	metrics.RecordFetch(false)
	metrics.RecordFetch(true)
	metrics.RecordDisconnect()

	var buf bytes.Buffer
	PrintSummary(&buf, metrics, nil)
	assert.Contains(t, buf.String(), "Fetches discarded:  1")
	assert.Contains(t, buf.String(), "Push disconnects:   1")
}

func TestSaveSnapshotJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, SaveSnapshotJSON(sampleSnapshot(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "PartialReconciliation", decoded["errorKind"])
	assert.Equal(t, "DELIVERED", decoded["Tab"])
	assert.Len(t, decoded["Orders"], 1)
}
