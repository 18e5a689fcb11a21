// Package cleanup settles cash-on-delivery payments left unrecorded by an
// earlier run. Pending reconciliations are not persisted locally, so the
// operator supplies the order ids.
package cleanup

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"ordersync/internal/lifecycle"
	"ordersync/internal/utils"
)

// Reconciler retries the payment update of one delivered order
type Reconciler interface {
	RetryReconciliation(ctx context.Context, orderID string) (*lifecycle.Result, error)
}

// Report is the outcome of a sweep
type Report struct {
	Total   int
	Settled int
	Failed  []string
}

// Cleaner handles leftover reconciliations
type Cleaner struct {
	reconciler Reconciler
	logger     *utils.Logger
}

// NewCleaner creates a new cleanup handler
func NewCleaner(reconciler Reconciler, logger *utils.Logger) *Cleaner {
	if logger == nil {
		logger = utils.NopLogger()
	}
	return &Cleaner{
		reconciler: reconciler,
		logger:     logger,
	}
}

// CleanupFromFile reads order ids from path and reconciles each
func (c *Cleaner) CleanupFromFile(ctx context.Context, path string) (*Report, error) {
	orderIDs, err := readOrderIDs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read order IDs: %w", err)
	}

	c.logger.Info("Starting reconciliation sweep", map[string]interface{}{
		"file":        path,
		"totalOrders": len(orderIDs),
	})
	return c.Cleanup(ctx, orderIDs)
}

// Cleanup reconciles the given orders one by one. Orders that need nothing
// count as settled.
func (c *Cleaner) Cleanup(ctx context.Context, orderIDs []string) (*Report, error) {
	report := &Report{Total: len(orderIDs)}

	for i, orderID := range orderIDs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		c.logger.Debug("Reconciling order", map[string]interface{}{
			"orderID":  orderID,
			"progress": fmt.Sprintf("%d/%d", i+1, len(orderIDs)),
		})

		if _, err := c.reconciler.RetryReconciliation(ctx, orderID); err != nil {
			c.logger.Error("Failed to reconcile order", map[string]interface{}{
				"orderID": orderID,
				"error":   err.Error(),
			})
			report.Failed = append(report.Failed, orderID)
			continue
		}
		report.Settled++
	}

	c.logger.Info("Reconciliation sweep complete", map[string]interface{}{
		"total":   report.Total,
		"settled": report.Settled,
		"failed":  len(report.Failed),
	})

	return report, nil
}

// readOrderIDs reads one order id per line; blank lines and # comments are skipped
func readOrderIDs(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var orderIDs []string
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || seen[line] {
			continue
		}
		seen[line] = true
		orderIDs = append(orderIDs, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return orderIDs, nil
}
