// Package scanreports declares the audit store for scan reports of files
// that were quarantined as unsafe.
package scanreports

import (
	"context"

	"github.com/dmitrijs2005/seftconsumer/internal/scan"
)

// Repository persists and looks up scan reports.
type Repository interface {
	// Record stores r. It satisfies scan.ReportRecorder.
	Record(ctx context.Context, r scan.Report) error
	// FindByCase returns every report stored for caseID, newest first.
	FindByCase(ctx context.Context, caseID string) ([]StoredReport, error)
}
