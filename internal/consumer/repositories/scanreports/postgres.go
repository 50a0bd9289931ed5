package scanreports

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/seftconsumer/internal/dbx"
	"github.com/dmitrijs2005/seftconsumer/internal/scan"
	"github.com/google/uuid"
)

// Verdicts stored in the verdict column.
const (
	VerdictSafe   = "safe"
	VerdictUnsafe = "unsafe"
)

// StoredReport is one row of scan_reports.
type StoredReport struct {
	ID        string
	Report    scan.Report
	Verdict   string
	CreatedAt time.Time
}

// PostgresRepository stores reports over dbx.DBTX (satisfied by *sql.DB or
// *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// newID is a seam for tests.
var newID = func() string { return uuid.NewString() }

func (r *PostgresRepository) Record(ctx context.Context, rep scan.Report) error {
	query := `
		INSERT INTO scan_reports (id, data_id, file_name, case_id, survey_id, tx_id, verdict, report)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	verdict := VerdictUnsafe
	if rep.Safe {
		verdict = VerdictSafe
	}
	var body any
	if len(rep.Body) > 0 && json.Valid(rep.Body) {
		body = string(rep.Body)
	}

	if _, err := r.db.ExecContext(ctx, query,
		newID(), rep.DataID, rep.FileName, rep.CaseID, rep.SurveyID, rep.TxID, verdict, body,
	); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindByCase(ctx context.Context, caseID string) ([]StoredReport, error) {
	query := `
		SELECT id, data_id, file_name, case_id, survey_id, tx_id, verdict, report, created_at
		FROM scan_reports
		WHERE case_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []StoredReport
	for rows.Next() {
		var (
			s    StoredReport
			body []byte
		)
		if err := rows.Scan(&s.ID, &s.Report.DataID, &s.Report.FileName, &s.Report.CaseID,
			&s.Report.SurveyID, &s.Report.TxID, &s.Verdict, &body, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		s.Report.Safe = s.Verdict == VerdictSafe
		s.Report.Body = json.RawMessage(body)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}
