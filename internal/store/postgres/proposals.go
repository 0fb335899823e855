package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"testplane/internal/store"

	"github.com/lib/pq"
)

func statusList[S ~string](in []S) interface{} {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return pq.Array(out)
}

// CreateProposal inserts a pending proposal for a revision.
func (s *Store) CreateProposal(ctx context.Context, revisionID int64) (*store.PlanProposal, error) {
	p := &store.PlanProposal{RevisionID: revisionID}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO plan_proposals (revision_id, status)
		VALUES ($1, $2)
		RETURNING id, status, created_at
	`, revisionID, store.ProposalStatusPending).Scan(&p.ID, &p.Status, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert proposal for revision %d: %w", revisionID, err)
	}
	return p, nil
}

// GetProposal returns a proposal by its ID.
func (s *Store) GetProposal(ctx context.Context, id int64) (*store.PlanProposal, error) {
	query := `
		SELECT id, revision_id, status, is_ready_for_test, ready_for_test_at,
		       result_payload, error, created_at, started_at, finished_at
		FROM plan_proposals WHERE id = $1
	`

	var p store.PlanProposal
	var result []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.RevisionID, &p.Status, &p.IsReadyForTest, &p.ReadyForTestAt,
		&result, &p.Error, &p.CreatedAt, &p.StartedAt, &p.FinishedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	if len(result) > 0 {
		p.ResultPayload = json.RawMessage(result)
	}
	return &p, nil
}

// MarkProposalRunning moves a pending proposal to running.
func (s *Store) MarkProposalRunning(ctx context.Context, id int64) (bool, error) {
	to := store.ProposalStatusRunning
	return applied(s.db.ExecContext(ctx, `
		UPDATE plan_proposals
		SET status = $2, started_at = NOW()
		WHERE id = $1 AND status = ANY($3)
	`, id, to, statusList(store.ProposalSources[to])))
}

// MarkProposalSucceeded stores the validated plan and finishes the proposal.
func (s *Store) MarkProposalSucceeded(ctx context.Context, id int64, result json.RawMessage) (bool, error) {
	to := store.ProposalStatusSucceeded
	return applied(s.db.ExecContext(ctx, `
		UPDATE plan_proposals
		SET status = $2, result_payload = $3, error = NULL,
		    started_at = COALESCE(started_at, NOW()), finished_at = NOW()
		WHERE id = $1 AND status = ANY($4)
	`, id, to, []byte(result), statusList(store.ProposalSources[to])))
}

// MarkProposalFailed records errMsg and finishes the proposal.
func (s *Store) MarkProposalFailed(ctx context.Context, id int64, errMsg string) (bool, error) {
	to := store.ProposalStatusFailed
	return applied(s.db.ExecContext(ctx, `
		UPDATE plan_proposals
		SET status = $2, error = $3, finished_at = NOW()
		WHERE id = $1 AND status = ANY($4)
	`, id, to, errMsg, statusList(store.ProposalSources[to])))
}

// MarkProposalReady opens the ready-for-test gate. It applies only to
// succeeded proposals and keeps the first ready timestamp on repeat calls.
func (s *Store) MarkProposalReady(ctx context.Context, id int64) (bool, error) {
	return applied(s.db.ExecContext(ctx, `
		UPDATE plan_proposals
		SET is_ready_for_test = TRUE, ready_for_test_at = COALESCE(ready_for_test_at, NOW())
		WHERE id = $1 AND status = $2
	`, id, store.ProposalStatusSucceeded))
}
