package postgres

import (
	"context"
	"fmt"

	"testplane/internal/store"
)

// CreateTestCase inserts a test case and its first revision in one transaction.
func (s *Store) CreateTestCase(ctx context.Context, title, nlText string) (*store.TestCase, *store.TestCaseRevision, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	tc := &store.TestCase{Title: title}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO test_cases (title) VALUES ($1) RETURNING id, created_at`,
		title,
	).Scan(&tc.ID, &tc.CreatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to insert test case: %w", err)
	}

	rev, err := s.createRevision(ctx, tx, tc.ID, nlText)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return tc, rev, nil
}

// AddRevision appends a new revision to an existing test case. It returns
// store.ErrNotFound when the test case does not exist.
func (s *Store) AddRevision(ctx context.Context, testCaseID int64, nlText string) (*store.TestCaseRevision, error) {
	return s.createRevision(ctx, nil, testCaseID, nlText)
}

func (s *Store) createRevision(ctx context.Context, tx store.DBTransaction, testCaseID int64, nlText string) (*store.TestCaseRevision, error) {
	rev := &store.TestCaseRevision{TestCaseID: testCaseID, NLText: nlText}
	err := s.getExecutor(tx).QueryRowContext(ctx,
		`INSERT INTO test_case_revisions (test_case_id, nl_text)
		 SELECT id, $2 FROM test_cases WHERE id = $1
		 RETURNING id, created_at`,
		testCaseID, nlText,
	).Scan(&rev.ID, &rev.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert revision for test case %d: %w", testCaseID, notFound(err))
	}
	return rev, nil
}

// GetRevision returns a revision by its ID.
func (s *Store) GetRevision(ctx context.Context, id int64) (*store.TestCaseRevision, error) {
	var rev store.TestCaseRevision
	err := s.db.QueryRowContext(ctx,
		`SELECT id, test_case_id, nl_text, created_at FROM test_case_revisions WHERE id = $1`,
		id,
	).Scan(&rev.ID, &rev.TestCaseID, &rev.NLText, &rev.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &rev, nil
}
