package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-wallet/internal/domain"
	"solana-wallet/internal/observability"
	"solana-wallet/internal/storage"
)

// SubmissionStore implements storage.SubmissionStore using PostgreSQL.
type SubmissionStore struct {
	pool    *Pool
	metrics *observability.Metrics
}

// NewSubmissionStore creates a new SubmissionStore. metrics may be nil.
func NewSubmissionStore(pool *Pool, metrics *observability.Metrics) *SubmissionStore {
	return &SubmissionStore{pool: pool, metrics: metrics}
}

// Compile-time interface check.
var _ storage.SubmissionStore = (*SubmissionStore)(nil)

const submissionColumns = `
	signature, network, from_address, to_address, mint, amount,
	status, error_code, error_message, submitted_at, updated_at
`

// Insert adds a new submission. Returns ErrDuplicateKey if signature exists.
func (s *SubmissionStore) Insert(ctx context.Context, r *domain.SubmissionResult) (err error) {
	if r == nil || r.Signature == "" {
		return storage.ErrInvalidInput
	}
	defer s.observe("insert", time.Now(), &err)

	code, message := encodeError(r.Err)
	query := `
		INSERT INTO submissions (` + submissionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = s.pool.Exec(ctx, query,
		r.Signature, string(r.Network), r.From, r.To, r.Mint, r.Amount,
		string(r.Status), code, message, r.SubmittedAt.UTC(), r.UpdatedAt.UTC(),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// UpdateStatus sets status, cause and updatedAt. Returns ErrNotFound if absent.
func (s *SubmissionStore) UpdateStatus(ctx context.Context, signature string, status domain.SubmissionStatus, cause error, updatedAt time.Time) (err error) {
	defer s.observe("update_status", time.Now(), &err)

	code, message := encodeError(cause)
	query := `
		UPDATE submissions
		SET status = $2, error_code = $3, error_message = $4, updated_at = $5
		WHERE signature = $1
	`
	tag, err := s.pool.Exec(ctx, query, signature, string(status), code, message, updatedAt.UTC())
	if err != nil {
		return fmt.Errorf("update submission status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetBySignature retrieves a submission. Returns ErrNotFound if absent.
func (s *SubmissionStore) GetBySignature(ctx context.Context, signature string) (_ *domain.SubmissionResult, err error) {
	defer s.observe("get_by_signature", time.Now(), &err)

	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE signature = $1`
	r, err := scanSubmission(s.pool.QueryRow(ctx, query, signature))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return r, nil
}

// ListByOwner returns up to limit submissions from owner, newest first.
// A non-positive limit returns all of them.
func (s *SubmissionStore) ListByOwner(ctx context.Context, owner string, limit int) (_ []*domain.SubmissionResult, err error) {
	defer s.observe("list_by_owner", time.Now(), &err)

	query := `
		SELECT ` + submissionColumns + `
		FROM submissions
		WHERE from_address = $1
		ORDER BY submitted_at DESC, signature ASC
	`
	args := []any{owner}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query submissions by owner: %w", err)
	}
	defer rows.Close()

	var result []*domain.SubmissionResult
	for rows.Next() {
		r, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission row: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submission rows: %w", err)
	}
	return result, nil
}

func (s *SubmissionStore) observe(op string, start time.Time, err *error) {
	var opErr error
	if err != nil && *err != nil && !errors.Is(*err, storage.ErrNotFound) && !errors.Is(*err, storage.ErrDuplicateKey) {
		opErr = *err
	}
	s.metrics.RecordDBQuery("postgres", op, time.Since(start).Seconds(), opErr)
}

func scanSubmission(row pgx.Row) (*domain.SubmissionResult, error) {
	var (
		r                       domain.SubmissionResult
		network, status         string
		errorCode, errorMessage string
	)
	err := row.Scan(
		&r.Signature, &network, &r.From, &r.To, &r.Mint, &r.Amount,
		&status, &errorCode, &errorMessage, &r.SubmittedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Network = domain.Network(network)
	r.Status = domain.SubmissionStatus(status)
	r.Err = decodeError(errorCode, errorMessage)
	return &r, nil
}

// encodeError splits err into a taxonomy code and a display message.
func encodeError(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	return string(domain.CodeOf(err)), domain.UserMessage(err)
}

func decodeError(code, message string) error {
	switch {
	case code != "":
		return domain.NewError(domain.Code(code), message, nil)
	case message != "":
		return errors.New(message)
	default:
		return nil
	}
}
