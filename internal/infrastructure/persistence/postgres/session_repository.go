package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ruziba3vich/tax-filing-service/internal/domain/session"
	apperrors "github.com/ruziba3vich/tax-filing-service/pkg/errors"
)

const sessionColumns = `id, client_id, tax_id, status, current_step, form_data, created_at, last_activity_at, completed_at, error_message`

type SessionRepository struct {
	db *DB
}

func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Insert(ctx context.Context, s *session.Session) error {
	formJSON, err := json.Marshal(s.FormData)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal form data")
	}

	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO wizard_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		toPgUUID(s.ID),
		toPgUUID(s.ClientID),
		toPgText(s.TaxID),
		string(s.Status),
		int32(s.CurrentStep),
		formJSON,
		toPgTimestamptz(s.CreatedAt),
		toPgTimestamptz(s.LastActivityAt),
		toPgTimestamptzNullable(s.CompletedAt),
		toPgTextNullable(s.ErrorMessage),
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return apperrors.Wrap(apperrors.ErrInvalidTransition, "session already exists")
		}
		return storeError(err, "failed to insert session")
	}
	return nil
}

func (r *SessionRepository) Update(ctx context.Context, id uuid.UUID, patch session.Patch) (*session.Session, error) {
	query, args, err := buildUpdate(id, patch)
	if err != nil {
		return nil, err
	}
	if query == "" {
		return r.GetByID(ctx, id)
	}

	s, err := scanSession(r.db.Pool.QueryRow(ctx, query, args...))
	if err == nil {
		return s, nil
	}
	if !isNoRows(err) {
		return nil, storeError(err, "failed to update session")
	}

	// No row matched: either it does not exist or it is already terminal.
	existing, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if existing.Status.Terminal() {
		return nil, apperrors.ErrSessionTerminal
	}
	return nil, storeError(err, "session changed during update")
}

func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*session.Session, error) {
	s, err := scanSession(r.db.Pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM wizard_sessions WHERE id = $1`, toPgUUID(id)))
	if err != nil {
		if isNoRows(err) {
			return nil, apperrors.ErrSessionNotFound
		}
		return nil, storeError(err, "failed to get session by ID")
	}
	return s, nil
}

// SelectWhere returns matches ordered by last activity, most recent first.
func (r *SessionRepository) SelectWhere(ctx context.Context, filter session.Filter) ([]*session.Session, error) {
	query, args := buildSelect(filter)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storeError(err, "failed to select sessions")
	}
	defer rows.Close()

	result := make([]*session.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, storeError(err, "failed to scan session")
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(err, "failed to iterate sessions")
	}
	return result, nil
}

func (r *SessionRepository) CountByStatus(ctx context.Context) (map[session.Status]int, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT status, COUNT(*) FROM wizard_sessions GROUP BY status`)
	if err != nil {
		return nil, storeError(err, "failed to count sessions")
	}
	defer rows.Close()

	counts := make(map[session.Status]int, len(session.AllStatuses))
	for _, st := range session.AllStatuses {
		counts[st] = 0
	}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, storeError(err, "failed to scan session count")
		}
		counts[session.Status(status)] = int(n)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(err, "failed to iterate session counts")
	}
	return counts, nil
}

// Subscribe listens on the change channel fed by the table trigger.
func (r *SessionRepository) Subscribe(ctx context.Context, fn func(session.ChangeEvent)) error {
	conn, err := r.db.Pool.Acquire(ctx)
	if err != nil {
		return storeError(err, "failed to acquire listen connection")
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+changeChannel); err != nil {
		return storeError(err, "failed to listen for session changes")
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return storeError(err, "session change subscription dropped")
		}

		ev, err := parseChangeEvent(n.Payload)
		if err != nil {
			continue
		}
		fn(ev)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*session.Session, error) {
	var (
		id, clientID   pgtype.UUID
		taxID          pgtype.Text
		status         string
		step           int32
		formJSON       []byte
		createdAt      pgtype.Timestamptz
		lastActivityAt pgtype.Timestamptz
		completedAt    pgtype.Timestamptz
		errorMessage   pgtype.Text
	)
	if err := row.Scan(&id, &clientID, &taxID, &status, &step, &formJSON,
		&createdAt, &lastActivityAt, &completedAt, &errorMessage); err != nil {
		return nil, err
	}

	s := &session.Session{
		ID:             fromPgUUID(id),
		ClientID:       fromPgUUID(clientID),
		TaxID:          taxID.String,
		Status:         session.Status(status),
		CurrentStep:    int(step),
		CreatedAt:      createdAt.Time.UTC(),
		LastActivityAt: lastActivityAt.Time.UTC(),
	}
	if len(formJSON) > 0 {
		if err := json.Unmarshal(formJSON, &s.FormData); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal form data")
		}
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		s.CompletedAt = &t
	}
	if errorMessage.Valid {
		m := errorMessage.String
		s.ErrorMessage = &m
	}
	return s, nil
}

// buildUpdate renders a patch as an UPDATE that only touches non-terminal
// rows. An empty patch yields an empty query.
func buildUpdate(id uuid.UUID, patch session.Patch) (string, []any, error) {
	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.TaxID != nil {
		add("tax_id", toPgText(*patch.TaxID))
	}
	if patch.Status != nil {
		add("status", string(*patch.Status))
	}
	if patch.CurrentStep != nil {
		add("current_step", int32(*patch.CurrentStep))
	}
	if patch.FormData != nil {
		formJSON, err := json.Marshal(patch.FormData)
		if err != nil {
			return "", nil, apperrors.Wrap(err, "failed to marshal form data")
		}
		add("form_data", formJSON)
	}
	if patch.LastActivityAt != nil {
		add("last_activity_at", toPgTimestamptz(*patch.LastActivityAt))
	}
	if patch.CompletedAt != nil {
		add("completed_at", toPgTimestamptz(*patch.CompletedAt))
	}
	if patch.ErrorMessage != nil {
		add("error_message", toPgTextNullable(patch.ErrorMessage))
	}

	if len(sets) == 0 {
		return "", nil, nil
	}

	args = append(args, toPgUUID(id))
	query := fmt.Sprintf(
		`UPDATE wizard_sessions SET %s WHERE id = $%d AND status IN ('prospect', 'active') RETURNING %s`,
		strings.Join(sets, ", "), len(args), sessionColumns,
	)
	return query, args, nil
}

func buildSelect(filter session.Filter) (string, []any) {
	var where []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if filter.ClientID != uuid.Nil {
		add("client_id", toPgUUID(filter.ClientID))
	}
	if filter.Status != "" {
		add("status", string(filter.Status))
	}
	if filter.TaxID != "" {
		add("tax_id", filter.TaxID)
	}

	query := `SELECT ` + sessionColumns + ` FROM wizard_sessions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY last_activity_at DESC`
	return query, args
}

func parseChangeEvent(payload string) (session.ChangeEvent, error) {
	var ev session.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return ev, err
	}
	if ev.SessionID == uuid.Nil {
		return ev, fmt.Errorf("change event without id")
	}
	return ev, nil
}
