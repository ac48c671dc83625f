package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruziba3vich/tax-filing-service/internal/domain/session"
)

func TestBuildUpdate(t *testing.T) {
	id := uuid.New()

	t.Run("empty patch", func(t *testing.T) {
		query, args, err := buildUpdate(id, session.Patch{})
		require.NoError(t, err)
		assert.Empty(t, query)
		assert.Empty(t, args)
	})

	t.Run("step and form data", func(t *testing.T) {
		step := 3
		form := session.FormData{Version: 1, ContactEmail: "a@b.co"}
		now := time.Now()

		query, args, err := buildUpdate(id, session.Patch{CurrentStep: &step, FormData: &form, LastActivityAt: &now})
		require.NoError(t, err)

		assert.Contains(t, query, "current_step = $1, form_data = $2, last_activity_at = $3")
		assert.Contains(t, query, "WHERE id = $4 AND status IN ('prospect', 'active')")
		assert.Contains(t, query, "RETURNING "+sessionColumns)
		require.Len(t, args, 4)
		assert.JSONEq(t, `{"version":1,"contactEmail":"a@b.co"}`, string(args[1].([]byte)))
		assert.Equal(t, toPgUUID(id), args[3])
	})

	t.Run("finalize columns", func(t *testing.T) {
		status := session.StatusError
		msg := "portal locked"
		now := time.Now()

		query, args, err := buildUpdate(id, session.Patch{Status: &status, CompletedAt: &now, ErrorMessage: &msg})
		require.NoError(t, err)
		assert.Contains(t, query, "status = $1, completed_at = $2, error_message = $3")
		assert.Len(t, args, 4)
	})
}

func TestBuildSelect(t *testing.T) {
	query, args := buildSelect(session.Filter{})
	assert.Equal(t, `SELECT `+sessionColumns+` FROM wizard_sessions ORDER BY last_activity_at DESC`, query)
	assert.Empty(t, args)

	clientID := uuid.New()
	query, args = buildSelect(session.Filter{ClientID: clientID, Status: session.StatusActive})
	assert.Contains(t, query, "WHERE client_id = $1 AND status = $2")
	assert.Equal(t, []any{toPgUUID(clientID), "active"}, args)
}

func TestParseChangeEvent(t *testing.T) {
	id := uuid.New()
	ev, err := parseChangeEvent(`{"op":"UPDATE","id":"` + id.String() + `","status":"abandoned"}`)
	require.NoError(t, err)
	assert.Equal(t, session.ChangeEvent{Op: session.ChangeUpdate, SessionID: id, Status: session.StatusAbandoned}, ev)

	_, err = parseChangeEvent(`{"op":"UPDATE"}`)
	assert.Error(t, err)

	_, err = parseChangeEvent(`not json`)
	assert.Error(t, err)
}
