package postgres

// changeChannel is the LISTEN/NOTIFY channel fed by the sessions trigger.
const changeChannel = "session_changes"

const schema = `
CREATE TABLE IF NOT EXISTS wizard_sessions (
	id               UUID PRIMARY KEY,
	client_id        UUID NOT NULL,
	tax_id           TEXT,
	status           TEXT NOT NULL CHECK (status IN ('prospect', 'active', 'completed', 'abandoned', 'error')),
	current_step     INTEGER NOT NULL DEFAULT 1 CHECK (current_step >= 1),
	form_data        JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at       TIMESTAMPTZ NOT NULL,
	last_activity_at TIMESTAMPTZ NOT NULL,
	completed_at     TIMESTAMPTZ,
	error_message    TEXT
);

CREATE INDEX IF NOT EXISTS idx_wizard_sessions_client_status ON wizard_sessions(client_id, status);
CREATE INDEX IF NOT EXISTS idx_wizard_sessions_status ON wizard_sessions(status);
CREATE INDEX IF NOT EXISTS idx_wizard_sessions_tax_id ON wizard_sessions(tax_id) WHERE tax_id IS NOT NULL;

CREATE OR REPLACE FUNCTION notify_wizard_session_change() RETURNS trigger AS $$
DECLARE
	rec RECORD;
BEGIN
	IF TG_OP = 'DELETE' THEN
		rec := OLD;
	ELSE
		rec := NEW;
	END IF;
	PERFORM pg_notify('session_changes', json_build_object('op', TG_OP, 'id', rec.id, 'status', rec.status)::text);
	RETURN rec;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS wizard_sessions_notify ON wizard_sessions;
CREATE TRIGGER wizard_sessions_notify
	AFTER INSERT OR UPDATE OR DELETE ON wizard_sessions
	FOR EACH ROW EXECUTE FUNCTION notify_wizard_session_change();
`
