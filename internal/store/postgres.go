package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dealmesh-protocol/dealmesh/internal/crypto"
	"github.com/dealmesh-protocol/dealmesh/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// RunMigrations applies the schema. Idempotent; safe to run at startup.
func RunMigrations(ctx context.Context, databaseURL string) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		reputation DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS profiles (
		id UUID PRIMARY KEY,
		agent_id UUID NOT NULL REFERENCES agents(id),
		side TEXT NOT NULL,
		category TEXT NOT NULL,
		skills TEXT[] NOT NULL DEFAULT '{}',
		rate_min DOUBLE PRECISION,
		rate_max DOUBLE PRECISION,
		currency TEXT NOT NULL DEFAULT '',
		remote TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		expires_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS matches (
		id UUID PRIMARY KEY,
		profile_a UUID NOT NULL REFERENCES profiles(id),
		profile_b UUID NOT NULL REFERENCES profiles(id),
		agent_a UUID NOT NULL,
		agent_b UUID NOT NULL,
		overlap JSONB NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE(profile_a, profile_b)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY,
		match_id UUID NOT NULL REFERENCES matches(id),
		sender_id UUID,
		content TEXT NOT NULL,
		type TEXT NOT NULL,
		proposed_terms JSONB,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS approvals (
		match_id UUID NOT NULL REFERENCES matches(id),
		agent_id UUID NOT NULL,
		approved BOOLEAN NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (match_id, agent_id)
	);

	CREATE TABLE IF NOT EXISTS milestones (
		id UUID PRIMARY KEY,
		match_id UUID NOT NULL REFERENCES matches(id),
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		due_date TIMESTAMPTZ,
		status TEXT NOT NULL,
		position INT NOT NULL DEFAULT 0,
		created_by UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS disputes (
		id UUID PRIMARY KEY,
		match_id UUID NOT NULL REFERENCES matches(id),
		filed_by UUID NOT NULL,
		reason TEXT NOT NULL,
		status TEXT NOT NULL,
		resolution TEXT,
		resolved_by UUID,
		resolved_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id UUID PRIMARY KEY,
		agent_id UUID NOT NULL,
		type TEXT NOT NULL,
		match_id UUID,
		from_agent_id UUID,
		summary TEXT NOT NULL,
		read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS webhooks (
		id UUID PRIMARY KEY,
		agent_id UUID NOT NULL,
		url TEXT NOT NULL,
		secret TEXT NOT NULL,
		events TEXT[] NOT NULL DEFAULT '{*}',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		failure_count INT NOT NULL DEFAULT 0,
		last_triggered_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_profiles_agent ON profiles(agent_id);
	CREATE INDEX IF NOT EXISTS idx_profiles_side_active ON profiles(side, active);
	CREATE INDEX IF NOT EXISTS idx_matches_agents ON matches(agent_a, agent_b);
	CREATE INDEX IF NOT EXISTS idx_messages_match ON messages(match_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_milestones_match ON milestones(match_id, position);
	CREATE INDEX IF NOT EXISTS idx_disputes_match ON disputes(match_id);
	CREATE INDEX IF NOT EXISTS idx_notifications_agent ON notifications(agent_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_webhooks_agent ON webhooks(agent_id);
	`

	_, err = conn.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// isPgUniqueViolation reports whether err is a PostgreSQL unique_violation.
func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- Agents ---

// CreateAgent inserts a new agent, assigning its id and timestamps.
func (s *PostgresStore) CreateAgent(ctx context.Context, a *models.Agent) error {
	if a.ID == uuid.Nil {
		a.ID = crypto.NewUUIDv7()
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO agents (id, name, reputation, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, a.ID, a.Name, a.Reputation, a.CreatedAt, a.UpdatedAt)
	return err
}

// GetAgent retrieves an agent by ID.
func (s *PostgresStore) GetAgent(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	a := &models.Agent{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, reputation, created_at, updated_at
		FROM agents WHERE id = $1
	`, id).Scan(&a.ID, &a.Name, &a.Reputation, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

// CountAgents returns the total number of registered agents.
func (s *PostgresStore) CountAgents(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM agents`).Scan(&count)
	return count, err
}

// --- Profiles ---

const pgProfileColumns = `id, agent_id, side, category, skills, rate_min, rate_max, currency, remote, active, expires_at, created_at`

// CreateProfile inserts a new profile, assigning its id and created_at.
func (s *PostgresStore) CreateProfile(ctx context.Context, p *models.Profile) error {
	if p.ID == uuid.Nil {
		p.ID = crypto.NewUUIDv7()
	}
	p.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (id, agent_id, side, category, skills, rate_min, rate_max, currency, remote, active, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, p.ID, p.AgentID, string(p.Side), p.Category, p.Skills,
		p.RateMin, p.RateMax, p.Currency, string(p.Remote), p.Active, p.ExpiresAt, p.CreatedAt)
	return err
}

func scanPgProfile(row pgx.Row) (*models.Profile, error) {
	p := &models.Profile{}
	var side, remote string
	err := row.Scan(&p.ID, &p.AgentID, &side, &p.Category, &p.Skills,
		&p.RateMin, &p.RateMax, &p.Currency, &remote, &p.Active, &p.ExpiresAt, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.Side = models.Side(side)
	p.Remote = models.RemotePref(remote)
	return p, nil
}

// GetProfile retrieves a profile by ID.
func (s *PostgresStore) GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgProfileColumns+` FROM profiles WHERE id = $1`, id)
	p, err := scanPgProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// DeactivateProfile marks a profile inactive.
func (s *PostgresStore) DeactivateProfile(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE profiles SET active = FALSE WHERE id = $1`, id)
	return err
}

// ListCandidateProfiles returns active, unexpired profiles on the given
// side, excluding those owned by excludeAgent.
func (s *PostgresStore) ListCandidateProfiles(ctx context.Context, side models.Side, excludeAgent uuid.UUID) ([]models.Profile, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+pgProfileColumns+` FROM profiles
		WHERE side = $1 AND active = TRUE AND agent_id != $2
		  AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY created_at
	`, string(side), excludeAgent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []models.Profile
	for rows.Next() {
		p, err := scanPgProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

// CountActiveProfiles returns the number of active profiles.
func (s *PostgresStore) CountActiveProfiles(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM profiles WHERE active = TRUE`).Scan(&count)
	return count, err
}

// --- Matches ---

const pgMatchColumns = `id, profile_a, profile_b, agent_a, agent_b, overlap, status, created_at, updated_at`

// CreateMatch inserts a new match. Returns ErrDuplicate when a match
// for the same ordered profile pair already exists.
func (s *PostgresStore) CreateMatch(ctx context.Context, m *models.Match) error {
	if m.ID == uuid.Nil {
		m.ID = crypto.NewUUIDv7()
	}
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now
	if m.Status == "" {
		m.Status = models.StatusMatched
	}

	overlap, err := json.Marshal(m.Overlap)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO matches (id, profile_a, profile_b, agent_a, agent_b, overlap, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, m.ID, m.ProfileA, m.ProfileB, m.AgentA, m.AgentB, overlap, string(m.Status), m.CreatedAt, m.UpdatedAt)
	if err != nil {
		if isPgUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func scanPgMatch(row pgx.Row) (*models.Match, error) {
	m := &models.Match{}
	var overlap []byte
	var status string
	err := row.Scan(&m.ID, &m.ProfileA, &m.ProfileB, &m.AgentA, &m.AgentB, &overlap, &status, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Status = models.MatchStatus(status)
	if err := json.Unmarshal(overlap, &m.Overlap); err != nil {
		return nil, err
	}
	return m, nil
}

// GetMatch retrieves a match by ID.
func (s *PostgresStore) GetMatch(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgMatchColumns+` FROM matches WHERE id = $1`, id)
	m, err := scanPgMatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// GetMatchByProfiles retrieves a match by its ordered profile pair.
func (s *PostgresStore) GetMatchByProfiles(ctx context.Context, profileA, profileB uuid.UUID) (*models.Match, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+pgMatchColumns+` FROM matches WHERE profile_a = $1 AND profile_b = $2
	`, profileA, profileB)
	m, err := scanPgMatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// UpdateMatchStatus performs a conditional status transition.
func (s *PostgresStore) UpdateMatchStatus(ctx context.Context, id uuid.UUID, from, to models.MatchStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE matches SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3
	`, string(to), id, string(from))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// CountMatchesByStatus returns match counts grouped by status.
func (s *PostgresStore) CountMatchesByStatus(ctx context.Context) (map[models.MatchStatus]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM matches GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.MatchStatus]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[models.MatchStatus(status)] = count
	}
	return counts, rows.Err()
}

// DealOutcomes returns completed and resolved (terminal) deal counts
// for an agent.
func (s *PostgresStore) DealOutcomes(ctx context.Context, agentID uuid.UUID) (int64, int64, error) {
	var completed, resolved int64
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status IN ('completed', 'rejected', 'expired', 'cancelled'))
		FROM matches WHERE agent_a = $1 OR agent_b = $1
	`, agentID).Scan(&completed, &resolved)
	return completed, resolved, err
}

// --- Messages ---

// AppendMessage inserts the message and applies the status transition
// in one transaction.
func (s *PostgresStore) AppendMessage(ctx context.Context, msg *models.Message, from, to models.MatchStatus) error {
	if msg.ID == uuid.Nil {
		msg.ID = crypto.NewUUIDv7()
	}
	msg.CreatedAt = time.Now().UTC()

	var terms []byte
	if msg.ProposedTerms != nil {
		data, err := json.Marshal(msg.ProposedTerms)
		if err != nil {
			return err
		}
		terms = data
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE matches SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4
	`, string(to), msg.CreatedAt, msg.MatchID, string(from))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO messages (id, match_id, sender_id, content, type, proposed_terms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, msg.ID, msg.MatchID, msg.SenderID, msg.Content, string(msg.Type), terms, msg.CreatedAt)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ListMessages returns the transcript in creation order.
func (s *PostgresStore) ListMessages(ctx context.Context, matchID uuid.UUID, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, match_id, sender_id, content, type, proposed_terms, created_at
		FROM messages WHERE match_id = $1
		ORDER BY created_at, id
		LIMIT $2
	`, matchID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		var mtype string
		var terms []byte
		if err := rows.Scan(&msg.ID, &msg.MatchID, &msg.SenderID, &msg.Content, &mtype, &terms, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.Type = models.MessageType(mtype)
		if terms != nil {
			if err := json.Unmarshal(terms, &msg.ProposedTerms); err != nil {
				return nil, err
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// CountMessages returns the total transcript size across all matches.
func (s *PostgresStore) CountMessages(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

// --- Approvals ---

// UpsertApproval records a decision; the latest decision wins.
func (s *PostgresStore) UpsertApproval(ctx context.Context, a *models.Approval) error {
	now := time.Now().UTC()
	a.UpdatedAt = now
	_, err := s.pool.Exec(ctx, `
		INSERT INTO approvals (match_id, agent_id, approved, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (match_id, agent_id) DO UPDATE SET approved = EXCLUDED.approved, updated_at = EXCLUDED.updated_at
	`, a.MatchID, a.AgentID, a.Approved, now, now)
	return err
}

// UpsertApprovalWithStatus records the approval and applies the match
// status transition in one transaction. When the match is no longer in
// the from status it returns ErrConflict and nothing is written, the
// approval row included.
func (s *PostgresStore) UpsertApprovalWithStatus(ctx context.Context, a *models.Approval, from, to models.MatchStatus) error {
	now := time.Now().UTC()
	a.UpdatedAt = now

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE matches SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4
	`, string(to), now, a.MatchID, string(from))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO approvals (match_id, agent_id, approved, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (match_id, agent_id) DO UPDATE SET approved = EXCLUDED.approved, updated_at = EXCLUDED.updated_at
	`, a.MatchID, a.AgentID, a.Approved, now, now)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListApprovals returns the durable approval set for a match.
func (s *PostgresStore) ListApprovals(ctx context.Context, matchID uuid.UUID) ([]models.Approval, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT match_id, agent_id, approved, created_at, updated_at
		FROM approvals WHERE match_id = $1
	`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var approvals []models.Approval
	for rows.Next() {
		var a models.Approval
		if err := rows.Scan(&a.MatchID, &a.AgentID, &a.Approved, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		approvals = append(approvals, a)
	}
	return approvals, rows.Err()
}

// --- Milestones ---

const pgMilestoneColumns = `id, match_id, title, description, due_date, status, position, created_by, created_at, updated_at`

// CreateMilestone inserts a new milestone.
func (s *PostgresStore) CreateMilestone(ctx context.Context, m *models.Milestone) error {
	if m.ID == uuid.Nil {
		m.ID = crypto.NewUUIDv7()
	}
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now
	if m.Status == "" {
		m.Status = models.MilestonePending
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO milestones (id, match_id, title, description, due_date, status, position, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, m.ID, m.MatchID, m.Title, m.Description, m.DueDate, string(m.Status), m.Position, m.CreatedBy, m.CreatedAt, m.UpdatedAt)
	return err
}

func scanPgMilestone(row pgx.Row) (*models.Milestone, error) {
	m := &models.Milestone{}
	var status string
	err := row.Scan(&m.ID, &m.MatchID, &m.Title, &m.Description, &m.DueDate,
		&status, &m.Position, &m.CreatedBy, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Status = models.MilestoneStatus(status)
	return m, nil
}

// GetMilestone retrieves a milestone by ID.
func (s *PostgresStore) GetMilestone(ctx context.Context, id uuid.UUID) (*models.Milestone, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgMilestoneColumns+` FROM milestones WHERE id = $1`, id)
	m, err := scanPgMilestone(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// UpdateMilestone writes the milestone's mutable fields.
func (s *PostgresStore) UpdateMilestone(ctx context.Context, m *models.Milestone) error {
	m.UpdatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		UPDATE milestones SET title = $1, description = $2, due_date = $3, status = $4, position = $5, updated_at = $6
		WHERE id = $7
	`, m.Title, m.Description, m.DueDate, string(m.Status), m.Position, m.UpdatedAt, m.ID)
	return err
}

// ListMilestones returns a match's milestones ordered by position.
func (s *PostgresStore) ListMilestones(ctx context.Context, matchID uuid.UUID) ([]models.Milestone, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+pgMilestoneColumns+` FROM milestones WHERE match_id = $1 ORDER BY position, created_at
	`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var milestones []models.Milestone
	for rows.Next() {
		m, err := scanPgMilestone(rows)
		if err != nil {
			return nil, err
		}
		milestones = append(milestones, *m)
	}
	return milestones, rows.Err()
}

// --- Disputes ---

const pgDisputeColumns = `id, match_id, filed_by, reason, status, resolution, resolved_by, resolved_at, created_at`

// CreateDispute inserts a new open dispute.
func (s *PostgresStore) CreateDispute(ctx context.Context, d *models.Dispute) error {
	if d.ID == uuid.Nil {
		d.ID = crypto.NewUUIDv7()
	}
	d.CreatedAt = time.Now().UTC()
	if d.Status == "" {
		d.Status = models.DisputeOpen
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO disputes (id, match_id, filed_by, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, d.ID, d.MatchID, d.FiledBy, d.Reason, string(d.Status), d.CreatedAt)
	return err
}

func scanPgDispute(row pgx.Row) (*models.Dispute, error) {
	d := &models.Dispute{}
	var status string
	err := row.Scan(&d.ID, &d.MatchID, &d.FiledBy, &d.Reason, &status, &d.Resolution, &d.ResolvedBy, &d.ResolvedAt, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.Status = models.DisputeStatus(status)
	return d, nil
}

// GetDispute retrieves a dispute by ID.
func (s *PostgresStore) GetDispute(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgDisputeColumns+` FROM disputes WHERE id = $1`, id)
	d, err := scanPgDispute(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

// ResolveDispute writes the dispute's resolution fields.
func (s *PostgresStore) ResolveDispute(ctx context.Context, d *models.Dispute) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE disputes SET status = $1, resolution = $2, resolved_by = $3, resolved_at = $4 WHERE id = $5
	`, string(d.Status), d.Resolution, d.ResolvedBy, d.ResolvedAt, d.ID)
	return err
}

// ListDisputes returns a match's disputes, newest first.
func (s *PostgresStore) ListDisputes(ctx context.Context, matchID uuid.UUID) ([]models.Dispute, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+pgDisputeColumns+` FROM disputes WHERE match_id = $1 ORDER BY created_at DESC
	`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var disputes []models.Dispute
	for rows.Next() {
		d, err := scanPgDispute(rows)
		if err != nil {
			return nil, err
		}
		disputes = append(disputes, *d)
	}
	return disputes, rows.Err()
}

// --- Notifications ---

// CreateNotification inserts a notification row.
func (s *PostgresStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = crypto.NewUUIDv7()
	}
	n.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (id, agent_id, type, match_id, from_agent_id, summary, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
	`, n.ID, n.AgentID, n.Type, n.MatchID, n.FromAgentID, n.Summary, n.CreatedAt)
	return err
}

// ListNotifications returns an agent's notifications, newest first.
func (s *PostgresStore) ListNotifications(ctx context.Context, agentID uuid.UUID, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, agent_id, type, match_id, from_agent_id, summary, read, created_at
		FROM notifications WHERE agent_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.AgentID, &n.Type, &n.MatchID, &n.FromAgentID, &n.Summary, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkNotificationRead flags a notification as read.
func (s *PostgresStore) MarkNotificationRead(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1`, id)
	return err
}

// --- Webhooks ---

const pgWebhookColumns = `id, agent_id, url, secret, events, active, failure_count, last_triggered_at, created_at`

// CreateWebhook inserts a new webhook subscription.
func (s *PostgresStore) CreateWebhook(ctx context.Context, w *models.Webhook) error {
	if w.ID == uuid.Nil {
		w.ID = crypto.NewUUIDv7()
	}
	w.CreatedAt = time.Now().UTC()
	w.Active = true
	if len(w.Events) == 0 {
		w.Events = []string{models.WebhookEventWildcard}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO webhooks (id, agent_id, url, secret, events, active, failure_count, created_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, 0, $6)
	`, w.ID, w.AgentID, w.URL, w.Secret, w.Events, w.CreatedAt)
	return err
}

func scanPgWebhook(row pgx.Row) (*models.Webhook, error) {
	w := &models.Webhook{}
	err := row.Scan(&w.ID, &w.AgentID, &w.URL, &w.Secret, &w.Events, &w.Active, &w.FailureCount, &w.LastTriggeredAt, &w.CreatedAt)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// GetWebhook retrieves a webhook by ID.
func (s *PostgresStore) GetWebhook(ctx context.Context, id uuid.UUID) (*models.Webhook, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgWebhookColumns+` FROM webhooks WHERE id = $1`, id)
	w, err := scanPgWebhook(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return w, err
}

func (s *PostgresStore) listWebhooks(ctx context.Context, query string, args ...any) ([]models.Webhook, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var webhooks []models.Webhook
	for rows.Next() {
		w, err := scanPgWebhook(rows)
		if err != nil {
			return nil, err
		}
		webhooks = append(webhooks, *w)
	}
	return webhooks, rows.Err()
}

// ListWebhooksForAgent returns all of an agent's webhooks.
func (s *PostgresStore) ListWebhooksForAgent(ctx context.Context, agentID uuid.UUID) ([]models.Webhook, error) {
	return s.listWebhooks(ctx, `
		SELECT `+pgWebhookColumns+` FROM webhooks WHERE agent_id = $1 ORDER BY created_at
	`, agentID)
}

// ListActiveWebhooks returns an agent's active webhooks.
func (s *PostgresStore) ListActiveWebhooks(ctx context.Context, agentID uuid.UUID) ([]models.Webhook, error) {
	return s.listWebhooks(ctx, `
		SELECT `+pgWebhookColumns+` FROM webhooks WHERE agent_id = $1 AND active = TRUE ORDER BY created_at
	`, agentID)
}

// DeleteWebhook removes a webhook subscription.
func (s *PostgresStore) DeleteWebhook(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM webhooks WHERE id = $1`, id)
	return err
}

// SetWebhookActive enables or disables a webhook; enabling resets the
// failure counter.
func (s *PostgresStore) SetWebhookActive(ctx context.Context, id uuid.UUID, active bool) error {
	query := `UPDATE webhooks SET active = $1 WHERE id = $2`
	if active {
		query = `UPDATE webhooks SET active = $1, failure_count = 0 WHERE id = $2`
	}
	_, err := s.pool.Exec(ctx, query, active, id)
	return err
}

// RecordWebhookResult updates the failure accounting for one delivery
// attempt and deactivates the webhook at the failure ceiling.
func (s *PostgresStore) RecordWebhookResult(ctx context.Context, id uuid.UUID, success bool) (*WebhookResult, error) {
	var failures int
	var active bool
	var err error
	if success {
		err = s.pool.QueryRow(ctx, `
			UPDATE webhooks SET failure_count = 0, last_triggered_at = NOW()
			WHERE id = $1
			RETURNING failure_count, active
		`, id).Scan(&failures, &active)
	} else {
		err = s.pool.QueryRow(ctx, `
			UPDATE webhooks
			SET failure_count = failure_count + 1,
			    active = CASE WHEN failure_count + 1 >= $2 THEN FALSE ELSE active END
			WHERE id = $1
			RETURNING failure_count, active
		`, id, FailureCeiling).Scan(&failures, &active)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &WebhookResult{FailureCount: failures, Active: active}, nil
}
