package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/dealmesh-protocol/dealmesh/internal/crypto"
	"github.com/dealmesh-protocol/dealmesh/internal/models"
)

// SQLiteStore handles SQLite database operations. It is the
// development and test store; production uses PostgresStore.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/dealmesh.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/dealmesh.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		reputation REAL NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL REFERENCES agents(id),
		side TEXT NOT NULL,
		category TEXT NOT NULL,
		skills TEXT NOT NULL DEFAULT '[]',
		rate_min REAL,
		rate_max REAL,
		currency TEXT NOT NULL DEFAULT '',
		remote TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		expires_at DATETIME,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS matches (
		id TEXT PRIMARY KEY,
		profile_a TEXT NOT NULL REFERENCES profiles(id),
		profile_b TEXT NOT NULL REFERENCES profiles(id),
		agent_a TEXT NOT NULL,
		agent_b TEXT NOT NULL,
		overlap TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE(profile_a, profile_b)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		match_id TEXT NOT NULL REFERENCES matches(id),
		sender_id TEXT,
		content TEXT NOT NULL,
		type TEXT NOT NULL,
		proposed_terms TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS approvals (
		match_id TEXT NOT NULL REFERENCES matches(id),
		agent_id TEXT NOT NULL,
		approved INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (match_id, agent_id)
	);

	CREATE TABLE IF NOT EXISTS milestones (
		id TEXT PRIMARY KEY,
		match_id TEXT NOT NULL REFERENCES matches(id),
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		due_date DATETIME,
		status TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		created_by TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS disputes (
		id TEXT PRIMARY KEY,
		match_id TEXT NOT NULL REFERENCES matches(id),
		filed_by TEXT NOT NULL,
		reason TEXT NOT NULL,
		status TEXT NOT NULL,
		resolution TEXT,
		resolved_by TEXT,
		resolved_at DATETIME,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		type TEXT NOT NULL,
		match_id TEXT,
		from_agent_id TEXT,
		summary TEXT NOT NULL,
		read INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS webhooks (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		url TEXT NOT NULL,
		secret TEXT NOT NULL,
		events TEXT NOT NULL DEFAULT '["*"]',
		active INTEGER NOT NULL DEFAULT 1,
		failure_count INTEGER NOT NULL DEFAULT 0,
		last_triggered_at DATETIME,
		created_at DATETIME NOT NULL
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

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// isUniqueViolation reports whether err is a SQLite uniqueness error.
func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrConstraint
	}
	return false
}

// --- Agents ---

// CreateAgent inserts a new agent, assigning its id and timestamps.
func (s *SQLiteStore) CreateAgent(ctx context.Context, a *models.Agent) error {
	if a.ID == uuid.Nil {
		a.ID = crypto.NewUUIDv7()
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (id, name, reputation, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, a.ID.String(), a.Name, a.Reputation, a.CreatedAt, a.UpdatedAt)
	return err
}

// GetAgent retrieves an agent by ID.
func (s *SQLiteStore) GetAgent(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	a := &models.Agent{}
	var idStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, reputation, created_at, updated_at
		FROM agents WHERE id = ?
	`, id.String()).Scan(&idStr, &a.Name, &a.Reputation, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	a.ID = uuid.MustParse(idStr)
	return a, nil
}

// CountAgents returns the total number of registered agents.
func (s *SQLiteStore) CountAgents(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM agents`).Scan(&count)
	return count, err
}

// --- Profiles ---

// CreateProfile inserts a new profile, assigning its id and created_at.
func (s *SQLiteStore) CreateProfile(ctx context.Context, p *models.Profile) error {
	if p.ID == uuid.Nil {
		p.ID = crypto.NewUUIDv7()
	}
	p.CreatedAt = time.Now().UTC()

	skills, err := json.Marshal(p.Skills)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, agent_id, side, category, skills, rate_min, rate_max, currency, remote, active, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID.String(), p.AgentID.String(), string(p.Side), p.Category, string(skills),
		p.RateMin, p.RateMax, p.Currency, string(p.Remote), boolInt(p.Active), p.ExpiresAt, p.CreatedAt)
	return err
}

func (s *SQLiteStore) scanProfile(row interface{ Scan(...any) error }) (*models.Profile, error) {
	p := &models.Profile{}
	var idStr, agentStr, side, skills, remote string
	var activeInt int
	err := row.Scan(&idStr, &agentStr, &side, &p.Category, &skills,
		&p.RateMin, &p.RateMax, &p.Currency, &remote, &activeInt, &p.ExpiresAt, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.ID = uuid.MustParse(idStr)
	p.AgentID = uuid.MustParse(agentStr)
	p.Side = models.Side(side)
	p.Remote = models.RemotePref(remote)
	p.Active = activeInt == 1
	if err := json.Unmarshal([]byte(skills), &p.Skills); err != nil {
		return nil, err
	}
	return p, nil
}

const profileColumns = `id, agent_id, side, category, skills, rate_min, rate_max, currency, remote, active, expires_at, created_at`

// GetProfile retrieves a profile by ID.
func (s *SQLiteStore) GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id.String())
	p, err := s.scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// DeactivateProfile marks a profile inactive. Profiles are never
// hard-deleted.
func (s *SQLiteStore) DeactivateProfile(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `UPDATE profiles SET active = 0 WHERE id = ?`, id.String())
	return err
}

// ListCandidateProfiles returns active, unexpired profiles on the given
// side, excluding those owned by excludeAgent.
func (s *SQLiteStore) ListCandidateProfiles(ctx context.Context, side models.Side, excludeAgent uuid.UUID) ([]models.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+profileColumns+` FROM profiles
		WHERE side = ? AND active = 1 AND agent_id != ?
		  AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY created_at
	`, string(side), excludeAgent.String(), time.Now().UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []models.Profile
	for rows.Next() {
		p, err := s.scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

// CountActiveProfiles returns the number of active profiles.
func (s *SQLiteStore) CountActiveProfiles(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles WHERE active = 1`).Scan(&count)
	return count, err
}

// --- Matches ---

// CreateMatch inserts a new match. Returns ErrDuplicate when a match
// for the same ordered profile pair already exists.
func (s *SQLiteStore) CreateMatch(ctx context.Context, m *models.Match) error {
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

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO matches (id, profile_a, profile_b, agent_a, agent_b, overlap, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID.String(), m.ProfileA.String(), m.ProfileB.String(), m.AgentA.String(), m.AgentB.String(),
		string(overlap), string(m.Status), m.CreatedAt, m.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func scanMatch(row interface{ Scan(...any) error }) (*models.Match, error) {
	m := &models.Match{}
	var idStr, pa, pb, aa, ab, overlap, status string
	err := row.Scan(&idStr, &pa, &pb, &aa, &ab, &overlap, &status, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.ID = uuid.MustParse(idStr)
	m.ProfileA = uuid.MustParse(pa)
	m.ProfileB = uuid.MustParse(pb)
	m.AgentA = uuid.MustParse(aa)
	m.AgentB = uuid.MustParse(ab)
	m.Status = models.MatchStatus(status)
	if err := json.Unmarshal([]byte(overlap), &m.Overlap); err != nil {
		return nil, err
	}
	return m, nil
}

const matchColumns = `id, profile_a, profile_b, agent_a, agent_b, overlap, status, created_at, updated_at`

// GetMatch retrieves a match by ID.
func (s *SQLiteStore) GetMatch(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = ?`, id.String())
	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// GetMatchByProfiles retrieves a match by its ordered profile pair.
func (s *SQLiteStore) GetMatchByProfiles(ctx context.Context, profileA, profileB uuid.UUID) (*models.Match, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+matchColumns+` FROM matches WHERE profile_a = ? AND profile_b = ?
	`, profileA.String(), profileB.String())
	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// UpdateMatchStatus performs a conditional status transition.
func (s *SQLiteStore) UpdateMatchStatus(ctx context.Context, id uuid.UUID, from, to models.MatchStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE matches SET status = ?, updated_at = ? WHERE id = ? AND status = ?
	`, string(to), time.Now().UTC(), id.String(), string(from))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// CountMatchesByStatus returns match counts grouped by status.
func (s *SQLiteStore) CountMatchesByStatus(ctx context.Context) (map[models.MatchStatus]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM matches GROUP BY status`)
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
func (s *SQLiteStore) DealOutcomes(ctx context.Context, agentID uuid.UUID) (int64, int64, error) {
	var completed, resolved int64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(CASE WHEN status = 'completed' THEN 1 END),
			COUNT(CASE WHEN status IN ('completed', 'rejected', 'expired', 'cancelled') THEN 1 END)
		FROM matches WHERE agent_a = ? OR agent_b = ?
	`, agentID.String(), agentID.String()).Scan(&completed, &resolved)
	return completed, resolved, err
}

// --- Messages ---

// AppendMessage inserts the message and applies the status transition
// in one transaction. When from == to the transition is a no-op but the
// conditional check still guards against racing terminal writes.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *models.Message, from, to models.MatchStatus) error {
	if msg.ID == uuid.Nil {
		msg.ID = crypto.NewUUIDv7()
	}
	msg.CreatedAt = time.Now().UTC()

	var terms *string
	if msg.ProposedTerms != nil {
		data, err := json.Marshal(msg.ProposedTerms)
		if err != nil {
			return err
		}
		t := string(data)
		terms = &t
	}

	var sender *string
	if msg.SenderID != nil {
		str := msg.SenderID.String()
		sender = &str
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE matches SET status = ?, updated_at = ? WHERE id = ? AND status = ?
	`, string(to), msg.CreatedAt, msg.MatchID.String(), string(from))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, match_id, sender_id, content, type, proposed_terms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, msg.ID.String(), msg.MatchID.String(), sender, msg.Content, string(msg.Type), terms, msg.CreatedAt)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// ListMessages returns the transcript in creation order.
func (s *SQLiteStore) ListMessages(ctx context.Context, matchID uuid.UUID, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, match_id, sender_id, content, type, proposed_terms, created_at
		FROM messages WHERE match_id = ?
		ORDER BY created_at, id
		LIMIT ?
	`, matchID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		var idStr, mid, mtype string
		var sender, terms *string
		if err := rows.Scan(&idStr, &mid, &sender, &msg.Content, &mtype, &terms, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.ID = uuid.MustParse(idStr)
		msg.MatchID = uuid.MustParse(mid)
		msg.Type = models.MessageType(mtype)
		if sender != nil {
			sid := uuid.MustParse(*sender)
			msg.SenderID = &sid
		}
		if terms != nil {
			if err := json.Unmarshal([]byte(*terms), &msg.ProposedTerms); err != nil {
				return nil, err
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// CountMessages returns the total transcript size across all matches.
func (s *SQLiteStore) CountMessages(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

// --- Approvals ---

// UpsertApproval records a decision; repeated decisions by the same
// agent overwrite the previous one.
func (s *SQLiteStore) UpsertApproval(ctx context.Context, a *models.Approval) error {
	now := time.Now().UTC()
	a.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO approvals (match_id, agent_id, approved, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(match_id, agent_id) DO UPDATE SET approved = excluded.approved, updated_at = excluded.updated_at
	`, a.MatchID.String(), a.AgentID.String(), boolInt(a.Approved), now, now)
	return err
}

// UpsertApprovalWithStatus records the approval and applies the match
// status transition in one transaction. When the match is no longer in
// the from status it returns ErrConflict and nothing is written, the
// approval row included.
func (s *SQLiteStore) UpsertApprovalWithStatus(ctx context.Context, a *models.Approval, from, to models.MatchStatus) error {
	now := time.Now().UTC()
	a.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE matches SET status = ?, updated_at = ? WHERE id = ? AND status = ?
	`, string(to), now, a.MatchID.String(), string(from))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO approvals (match_id, agent_id, approved, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(match_id, agent_id) DO UPDATE SET approved = excluded.approved, updated_at = excluded.updated_at
	`, a.MatchID.String(), a.AgentID.String(), boolInt(a.Approved), now, now)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// ListApprovals returns the durable approval set for a match.
func (s *SQLiteStore) ListApprovals(ctx context.Context, matchID uuid.UUID) ([]models.Approval, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT match_id, agent_id, approved, created_at, updated_at
		FROM approvals WHERE match_id = ?
	`, matchID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var approvals []models.Approval
	for rows.Next() {
		var a models.Approval
		var mid, aid string
		var approvedInt int
		if err := rows.Scan(&mid, &aid, &approvedInt, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.MatchID = uuid.MustParse(mid)
		a.AgentID = uuid.MustParse(aid)
		a.Approved = approvedInt == 1
		approvals = append(approvals, a)
	}
	return approvals, rows.Err()
}

// --- Milestones ---

// CreateMilestone inserts a new milestone.
func (s *SQLiteStore) CreateMilestone(ctx context.Context, m *models.Milestone) error {
	if m.ID == uuid.Nil {
		m.ID = crypto.NewUUIDv7()
	}
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now
	if m.Status == "" {
		m.Status = models.MilestonePending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO milestones (id, match_id, title, description, due_date, status, position, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID.String(), m.MatchID.String(), m.Title, m.Description, m.DueDate,
		string(m.Status), m.Position, m.CreatedBy.String(), m.CreatedAt, m.UpdatedAt)
	return err
}

func scanMilestone(row interface{ Scan(...any) error }) (*models.Milestone, error) {
	m := &models.Milestone{}
	var idStr, mid, status, createdBy string
	err := row.Scan(&idStr, &mid, &m.Title, &m.Description, &m.DueDate,
		&status, &m.Position, &createdBy, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.ID = uuid.MustParse(idStr)
	m.MatchID = uuid.MustParse(mid)
	m.Status = models.MilestoneStatus(status)
	m.CreatedBy = uuid.MustParse(createdBy)
	return m, nil
}

const milestoneColumns = `id, match_id, title, description, due_date, status, position, created_by, created_at, updated_at`

// GetMilestone retrieves a milestone by ID.
func (s *SQLiteStore) GetMilestone(ctx context.Context, id uuid.UUID) (*models.Milestone, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE id = ?`, id.String())
	m, err := scanMilestone(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// UpdateMilestone writes the milestone's mutable fields.
func (s *SQLiteStore) UpdateMilestone(ctx context.Context, m *models.Milestone) error {
	m.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE milestones SET title = ?, description = ?, due_date = ?, status = ?, position = ?, updated_at = ?
		WHERE id = ?
	`, m.Title, m.Description, m.DueDate, string(m.Status), m.Position, m.UpdatedAt, m.ID.String())
	return err
}

// ListMilestones returns a match's milestones ordered by position.
func (s *SQLiteStore) ListMilestones(ctx context.Context, matchID uuid.UUID) ([]models.Milestone, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+milestoneColumns+` FROM milestones WHERE match_id = ? ORDER BY position, created_at
	`, matchID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var milestones []models.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		milestones = append(milestones, *m)
	}
	return milestones, rows.Err()
}

// --- Disputes ---

// CreateDispute inserts a new open dispute.
func (s *SQLiteStore) CreateDispute(ctx context.Context, d *models.Dispute) error {
	if d.ID == uuid.Nil {
		d.ID = crypto.NewUUIDv7()
	}
	d.CreatedAt = time.Now().UTC()
	if d.Status == "" {
		d.Status = models.DisputeOpen
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO disputes (id, match_id, filed_by, reason, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, d.ID.String(), d.MatchID.String(), d.FiledBy.String(), d.Reason, string(d.Status), d.CreatedAt)
	return err
}

func scanDispute(row interface{ Scan(...any) error }) (*models.Dispute, error) {
	d := &models.Dispute{}
	var idStr, mid, filedBy, status string
	var resolvedBy *string
	err := row.Scan(&idStr, &mid, &filedBy, &d.Reason, &status, &d.Resolution, &resolvedBy, &d.ResolvedAt, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.ID = uuid.MustParse(idStr)
	d.MatchID = uuid.MustParse(mid)
	d.FiledBy = uuid.MustParse(filedBy)
	d.Status = models.DisputeStatus(status)
	if resolvedBy != nil {
		rid := uuid.MustParse(*resolvedBy)
		d.ResolvedBy = &rid
	}
	return d, nil
}

const disputeColumns = `id, match_id, filed_by, reason, status, resolution, resolved_by, resolved_at, created_at`

// GetDispute retrieves a dispute by ID.
func (s *SQLiteStore) GetDispute(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id = ?`, id.String())
	d, err := scanDispute(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

// ResolveDispute writes the dispute's resolution fields.
func (s *SQLiteStore) ResolveDispute(ctx context.Context, d *models.Dispute) error {
	var resolvedBy *string
	if d.ResolvedBy != nil {
		str := d.ResolvedBy.String()
		resolvedBy = &str
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE disputes SET status = ?, resolution = ?, resolved_by = ?, resolved_at = ? WHERE id = ?
	`, string(d.Status), d.Resolution, resolvedBy, d.ResolvedAt, d.ID.String())
	return err
}

// ListDisputes returns a match's disputes, newest first.
func (s *SQLiteStore) ListDisputes(ctx context.Context, matchID uuid.UUID) ([]models.Dispute, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+disputeColumns+` FROM disputes WHERE match_id = ? ORDER BY created_at DESC
	`, matchID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var disputes []models.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		disputes = append(disputes, *d)
	}
	return disputes, rows.Err()
}

// --- Notifications ---

// CreateNotification inserts a notification row.
func (s *SQLiteStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = crypto.NewUUIDv7()
	}
	n.CreatedAt = time.Now().UTC()

	var matchID, fromAgent *string
	if n.MatchID != nil {
		str := n.MatchID.String()
		matchID = &str
	}
	if n.FromAgentID != nil {
		str := n.FromAgentID.String()
		fromAgent = &str
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, agent_id, type, match_id, from_agent_id, summary, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
	`, n.ID.String(), n.AgentID.String(), n.Type, matchID, fromAgent, n.Summary, n.CreatedAt)
	return err
}

// ListNotifications returns an agent's notifications, newest first.
func (s *SQLiteStore) ListNotifications(ctx context.Context, agentID uuid.UUID, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, type, match_id, from_agent_id, summary, read, created_at
		FROM notifications WHERE agent_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, agentID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		var n models.Notification
		var idStr, aid string
		var matchID, fromAgent *string
		var readInt int
		if err := rows.Scan(&idStr, &aid, &n.Type, &matchID, &fromAgent, &n.Summary, &readInt, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.ID = uuid.MustParse(idStr)
		n.AgentID = uuid.MustParse(aid)
		n.Read = readInt == 1
		if matchID != nil {
			mid := uuid.MustParse(*matchID)
			n.MatchID = &mid
		}
		if fromAgent != nil {
			fid := uuid.MustParse(*fromAgent)
			n.FromAgentID = &fid
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkNotificationRead flags a notification as read.
func (s *SQLiteStore) MarkNotificationRead(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE id = ?`, id.String())
	return err
}

// --- Webhooks ---

// CreateWebhook inserts a new webhook subscription.
func (s *SQLiteStore) CreateWebhook(ctx context.Context, w *models.Webhook) error {
	if w.ID == uuid.Nil {
		w.ID = crypto.NewUUIDv7()
	}
	w.CreatedAt = time.Now().UTC()
	w.Active = true
	if len(w.Events) == 0 {
		w.Events = []string{models.WebhookEventWildcard}
	}

	events, err := json.Marshal(w.Events)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO webhooks (id, agent_id, url, secret, events, active, failure_count, created_at)
		VALUES (?, ?, ?, ?, ?, 1, 0, ?)
	`, w.ID.String(), w.AgentID.String(), w.URL, w.Secret, string(events), w.CreatedAt)
	return err
}

func scanWebhook(row interface{ Scan(...any) error }) (*models.Webhook, error) {
	w := &models.Webhook{}
	var idStr, aid, events string
	var activeInt int
	err := row.Scan(&idStr, &aid, &w.URL, &w.Secret, &events, &activeInt, &w.FailureCount, &w.LastTriggeredAt, &w.CreatedAt)
	if err != nil {
		return nil, err
	}
	w.ID = uuid.MustParse(idStr)
	w.AgentID = uuid.MustParse(aid)
	w.Active = activeInt == 1
	if err := json.Unmarshal([]byte(events), &w.Events); err != nil {
		return nil, err
	}
	return w, nil
}

const webhookColumns = `id, agent_id, url, secret, events, active, failure_count, last_triggered_at, created_at`

// GetWebhook retrieves a webhook by ID.
func (s *SQLiteStore) GetWebhook(ctx context.Context, id uuid.UUID) (*models.Webhook, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE id = ?`, id.String())
	w, err := scanWebhook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return w, err
}

func (s *SQLiteStore) listWebhooks(ctx context.Context, query string, args ...any) ([]models.Webhook, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var webhooks []models.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		webhooks = append(webhooks, *w)
	}
	return webhooks, rows.Err()
}

// ListWebhooksForAgent returns all of an agent's webhooks.
func (s *SQLiteStore) ListWebhooksForAgent(ctx context.Context, agentID uuid.UUID) ([]models.Webhook, error) {
	return s.listWebhooks(ctx, `
		SELECT `+webhookColumns+` FROM webhooks WHERE agent_id = ? ORDER BY created_at
	`, agentID.String())
}

// ListActiveWebhooks returns an agent's active webhooks.
func (s *SQLiteStore) ListActiveWebhooks(ctx context.Context, agentID uuid.UUID) ([]models.Webhook, error) {
	return s.listWebhooks(ctx, `
		SELECT `+webhookColumns+` FROM webhooks WHERE agent_id = ? AND active = 1 ORDER BY created_at
	`, agentID.String())
}

// DeleteWebhook removes a webhook subscription.
func (s *SQLiteStore) DeleteWebhook(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = ?`, id.String())
	return err
}

// SetWebhookActive enables or disables a webhook; enabling resets the
// failure counter.
func (s *SQLiteStore) SetWebhookActive(ctx context.Context, id uuid.UUID, active bool) error {
	query := `UPDATE webhooks SET active = ? WHERE id = ?`
	if active {
		query = `UPDATE webhooks SET active = ?, failure_count = 0 WHERE id = ?`
	}
	_, err := s.db.ExecContext(ctx, query, boolInt(active), id.String())
	return err
}

// RecordWebhookResult updates the failure accounting for one delivery
// attempt and deactivates the webhook at the failure ceiling.
func (s *SQLiteStore) RecordWebhookResult(ctx context.Context, id uuid.UUID, success bool) (*WebhookResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if success {
		_, err = tx.ExecContext(ctx, `
			UPDATE webhooks SET failure_count = 0, last_triggered_at = ? WHERE id = ?
		`, now, id.String())
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE webhooks SET failure_count = failure_count + 1 WHERE id = ?
		`, id.String())
	}
	if err != nil {
		return nil, err
	}

	var failures, activeInt int
	err = tx.QueryRowContext(ctx, `
		SELECT failure_count, active FROM webhooks WHERE id = ?
	`, id.String()).Scan(&failures, &activeInt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	active := activeInt == 1
	if !success && failures >= FailureCeiling && active {
		if _, err := tx.ExecContext(ctx, `UPDATE webhooks SET active = 0 WHERE id = ?`, id.String()); err != nil {
			return nil, err
		}
		active = false
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &WebhookResult{FailureCount: failures, Active: active}, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
