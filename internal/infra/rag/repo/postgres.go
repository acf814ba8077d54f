// Package repo implements the rag metadata repositories (sessions,
// messages, agents, folders, feedback, usage) against Postgres and as an
// in-memory fallback, mirroring the dual-mode pattern the teacher's
// uploadask repositories use.
package repo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yanqian/ai-helloworld/internal/domain/rag"
)

// PostgresSessions persists chat sessions.
type PostgresSessions struct{ pool *pgxpool.Pool }

func NewPostgresSessions(pool *pgxpool.Pool) *PostgresSessions { return &PostgresSessions{pool: pool} }

func (r *PostgresSessions) Create(ctx context.Context, s rag.Session) error {
	meta, err := json.Marshal(s.Metadata)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO rag_sessions (id, title, collection, agent_id, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.ID, s.Title, s.Collection, s.AgentID, meta, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r *PostgresSessions) Get(ctx context.Context, id uuid.UUID) (rag.Session, bool, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, title, collection, agent_id, metadata, created_at, updated_at
		FROM rag_sessions WHERE id = $1
	`, id)
	s, err := scanSession(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return rag.Session{}, false, nil
		}
		return rag.Session{}, false, err
	}
	return s, true, nil
}

func (r *PostgresSessions) List(ctx context.Context, limit int) ([]rag.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, title, collection, agent_id, metadata, created_at, updated_at
		FROM rag_sessions ORDER BY updated_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (r *PostgresSessions) Search(ctx context.Context, q string, limit int) ([]rag.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.title, s.collection, s.agent_id, s.metadata, s.created_at, s.updated_at
		FROM rag_sessions s
		WHERE s.title ILIKE '%' || $1 || '%'
		   OR EXISTS (SELECT 1 FROM rag_messages m WHERE m.session_id = s.id AND m.content ILIKE '%' || $1 || '%')
		ORDER BY s.updated_at DESC LIMIT $2
	`, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (r *PostgresSessions) UpdateTitle(ctx context.Context, id uuid.UUID, title string) error {
	_, err := r.pool.Exec(ctx, `UPDATE rag_sessions SET title = $1, updated_at = NOW() WHERE id = $2`, title, id)
	return err
}

func (r *PostgresSessions) UpdateMetadata(ctx context.Context, id uuid.UUID, meta rag.SessionMetadata) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `UPDATE rag_sessions SET metadata = $1, updated_at = NOW() WHERE id = $2`, raw, id)
	return err
}

func (r *PostgresSessions) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE rag_sessions SET updated_at = $1 WHERE id = $2`, at, id)
	return err
}

func (r *PostgresSessions) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM rag_sessions WHERE id = $1`, id)
	return err
}

func scanSession(row pgx.Row) (rag.Session, error) {
	var s rag.Session
	var metaJSON []byte
	if err := row.Scan(&s.ID, &s.Title, &s.Collection, &s.AgentID, &metaJSON, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return rag.Session{}, err
	}
	if len(metaJSON) > 0 {
		_ = json.Unmarshal(metaJSON, &s.Metadata)
	}
	return s, nil
}

func scanSessions(rows pgx.Rows) ([]rag.Session, error) {
	var out []rag.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

var _ rag.SessionRepository = (*PostgresSessions)(nil)

// PostgresMessages persists chat messages.
type PostgresMessages struct{ pool *pgxpool.Pool }

func NewPostgresMessages(pool *pgxpool.Pool) *PostgresMessages { return &PostgresMessages{pool: pool} }

func (r *PostgresMessages) Append(ctx context.Context, m rag.Message) error {
	sources, err := json.Marshal(m.Sources)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO rag_messages (id, session_id, role, content, sources, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, m.SessionID, m.Role, m.Content, sources, m.CreatedAt)
	return err
}

func (r *PostgresMessages) ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]rag.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id, role, content, sources, created_at
		FROM rag_messages WHERE session_id = $1 ORDER BY created_at ASC LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rag.Message
	for rows.Next() {
		var m rag.Message
		var sourcesJSON []byte
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &sourcesJSON, &m.CreatedAt); err != nil {
			return nil, err
		}
		if len(sourcesJSON) > 0 {
			_ = json.Unmarshal(sourcesJSON, &m.Sources)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *PostgresMessages) RecentUserContent(ctx context.Context, sessionID uuid.UUID, maxMessages int) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT content FROM rag_messages
		WHERE session_id = $1 AND role = 'user'
		ORDER BY created_at DESC LIMIT $2
	`, sessionID, maxMessages)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, err
		}
		out = append(out, content)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

var _ rag.MessageRepository = (*PostgresMessages)(nil)

// PostgresAgents persists agent personas.
type PostgresAgents struct{ pool *pgxpool.Pool }

func NewPostgresAgents(pool *pgxpool.Pool) *PostgresAgents { return &PostgresAgents{pool: pool} }

func (r *PostgresAgents) Create(ctx context.Context, a rag.Agent) error {
	collections, err := json.Marshal(a.Collections)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO rag_agents (id, name, system_prompt, collections, temperature, top_k, icon, use_multi_query, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, a.ID, a.Name, a.SystemPrompt, collections, a.Temperature, a.TopK, a.Icon, a.UseMultiQuery, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r *PostgresAgents) Get(ctx context.Context, id uuid.UUID) (rag.Agent, bool, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, system_prompt, collections, temperature, top_k, icon, use_multi_query, created_at, updated_at
		FROM rag_agents WHERE id = $1
	`, id)
	a, err := scanAgent(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return rag.Agent{}, false, nil
		}
		return rag.Agent{}, false, err
	}
	return a, true, nil
}

func (r *PostgresAgents) List(ctx context.Context) ([]rag.Agent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, system_prompt, collections, temperature, top_k, icon, use_multi_query, created_at, updated_at
		FROM rag_agents ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rag.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresAgents) Update(ctx context.Context, a rag.Agent) error {
	collections, err := json.Marshal(a.Collections)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		UPDATE rag_agents SET name=$1, system_prompt=$2, collections=$3, temperature=$4, top_k=$5, icon=$6, use_multi_query=$7, updated_at=NOW()
		WHERE id = $8
	`, a.Name, a.SystemPrompt, collections, a.Temperature, a.TopK, a.Icon, a.UseMultiQuery, a.ID)
	return err
}

func (r *PostgresAgents) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM rag_agents WHERE id = $1`, id)
	return err
}

func scanAgent(row pgx.Row) (rag.Agent, error) {
	var a rag.Agent
	var collectionsJSON []byte
	if err := row.Scan(&a.ID, &a.Name, &a.SystemPrompt, &collectionsJSON, &a.Temperature, &a.TopK, &a.Icon, &a.UseMultiQuery, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return rag.Agent{}, err
	}
	if len(collectionsJSON) > 0 {
		_ = json.Unmarshal(collectionsJSON, &a.Collections)
	}
	return a, nil
}

var _ rag.AgentRepository = (*PostgresAgents)(nil)

// PostgresFolders persists the folder tree.
type PostgresFolders struct{ pool *pgxpool.Pool }

func NewPostgresFolders(pool *pgxpool.Pool) *PostgresFolders { return &PostgresFolders{pool: pool} }

func (r *PostgresFolders) Create(ctx context.Context, f rag.Folder) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO rag_folders (id, collection, name, parent_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, f.ID, f.Collection, f.Name, f.ParentID, f.CreatedAt)
	return err
}

func (r *PostgresFolders) Get(ctx context.Context, id uuid.UUID) (rag.Folder, bool, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, collection, name, parent_id, created_at FROM rag_folders WHERE id = $1`, id)
	var f rag.Folder
	if err := row.Scan(&f.ID, &f.Collection, &f.Name, &f.ParentID, &f.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return rag.Folder{}, false, nil
		}
		return rag.Folder{}, false, err
	}
	return f, true, nil
}

func (r *PostgresFolders) ListByCollection(ctx context.Context, collection string) ([]rag.Folder, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, collection, name, parent_id, created_at FROM rag_folders WHERE collection = $1 ORDER BY created_at ASC`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rag.Folder
	for rows.Next() {
		var f rag.Folder
		if err := rows.Scan(&f.ID, &f.Collection, &f.Name, &f.ParentID, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *PostgresFolders) Move(ctx context.Context, id uuid.UUID, newParent *uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE rag_folders SET parent_id = $1 WHERE id = $2`, newParent, id)
	return err
}

func (r *PostgresFolders) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM rag_folders WHERE id = $1`, id)
	return err
}

var _ rag.FolderRepository = (*PostgresFolders)(nil)

// PostgresDocumentFolders persists the document→folder placement in
// rag_document_folders (document_id text primary key, folder_id uuid
// nullable). A missing row means the document sits at the collection root.
type PostgresDocumentFolders struct{ pool *pgxpool.Pool }

func NewPostgresDocumentFolders(pool *pgxpool.Pool) *PostgresDocumentFolders {
	return &PostgresDocumentFolders{pool: pool}
}

func (r *PostgresDocumentFolders) Assign(ctx context.Context, documentID string, folderID *uuid.UUID) error {
	if folderID == nil {
		_, err := r.pool.Exec(ctx, `DELETE FROM rag_document_folders WHERE document_id = $1`, documentID)
		return err
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO rag_document_folders (document_id, folder_id)
		VALUES ($1, $2)
		ON CONFLICT (document_id) DO UPDATE SET folder_id = EXCLUDED.folder_id
	`, documentID, *folderID)
	return err
}

func (r *PostgresDocumentFolders) FolderOf(ctx context.Context, documentID string) (*uuid.UUID, error) {
	row := r.pool.QueryRow(ctx, `SELECT folder_id FROM rag_document_folders WHERE document_id = $1`, documentID)
	var id uuid.UUID
	if err := row.Scan(&id); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &id, nil
}

func (r *PostgresDocumentFolders) RevertToRoot(ctx context.Context, folderIDs []uuid.UUID) error {
	if len(folderIDs) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `DELETE FROM rag_document_folders WHERE folder_id = ANY($1)`, folderIDs)
	return err
}

var _ rag.DocumentFolderRepository = (*PostgresDocumentFolders)(nil)

// PostgresFeedback upserts per-message feedback.
type PostgresFeedback struct{ pool *pgxpool.Pool }

func NewPostgresFeedback(pool *pgxpool.Pool) *PostgresFeedback { return &PostgresFeedback{pool: pool} }

func (r *PostgresFeedback) Upsert(ctx context.Context, f rag.Feedback) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO rag_feedback (message_id, value, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (message_id) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.created_at
	`, f.MessageID, f.Value, f.CreatedAt)
	return err
}

var _ rag.FeedbackRepository = (*PostgresFeedback)(nil)

// PostgresUsage is the append-only provider usage ledger.
type PostgresUsage struct{ pool *pgxpool.Pool }

func NewPostgresUsage(pool *pgxpool.Pool) *PostgresUsage { return &PostgresUsage{pool: pool} }

func (r *PostgresUsage) Append(ctx context.Context, u rag.UsageRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO rag_usage (timestamp, provider, model, call_type, prompt_tokens, completion_tokens, total_tokens, audio_seconds, estimated_cost_usd)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, u.Timestamp, u.Provider, u.Model, u.CallType, u.PromptTokens, u.CompletionTokens, u.TotalTokens, u.AudioSeconds, u.EstimatedCostUSD)
	return err
}

func (r *PostgresUsage) Aggregate(ctx context.Context, since time.Time) ([]rag.UsageRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT timestamp, provider, model, call_type, prompt_tokens, completion_tokens, total_tokens, audio_seconds, estimated_cost_usd
		FROM rag_usage WHERE timestamp >= $1 ORDER BY timestamp ASC
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rag.UsageRecord
	for rows.Next() {
		var u rag.UsageRecord
		if err := rows.Scan(&u.Timestamp, &u.Provider, &u.Model, &u.CallType, &u.PromptTokens, &u.CompletionTokens, &u.TotalTokens, &u.AudioSeconds, &u.EstimatedCostUSD); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

var _ rag.UsageRepository = (*PostgresUsage)(nil)
