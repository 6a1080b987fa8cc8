package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/docuchat-io/docuchat/internal/model"
	"github.com/docuchat-io/docuchat/internal/pkg/dbutil"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// Append writes one finished turn. The log is append-only; there is no update
// path on purpose.
func (r *ConversationRepo) Append(ctx context.Context, turn *model.ConversationTurn) error {
	data := map[string]interface{}{
		"id":           turn.ID,
		"session_id":   turn.SessionID,
		"chatbot_id":   turn.ChatbotID,
		"company_id":   turn.CompanyID,
		"user_message": turn.UserMessage,
		"bot_response": turn.BotResponse,
		"language":     turn.Language,
		"used_context": turn.UsedContext,
		"model_used":   turn.ModelUsed,
		"latency_ms":   turn.LatencyMs,
		"ctime":        turn.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("conversation_turns", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// ListSession returns the most recent turns of a session, oldest first.
func (r *ConversationRepo) ListSession(ctx context.Context, chatbotID, sessionID string, limit int) ([]*model.ConversationTurn, error) {
	const query = `
		SELECT id, session_id, chatbot_id, company_id, user_message, bot_response,
		       language, used_context, model_used, latency_ms, ctime
		FROM (
			SELECT * FROM conversation_turns
			WHERE chatbot_id = $1 AND session_id = $2
			ORDER BY ctime DESC
			LIMIT $3
		) recent
		ORDER BY ctime ASC
	`
	rows, err := r.db.QueryContext(ctx, query, chatbotID, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var turns []*model.ConversationTurn
	for rows.Next() {
		var turn model.ConversationTurn
		if err := rows.Scan(
			&turn.ID, &turn.SessionID, &turn.ChatbotID, &turn.CompanyID,
			&turn.UserMessage, &turn.BotResponse, &turn.Language,
			&turn.UsedContext, &turn.ModelUsed, &turn.LatencyMs, &turn.Ctime,
		); err != nil {
			return nil, err
		}
		turns = append(turns, &turn)
	}
	return turns, rows.Err()
}

func (r *ConversationRepo) Stats(ctx context.Context, companyID, chatbotID string) (*model.ChatbotStats, error) {
	const query = `
		SELECT COUNT(*),
		       COUNT(DISTINCT session_id),
		       COALESCE(AVG(CASE WHEN used_context THEN 1.0 ELSE 0.0 END), 0),
		       COALESCE(AVG(latency_ms), 0)
		FROM conversation_turns
		WHERE company_id = $1 AND chatbot_id = $2
	`
	row := r.db.QueryRowContext(ctx, query, companyID, chatbotID)
	stats := model.ChatbotStats{ChatbotID: chatbotID}
	if err := row.Scan(&stats.Turns, &stats.Sessions, &stats.ContextRate, &stats.AvgLatencyMs); err != nil {
		if err == sql.ErrNoRows {
			return &stats, nil
		}
		return nil, err
	}
	return &stats, nil
}

func (r *ConversationRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	const query = `DELETE FROM conversation_turns WHERE ctime < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
