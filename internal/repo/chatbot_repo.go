package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"
	"github.com/lib/pq"

	"github.com/docuchat-io/docuchat/internal/model"
	"github.com/docuchat-io/docuchat/internal/pkg/dbutil"
	"github.com/docuchat-io/docuchat/internal/pkg/errs"
)

type ChatbotRepo struct {
	db *sql.DB
}

func NewChatbotRepo(db *sql.DB) *ChatbotRepo {
	return &ChatbotRepo{db: db}
}

func (r *ChatbotRepo) Create(ctx context.Context, bot *model.Chatbot) error {
	languages, err := json.Marshal(bot.Languages)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"id":              bot.ID,
		"company_id":      bot.CompanyID,
		"name":            bot.Name,
		"provider":        bot.Provider,
		"model":           bot.Model,
		"fallback_model":  bot.FallbackModel,
		"system_prompt":   bot.SystemPrompt,
		"welcome_message": bot.WelcomeMessage,
		"languages":       languages,
		"top_k":           bot.TopK,
		"min_score":       bot.MinScore,
		"ctime":           bot.Ctime,
		"mtime":           bot.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("chatbots", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ChatbotRepo) Update(ctx context.Context, bot *model.Chatbot) error {
	languages, err := json.Marshal(bot.Languages)
	if err != nil {
		return err
	}
	where := map[string]interface{}{"id": bot.ID, "company_id": bot.CompanyID}
	update := map[string]interface{}{
		"name":            bot.Name,
		"provider":        bot.Provider,
		"model":           bot.Model,
		"fallback_model":  bot.FallbackModel,
		"system_prompt":   bot.SystemPrompt,
		"welcome_message": bot.WelcomeMessage,
		"languages":       languages,
		"top_k":           bot.TopK,
		"min_score":       bot.MinScore,
		"mtime":           bot.Mtime,
	}
	sqlStr, args, err := builder.BuildUpdate("chatbots", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *ChatbotRepo) Get(ctx context.Context, id string) (*model.Chatbot, error) {
	const query = `
		SELECT id, company_id, name, provider, model, fallback_model,
		       system_prompt, welcome_message, languages, top_k, min_score, ctime, mtime
		FROM chatbots
		WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, id)
	bot, err := scanChatbot(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	docIDs, err := r.listDocumentIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	bot.DocumentIDs = docIDs
	return bot, nil
}

func (r *ChatbotRepo) ListByCompany(ctx context.Context, companyID string) ([]*model.Chatbot, error) {
	const query = `
		SELECT id, company_id, name, provider, model, fallback_model,
		       system_prompt, welcome_message, languages, top_k, min_score, ctime, mtime
		FROM chatbots
		WHERE company_id = $1
		ORDER BY ctime DESC
	`
	rows, err := r.db.QueryContext(ctx, query, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var bots []*model.Chatbot
	for rows.Next() {
		bot, err := scanChatbot(rows)
		if err != nil {
			return nil, err
		}
		bots = append(bots, bot)
	}
	return bots, rows.Err()
}

func (r *ChatbotRepo) Delete(ctx context.Context, companyID, id string) error {
	const query = `DELETE FROM chatbots WHERE id = $1 AND company_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, companyID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// SetDocuments replaces the chatbot's authorized document set. Documents from
// another company are rejected wholesale, not silently filtered.
func (r *ChatbotRepo) SetDocuments(ctx context.Context, companyID, chatbotID string, documentIDs []string) error {
	if len(documentIDs) > 0 {
		const countQuery = `SELECT COUNT(*) FROM documents WHERE id = ANY($1) AND company_id = $2`
		var count int
		if err := r.db.QueryRowContext(ctx, countQuery, pq.Array(documentIDs), companyID).Scan(&count); err != nil {
			return err
		}
		if count != len(documentIDs) {
			return errs.ErrScopeViolation
		}
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM chatbot_documents WHERE chatbot_id = $1`, chatbotID); err != nil {
		return err
	}
	for _, docID := range documentIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chatbot_documents (chatbot_id, document_id) VALUES ($1, $2)`, chatbotID, docID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *ChatbotRepo) listDocumentIDs(ctx context.Context, chatbotID string) ([]string, error) {
	const query = `SELECT document_id FROM chatbot_documents WHERE chatbot_id = $1 ORDER BY document_id`
	rows, err := r.db.QueryContext(ctx, query, chatbotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanChatbot(row rowScanner) (*model.Chatbot, error) {
	var bot model.Chatbot
	var languages []byte
	if err := row.Scan(
		&bot.ID, &bot.CompanyID, &bot.Name, &bot.Provider, &bot.Model, &bot.FallbackModel,
		&bot.SystemPrompt, &bot.WelcomeMessage, &languages, &bot.TopK, &bot.MinScore,
		&bot.Ctime, &bot.Mtime,
	); err != nil {
		return nil, err
	}
	if len(languages) > 0 {
		if err := json.Unmarshal(languages, &bot.Languages); err != nil {
			return nil, err
		}
	}
	return &bot, nil
}
