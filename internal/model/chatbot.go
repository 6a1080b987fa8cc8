package model

type Chatbot struct {
	ID             string   `json:"id"`
	CompanyID      string   `json:"company_id"`
	Name           string   `json:"name"`
	Provider       string   `json:"provider"`
	Model          string   `json:"model"`
	FallbackModel  string   `json:"fallback_model,omitempty"`
	SystemPrompt   string   `json:"system_prompt"`
	WelcomeMessage string   `json:"welcome_message"`
	Languages      []string `json:"languages"`
	DocumentIDs    []string `json:"document_ids"`
	TopK           int      `json:"top_k"`
	MinScore       float32  `json:"min_score"`
	Ctime          int64    `json:"ctime"`
	Mtime          int64    `json:"mtime"`
}

// SupportsLanguage reports whether lang is in the chatbot's configured set.
// An empty set means the chatbot answers in any language.
func (c *Chatbot) SupportsLanguage(lang string) bool {
	if len(c.Languages) == 0 {
		return true
	}
	for _, item := range c.Languages {
		if item == lang {
			return true
		}
	}
	return false
}
