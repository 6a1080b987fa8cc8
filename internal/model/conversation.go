package model

// ConversationTurn is one user/bot exchange in the append-only chat log.
type ConversationTurn struct {
	ID          string `json:"id"`
	SessionID   string `json:"session_id"`
	ChatbotID   string `json:"chatbot_id"`
	CompanyID   string `json:"company_id"`
	UserMessage string `json:"user_message"`
	BotResponse string `json:"bot_response"`
	Language    string `json:"language"`
	UsedContext bool   `json:"used_context"`
	ModelUsed   string `json:"model_used"`
	LatencyMs   int64  `json:"latency_ms"`
	Ctime       int64  `json:"ctime"`
}

type ChatbotStats struct {
	ChatbotID    string  `json:"chatbot_id"`
	Turns        int64   `json:"turns"`
	Sessions     int64   `json:"sessions"`
	ContextRate  float64 `json:"context_rate"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}
