package ws

// ClientMsg é o que o cliente envia: subscribe | unsubscribe | ping.
// SessionID é obrigatório em subscribe/unsubscribe.
type ClientMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}
