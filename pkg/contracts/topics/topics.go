package topics

const (
	// Apostas
	BetPlaced = "bet_placed"

	// Sorteios
	DrawSettled = "draw_settled"

	// DLQs
	DrawNotificationsDLQ = "draw_notifications_dlq"
)
