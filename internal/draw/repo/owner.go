package repo

import (
	"fmt"

	"github.com/radieske/number-draw-platform/internal/domain"
)

// sameBet confere se o replay de um id de aposta vem do mesmo usuário e da mesma sessão.
func sameBet(existing, b domain.Bet) error {
	if existing.UserID != b.UserID || existing.SessionID != b.SessionID {
		return fmt.Errorf("%w: bet %s belongs to another user or session", domain.ErrAlreadyProcessed, b.ID)
	}
	return nil
}
