package repo

import (
	"fmt"

	"github.com/radieske/number-draw-platform/internal/domain"
)

// ownedBy barra o replay de uma chave que pertence a outro usuário.
func ownedBy(what, key, owner, caller string) error {
	if owner != caller {
		return fmt.Errorf("%w: %s %s belongs to another user", domain.ErrAlreadyProcessed, what, key)
	}
	return nil
}
