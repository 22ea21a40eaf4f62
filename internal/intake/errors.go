package intake

import (
	"errors"

	"github.com/shaiso/Conveyor/internal/flow"
)

// Ошибки intake.
var (
	// ErrInvalidRequest — заявка не прошла проверку.
	ErrInvalidRequest = errors.New("invalid submit request")

	// ErrUnknownSpec — в каталоге нет flow с таким именем.
	ErrUnknownSpec = flow.ErrUnknownSpec
)
