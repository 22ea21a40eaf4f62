package queue

import (
	"fmt"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/flow"
)

// Router выбирает раздел, в который возвращается незавершённый flow.
type Router interface {
	Route(f *flow.TaskFlow) (domain.WorkKey, error)
}

// RouterFunc — адаптер функции к Router.
type RouterFunc func(f *flow.TaskFlow) (domain.WorkKey, error)

func (fn RouterFunc) Route(f *flow.TaskFlow) (domain.WorkKey, error) { return fn(f) }

// OriginRouter возвращает flow в раздел, из которого он был взят.
type OriginRouter struct{}

func (OriginRouter) Route(f *flow.TaskFlow) (domain.WorkKey, error) {
	key, ok := f.Origin()
	if !ok {
		return domain.WorkKey{}, fmt.Errorf("%w: flow %s has no origin", ErrNoRoute, f.ID())
	}
	return key, nil
}

// PhaseRouter направляет flow по статусу: HANDLING → HANDLE,
// EXECUTING → EXECUTE. Роль берётся из раздела-источника, иначе DefaultRole.
type PhaseRouter struct {
	DefaultRole domain.Role
}

func (r PhaseRouter) Route(f *flow.TaskFlow) (domain.WorkKey, error) {
	role := r.DefaultRole
	if role == "" {
		role = domain.RoleFollower
	}
	if origin, ok := f.Origin(); ok {
		role = origin.Role
	}

	switch f.Status() {
	case domain.FlowStatusHandling:
		return domain.NewWorkKey(role, domain.PhaseHandle), nil
	case domain.FlowStatusExecuting:
		return domain.NewWorkKey(role, domain.PhaseExecute), nil
	default:
		return domain.WorkKey{}, fmt.Errorf("%w: %s", flow.ErrFlowFinished, f.Status())
	}
}
