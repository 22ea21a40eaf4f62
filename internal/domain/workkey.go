package domain

import (
	"fmt"
	"strings"
)

// Role — роль группы воркеров.
type Role string

const (
	RoleLeader   Role = "Leader"
	RoleFollower Role = "Follower"
)

// Phase — фаза, которую обслуживает раздел очередей.
type Phase string

const (
	PhaseInit    Phase = "INIT"
	PhaseHandle  Phase = "HANDLE"
	PhaseExecute Phase = "EXECUTE"
	PhaseSummary Phase = "SUMMARY"
)

// WorkKey — метка раздела очередей (role, phase).
//
// Это только метка маршрутизации: состояние flow хранится в самом flow.
type WorkKey struct {
	Role  Role  `json:"role"`
	Phase Phase `json:"phase"`
}

// NewWorkKey создаёт WorkKey.
func NewWorkKey(role Role, phase Phase) WorkKey {
	return WorkKey{Role: role, Phase: phase}
}

// Name возвращает имя в формате Role:PHASE (например, "Follower:HANDLE").
func (k WorkKey) Name() string {
	return string(k.Role) + ":" + string(k.Phase)
}

// String реализует fmt.Stringer.
func (k WorkKey) String() string {
	return k.Name()
}

// ParseWorkKey парсит строку вида "Follower:HANDLE" (регистр не важен).
func ParseWorkKey(s string) (WorkKey, error) {
	rolePart, phasePart, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return WorkKey{}, fmt.Errorf("invalid work key %q: expected Role:PHASE", s)
	}

	var role Role
	switch strings.ToLower(rolePart) {
	case "leader":
		role = RoleLeader
	case "follower":
		role = RoleFollower
	default:
		return WorkKey{}, fmt.Errorf("invalid work key %q: unknown role %q", s, rolePart)
	}

	var phase Phase
	switch Phase(strings.ToUpper(phasePart)) {
	case PhaseInit:
		phase = PhaseInit
	case PhaseHandle:
		phase = PhaseHandle
	case PhaseExecute:
		phase = PhaseExecute
	case PhaseSummary:
		phase = PhaseSummary
	default:
		return WorkKey{}, fmt.Errorf("invalid work key %q: unknown phase %q", s, phasePart)
	}

	return WorkKey{Role: role, Phase: phase}, nil
}
