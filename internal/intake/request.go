package intake

import (
	"fmt"
	"strings"

	"github.com/shaiso/Conveyor/internal/domain"
)

// IdentityRequest описывает удалённую сторону.
type IdentityRequest struct {
	Username        string `json:"username" toml:"username"`
	Password        string `json:"password,omitempty" toml:"password"`
	Host            string `json:"host" toml:"host"`
	Port            string `json:"port" toml:"port"`
	Terminal        string `json:"terminal,omitempty" toml:"terminal"`
	TerminalVersion string `json:"terminal_version,omitempty" toml:"terminal_version"`
	Protocol        string `json:"protocol,omitempty" toml:"protocol"`
	ProtocolName    string `json:"protocol_name,omitempty" toml:"protocol_name"`
	ProtocolVersion string `json:"protocol_version,omitempty" toml:"protocol_version"`
}

// CommandRequest описывает команду.
type CommandRequest struct {
	Category string         `json:"category,omitempty" toml:"category"`
	Content  string         `json:"content" toml:"content"`
	Option   string         `json:"option,omitempty" toml:"option"`
	Index    string         `json:"index,omitempty" toml:"index"`
	Params   map[string]any `json:"params,omitempty" toml:"params"`
}

// SubmitRequest — заявка на запуск flow.
type SubmitRequest struct {
	// Flow — имя Spec в каталоге.
	Flow string `json:"flow" toml:"flow"`

	// WorkKey — раздел очередей ("Follower:HANDLE"). Пусто — раздел по умолчанию.
	WorkKey string `json:"work_key,omitempty" toml:"work_key"`

	Identity IdentityRequest `json:"identity" toml:"identity"`
	Command  CommandRequest  `json:"command" toml:"command"`

	// Source — откуда пришла заявка (api, amqp, schedule). Для метрик и логов.
	Source string `json:"-" toml:"-"`
}

// Validate проверяет обязательные поля.
func (r *SubmitRequest) Validate() error {
	if strings.TrimSpace(r.Flow) == "" {
		return fmt.Errorf("%w: flow is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Identity.Host) == "" {
		return fmt.Errorf("%w: identity.host is required", ErrInvalidRequest)
	}
	if r.WorkKey != "" {
		if _, err := domain.ParseWorkKey(r.WorkKey); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
	}
	return nil
}

// Record строит запись из заявки.
func (r *SubmitRequest) Record() *domain.Record {
	identity := domain.NewIdentity(
		domain.Account{Username: r.Identity.Username, Password: r.Identity.Password},
		domain.Address{Host: r.Identity.Host, Port: r.Identity.Port},
		domain.Terminal{Name: r.Identity.Terminal, Version: r.Identity.TerminalVersion},
		domain.Protocol{
			Category: domain.ParseProtocolCategory(strings.ToUpper(r.Identity.Protocol)),
			Name:     r.Identity.ProtocolName,
			Version:  r.Identity.ProtocolVersion,
		},
	)

	opts := []domain.CommandOption{domain.WithOption(r.Command.Option)}
	if r.Command.Index != "" {
		opts = append(opts, domain.WithIndex(r.Command.Index))
	}
	command := domain.NewCommand(
		domain.ParseCommandCategory(strings.ToUpper(r.Command.Category)),
		r.Command.Content,
		r.Command.Params,
		opts...,
	)
	return domain.NewRecord(identity, command)
}
