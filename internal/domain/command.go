package domain

import (
	"fmt"
	"maps"
	"strings"
)

// CommandCategory — категория команды.
type CommandCategory string

const (
	CommandOther        CommandCategory = "OTHER"
	CommandBuiltIn      CommandCategory = "BUILT_IN"
	CommandShellScript  CommandCategory = "SHELL_SCRIPT"
	CommandPythonScript CommandCategory = "PYTHON_SCRIPT"
	CommandSQL          CommandCategory = "SQL"
)

// ParseCommandCategory парсит строку в CommandCategory.
// Неизвестные значения превращаются в OTHER.
func ParseCommandCategory(s string) CommandCategory {
	switch CommandCategory(s) {
	case CommandBuiltIn, CommandShellScript, CommandPythonScript, CommandSQL:
		return CommandCategory(s)
	default:
		return CommandOther
	}
}

// Маркеры тега маршрутизации в option: "#[send message]".
const (
	optionStartTag = "#["
	optionEndTag   = "]"
)

// DefaultRouteKey — ключ операции, если option не содержит тега.
const DefaultRouteKey = "DEFAULT"

// previewLen — длина превью содержимого команды в логах.
const previewLen = 10

// Command — команда, адресованная удалённой стороне.
type Command struct {
	category CommandCategory
	content  string
	params   map[string]any
	option   string
	index    string

	hash     string
	id       string
	routeKey string
}

// CommandOption настраивает необязательные поля Command.
type CommandOption func(*Command)

// WithOption задаёт option (например, "#[send message]").
func WithOption(option string) CommandOption {
	return func(c *Command) { c.option = option }
}

// WithIndex задаёт порядковый номер команды (для логов).
func WithIndex(index string) CommandOption {
	return func(c *Command) { c.index = index }
}

// NewCommand создаёт Command. content обрезается по краям.
// params копируется (верхний уровень), nil заменяется пустой map.
func NewCommand(category CommandCategory, content string, params map[string]any, opts ...CommandOption) Command {
	if category == "" {
		category = CommandOther
	}
	params = maps.Clone(params)
	if params == nil {
		params = make(map[string]any)
	}
	c := Command{
		category: category,
		content:  strings.TrimSpace(content),
		params:   params,
		index:    "0",
	}
	for _, opt := range opts {
		opt(&c)
	}

	// fmt печатает map с отсортированными ключами — hash детерминирован
	c.hash = fmt.Sprintf("%s:%v", c.content, c.params)
	c.id = digest(c.hash)
	c.routeKey = routeKey(c.option)
	return c
}

func (c Command) Category() CommandCategory { return c.category }
func (c Command) Content() string           { return c.content }
func (c Command) Option() string            { return c.option }
func (c Command) Index() string             { return c.index }

// Params возвращает копию параметров команды.
func (c Command) Params() map[string]any { return maps.Clone(c.params) }

// Param возвращает параметр по ключу.
func (c Command) Param(key string) (any, bool) {
	v, ok := c.params[key]
	return v, ok
}

// Hash возвращает строку content:params, из которой получен ID.
func (c Command) Hash() string { return c.hash }

// ID возвращает SHA-256 от Hash.
func (c Command) ID() string { return c.id }

// RouteKey возвращает ключ операции коннектора.
func (c Command) RouteKey() string { return c.routeKey }

// Preview возвращает первые 10 символов содержимого.
func (c Command) Preview() string {
	runes := []rune(c.content)
	if len(runes) <= previewLen {
		return c.content
	}
	return string(runes[:previewLen])
}

// routeKey нормализует тег "#[send message]" в "SEND_MESSAGE".
func routeKey(option string) string {
	if !strings.HasPrefix(option, optionStartTag) || !strings.HasSuffix(option, optionEndTag) ||
		len(option) < len(optionStartTag)+len(optionEndTag) {
		return DefaultRouteKey
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(option, optionStartTag), optionEndTag)

	words := make([]string, 0, 4)
	for _, w := range strings.Split(inner, " ") {
		if w == "" {
			continue
		}
		words = append(words, strings.ToUpper(w))
	}
	if len(words) == 0 {
		return DefaultRouteKey
	}
	return strings.Join(words, "_")
}
