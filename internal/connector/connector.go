package connector

import (
	"context"
	"sort"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Operation — именованная операция коннектора.
//
// Ошибка означает сбой отправки (ErrDispatch у вызывающего).
// Отказ удалённой стороны — это Result с категорией FAILED и nil error.
type Operation func(ctx context.Context, cmd domain.Command) (domain.Result, error)

// Connector — посредник между движком и одной удалённой стороной.
//
// Операции ищутся по ключу маршрутизации команды (domain.Command.RouteKey).
// Каждый коннектор обязан иметь операцию domain.DefaultRouteKey.
//
// Коннектор не обязан быть потокобезопасным: Registry гарантирует
// не более одного dispatch одновременно на экземпляр.
type Connector interface {
	Operation(routeKey string) (Operation, bool)
}

// Factory создаёт коннектор для записи. key — ключ экземпляра в реестре.
type Factory func(key string, record *domain.Record) (Connector, error)

// Operations — готовая реализация Connector на основе map.
type Operations map[string]Operation

// Operation возвращает операцию по ключу маршрутизации.
func (o Operations) Operation(routeKey string) (Operation, bool) {
	op, ok := o[routeKey]
	return op, ok
}

// RouteKeys возвращает отсортированный список ключей.
func (o Operations) RouteKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
