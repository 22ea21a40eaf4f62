package domain

// Record — один запрос: кому (Identity) и что (Command).
//
// ID получается из описаний identity и command, результат в него
// не входит. Две записи с одинаковыми описаниями получают один ID —
// это ключ повторного использования коннектора.
type Record struct {
	identity Identity
	command  Command
	id       string
}

// NewRecord создаёт Record и вычисляет его ID.
func NewRecord(identity Identity, command Command) *Record {
	return &Record{
		identity: identity,
		command:  command,
		id:       digest(identity.Hash() + command.Hash()),
	}
}

func (r *Record) Identity() Identity { return r.identity }
func (r *Record) Command() Command   { return r.command }

// ID возвращает идентификатор записи.
func (r *Record) ID() string { return r.id }
