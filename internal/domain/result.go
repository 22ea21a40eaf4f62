package domain

import "fmt"

// ResultCategory — итог одной попытки отправки команды.
type ResultCategory string

const (
	// ResultSuccess — удалённая сторона выполнила команду.
	ResultSuccess ResultCategory = "SUCCESS"

	// ResultFailed — удалённая сторона ответила отказом.
	ResultFailed ResultCategory = "FAILED"

	// ResultAbnormal — ответа нет или он некорректен (таймаут, обрыв связи).
	ResultAbnormal ResultCategory = "ABNORMAL"
)

// Result — результат одной попытки dispatch.
type Result struct {
	Category ResultCategory `json:"category"`
	Code     int            `json:"code"`
	Message  string         `json:"message,omitempty"`
	Payload  any            `json:"payload,omitempty"`
}

// Succeeded возвращает true для SUCCESS.
func (r Result) Succeeded() bool {
	return r.Category == ResultSuccess
}

// ErrMsg возвращает строку вида FAILED[500]:message.
func (r Result) ErrMsg() string {
	return fmt.Sprintf("%s[%d]:%s", r.Category, r.Code, r.Message)
}

// Abnormal создаёт ABNORMAL результат из ошибки.
func Abnormal(err error) Result {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Result{Category: ResultAbnormal, Message: msg}
}
