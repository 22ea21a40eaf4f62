package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shaiso/Conveyor/internal/domain"
)

// HTTPType — имя типа встроенного HTTP-коннектора.
const HTTPType = "http"

// BuiltinTypes — типы коннекторов, которые сервис регистрирует при старте.
func BuiltinTypes() []string { return []string{HTTPType} }

const defaultHTTPTimeout = 30 * time.Second

// maxResponseBody — сколько байт ответа читается в payload, остальное отбрасывается.
const maxResponseBody = 1 << 20

// errorPreviewRunes — длина тела в Message для отказа.
const errorPreviewRunes = 200

// HTTPConnector — коннектор к удалённой стороне по HTTP(S).
//
// Базовый URL строится из адреса записи: https для протокола HTTPS,
// иначе http. Путь берётся из params.path команды.
//
// Операции (ключ маршрутизации → метод):
//   - DEFAULT — POST, тело = content команды
//   - GET, DELETE — без тела
//   - POST, PUT — тело = content команды
//
// Params команды:
//   - path (string): путь запроса. Default: "/"
//   - headers (map[string]any): HTTP-заголовки
//   - timeout_sec (number): таймаут запроса в секундах
//
// Payload результата:
//   - status_code (int), headers (map[string]string), body (JSON или строка)
type HTTPConnector struct {
	baseURL  string
	username string
	password string
	client   *http.Client
	timeout  time.Duration
	ops      Operations
}

// HTTPFactory возвращает фабрику HTTP-коннекторов с общим клиентом.
// timeout <= 0 — таймаут по умолчанию (30s).
func HTTPFactory(client *http.Client, timeout time.Duration) Factory {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return func(_ string, record *domain.Record) (Connector, error) {
		return NewHTTPConnector(record.Identity(), client, timeout), nil
	}
}

// NewHTTPConnector создаёт HTTP-коннектор для identity.
func NewHTTPConnector(identity domain.Identity, client *http.Client, timeout time.Duration) *HTTPConnector {
	scheme := "http"
	if identity.Protocol().Category == domain.ProtocolHTTPS {
		scheme = "https"
	}
	c := &HTTPConnector{
		baseURL:  scheme + "://" + identity.Address().Describe(),
		username: identity.Account().Username,
		password: identity.Account().Password,
		client:   client,
		timeout:  timeout,
	}
	c.ops = Operations{
		domain.DefaultRouteKey: c.method(http.MethodPost, true),
		"GET":                  c.method(http.MethodGet, false),
		"POST":                 c.method(http.MethodPost, true),
		"PUT":                  c.method(http.MethodPut, true),
		"DELETE":               c.method(http.MethodDelete, false),
	}
	return c
}

// Operation реализует Connector.
func (c *HTTPConnector) Operation(routeKey string) (Operation, bool) {
	return c.ops.Operation(routeKey)
}

// BaseURL возвращает базовый URL удалённой стороны.
func (c *HTTPConnector) BaseURL() string { return c.baseURL }

func (c *HTTPConnector) method(method string, withBody bool) Operation {
	return func(ctx context.Context, cmd domain.Command) (domain.Result, error) {
		return c.do(ctx, method, withBody, cmd)
	}
}

// do выполняет HTTP-запрос для команды.
func (c *HTTPConnector) do(ctx context.Context, method string, withBody bool, cmd domain.Command) (domain.Result, error) {
	params := cmd.Params()

	ctx, cancel := context.WithTimeout(ctx, getTimeout(params, c.timeout))
	defer cancel()

	path := getString(params, "path", "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var bodyReader io.Reader
	if withBody && cmd.Content() != "" {
		bodyReader = strings.NewReader(cmd.Content())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return domain.Result{}, fmt.Errorf("create request: %w", err)
	}
	setHeaders(req, params)
	if bodyReader != nil && req.Header.Get("Content-Type") == "" {
		if json.Valid([]byte(cmd.Content())) {
			req.Header.Set("Content-Type", "application/json")
		} else {
			req.Header.Set("Content-Type", "text/plain; charset=utf-8")
		}
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Result{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if err != nil {
		return domain.Result{}, fmt.Errorf("read response: %w", err)
	}
	truncated := len(respBody) > maxResponseBody
	if truncated {
		respBody = respBody[:maxResponseBody]
	}

	payload := buildPayload(resp, respBody)
	if truncated {
		payload["truncated"] = true
	}

	// HTTP >= 400 — отказ удалённой стороны, а не сбой отправки
	if resp.StatusCode >= 400 {
		return domain.Result{
			Category: domain.ResultFailed,
			Code:     resp.StatusCode,
			Message:  fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(string(respBody), errorPreviewRunes)),
			Payload:  payload,
		}, nil
	}

	return domain.Result{
		Category: domain.ResultSuccess,
		Code:     resp.StatusCode,
		Payload:  payload,
	}, nil
}

// buildPayload формирует payload из HTTP-ответа.
func buildPayload(resp *http.Response, body []byte) map[string]any {
	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	// Пробуем JSON, иначе строка
	var parsedBody any
	if err := json.Unmarshal(body, &parsedBody); err != nil {
		parsedBody = string(body)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headers,
		"body":        parsedBody,
	}
}

// getString извлекает строку из map с default значением.
func getString(m map[string]any, key, defaultVal string) string {
	if val, ok := m[key]; ok {
		if s, ok := val.(string); ok && s != "" {
			return s
		}
	}
	return defaultVal
}

// getTimeout извлекает таймаут из params.
func getTimeout(params map[string]any, fallback time.Duration) time.Duration {
	if val, ok := params["timeout_sec"]; ok {
		switch v := val.(type) {
		case float64:
			if v > 0 {
				return time.Duration(v * float64(time.Second))
			}
		case int:
			if v > 0 {
				return time.Duration(v) * time.Second
			}
		case int64:
			if v > 0 {
				return time.Duration(v) * time.Second
			}
		}
	}
	return fallback
}

// setHeaders устанавливает заголовки из params.
func setHeaders(req *http.Request, params map[string]any) {
	headers, ok := params["headers"]
	if !ok || headers == nil {
		return
	}

	switch h := headers.(type) {
	case map[string]any:
		for key, val := range h {
			if s, ok := val.(string); ok {
				req.Header.Set(key, s)
			}
		}
	case map[string]string:
		for key, val := range h {
			req.Header.Set(key, val)
		}
	}
}

// truncate оставляет не больше maxRunes символов, не разрезая UTF-8.
func truncate(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	return string([]rune(s)[:maxRunes]) + "..."
}
