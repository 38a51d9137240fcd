package restore

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// LocationDone — ответ Location, когда restore готов.
const LocationDone = "done"

const (
	defaultNamespace = "http://tempuri.org/"
	defaultTimeout   = 30 * time.Second
	refusedResponse  = "fail"
)

// Client — клиент restore-сервиса.
type Client struct {
	url       string
	namespace string
	user      string
	password  string
	beams     int
	bits      int
	fileType  string

	http   *retryablehttp.Client
	logger *slog.Logger
}

// Config — конфигурация Client.
type Config struct {
	URL       string
	Namespace string // SOAP namespace операций (default: http://tempuri.org/)
	User      string
	Password  string

	// Параметры restore.
	Beams    int
	Bits     int
	FileType string

	Timeout  time.Duration // таймаут одного HTTP-запроса (default: 30s)
	RetryMax int           // HTTP-повторы внутри одного вызова (default: 3)

	Logger *slog.Logger
}

// New создаёт новый Client.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	hc := retryablehttp.NewClient()
	hc.RetryMax = 3
	if cfg.RetryMax > 0 {
		hc.RetryMax = cfg.RetryMax
	}
	hc.RetryWaitMin = 500 * time.Millisecond
	hc.RetryWaitMax = 5 * time.Second
	hc.HTTPClient.Timeout = cfg.Timeout
	if hc.HTTPClient.Timeout <= 0 {
		hc.HTTPClient.Timeout = defaultTimeout
	}
	hc.Logger = logger.With("component", "restore-http")
	// После исчерпания повторов отдаём последний ответ: в нём может быть soap:Fault.
	hc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	ns := cfg.Namespace
	if ns == "" {
		ns = defaultNamespace
	}

	return &Client{
		url:       cfg.URL,
		namespace: ns,
		user:      cfg.User,
		password:  cfg.Password,
		beams:     cfg.Beams,
		bits:      cfg.Bits,
		fileType:  cfg.FileType,
		http:      hc,
		logger:    logger,
	}
}

// RequestRestore запрашивает новый restore и возвращает его guid.
// Ответ "fail" возвращается как ErrRefused.
func (c *Client) RequestRestore(ctx context.Context) (string, error) {
	result, err := c.call(ctx, "Restore", []param{
		{"username", c.user},
		{"pw", c.password},
		{"number", fmt.Sprint(c.beams)},
		{"bits", fmt.Sprint(c.bits)},
		{"fileType", c.fileType},
	})
	if err != nil {
		return "", err
	}
	if result == "" || result == refusedResponse {
		return "", ErrRefused
	}
	return result, nil
}

// QueryLocation возвращает состояние restore. LocationDone означает готовность.
func (c *Client) QueryLocation(ctx context.Context, guid string) (string, error) {
	return c.call(ctx, "Location", []param{
		{"username", c.user},
		{"pw", c.password},
		{"guid", guid},
	})
}

type param struct {
	name  string
	value string
}

// call выполняет SOAP-операцию и возвращает текст элемента <op>Result.
func (c *Client) call(ctx context.Context, op string, params []param) (string, error) {
	body, err := c.envelope(op, params)
	if err != nil {
		return "", err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return "", fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", `"`+c.namespace+op+`"`)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%s: read response: %w", op, err)
	}

	result, err := parseResult(data, op+"Result")
	if err != nil {
		return "", fmt.Errorf("%s (HTTP %d): %w", op, resp.StatusCode, err)
	}

	c.logger.Debug("restore service call", "op", op, "result", result)
	return result, nil
}

// envelope собирает SOAP 1.1 envelope.
func (c *Client) envelope(op string, params []param) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString(`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>`)
	fmt.Fprintf(&buf, `<%s xmlns="%s">`, op, c.namespace)
	for _, p := range params {
		fmt.Fprintf(&buf, "<%s>", p.name)
		if err := xml.EscapeText(&buf, []byte(p.value)); err != nil {
			return nil, err
		}
		fmt.Fprintf(&buf, "</%s>", p.name)
	}
	fmt.Fprintf(&buf, "</%s></soap:Body></soap:Envelope>", op)
	return buf.Bytes(), nil
}

// parseResult ищет элемент resultName (без учёта namespace) или soap:Fault.
func parseResult(data []byte, resultName string) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return "", ErrMalformedResponse
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case resultName:
			var text string
			if err := dec.DecodeElement(&text, &start); err != nil {
				return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
			}
			return strings.TrimSpace(text), nil
		case "Fault":
			var fault struct {
				Code   string `xml:"faultcode"`
				String string `xml:"faultstring"`
			}
			if err := dec.DecodeElement(&fault, &start); err != nil {
				return "", fmt.Errorf("%w: %v", ErrFault, err)
			}
			return "", fmt.Errorf("%w: %s: %s", ErrFault, fault.Code, fault.String)
		}
	}
}
