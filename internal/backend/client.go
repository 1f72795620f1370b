// Package backend — клиент REST-бэкенда сайта: списки сущностей и патч координат проекта.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/annel0/worldmap/internal/entity"
	"github.com/annel0/worldmap/internal/logging"
	"github.com/annel0/worldmap/internal/vec"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

// maxBodyBytes ограничивает размер ответа бэкенда
const maxBodyBytes = 16 << 20

// Source поставщик сущностей и приёмник патчей координат
type Source interface {
	ListPins(ctx context.Context) ([]entity.Entity, error)
	ListProjects(ctx context.Context) ([]entity.Entity, error)
	ListPlayers(ctx context.Context) ([]entity.Entity, error)
	PatchProjectCoordinates(ctx context.Context, id string, pos vec.Vec3) (entity.Entity, error)
}

// StatusError ответ бэкенда с кодом вне 2xx
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Config настройки клиента
type Config struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// Client ходит в REST-бэкенд. Транспорт инструментирован OpenTelemetry.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        *logging.Logger
}

// NewClient создаёт клиент
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		log: logging.GetBackendLogger(),
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		requestDuration.WithLabelValues(method, "error").Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	requestDuration.WithLabelValues(method, statusClass(resp.StatusCode)).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: truncate(string(data), 256)}
	}
	c.log.Debug("%s %s -> %d (%s)", method, path, resp.StatusCode, time.Since(start))
	return data, nil
}

func (c *Client) list(ctx context.Context, kind entity.Kind, path string) ([]entity.Entity, error) {
	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return decodeList(kind, data)
}

// ListPins GET /pins
func (c *Client) ListPins(ctx context.Context) ([]entity.Entity, error) {
	return c.list(ctx, entity.KindPin, "/pins")
}

// ListProjects GET /projects
func (c *Client) ListProjects(ctx context.Context) ([]entity.Entity, error) {
	return c.list(ctx, entity.KindProject, "/projects")
}

// ListPlayers GET /players
func (c *Client) ListPlayers(ctx context.Context) ([]entity.Entity, error) {
	return c.list(ctx, entity.KindPlayer, "/players")
}

// PatchProjectCoordinates PATCH /projects/{id} с телом {coordinates: [x, y, z]}.
// Любой код вне 2xx даёт *StatusError. Ответ 2xx всегда успех: если тело пустое
// или не разбирается целиком, возвращается проект только с id и координатами.
func (c *Client) PatchProjectCoordinates(ctx context.Context, id string, pos vec.Vec3) (entity.Entity, error) {
	data, err := c.do(ctx, http.MethodPatch, "/projects/"+url.PathEscape(id), patchBody{Coordinates: pos.Array()})
	if err != nil {
		patchResults.WithLabelValues("failed").Inc()
		return entity.Entity{}, err
	}
	updated, err := decodePatched(id, pos, data)
	if err != nil {
		patchResults.WithLabelValues("partial").Inc()
		c.log.Warn("PATCH /projects/%s: ответ не разобран, подтверждаем %v: %v", id, updated.Position, err)
		return updated, nil
	}
	patchResults.WithLabelValues("ok").Inc()
	return updated, nil
}

// Snapshot все три списка сущностей
type Snapshot struct {
	Pins     []entity.Entity
	Projects []entity.Entity
	Players  []entity.Entity
}

// FetchAll загружает списки параллельно
func FetchAll(ctx context.Context, src Source) (Snapshot, error) {
	var s Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		s.Pins, err = src.ListPins(gctx)
		return err
	})
	g.Go(func() (err error) {
		s.Projects, err = src.ListProjects(gctx)
		return err
	})
	g.Go(func() (err error) {
		s.Players, err = src.ListPlayers(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
