package tiles

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/annel0/worldmap/internal/cache"
	"github.com/annel0/worldmap/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
)

var tileRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "worldmap",
	Subsystem: "tiles",
	Name:      "requests_total",
	Help:      "Запросы тайлов по результату (hit, fetched, blank).",
}, []string{"result"})

// RegisterMetrics регистрирует метрики пакета в указанном регистре
func RegisterMetrics(reg prometheus.Registerer) error {
	return reg.Register(tileRequests)
}

// maxTileBytes ограничивает размер одного тайла
const maxTileBytes = 4 << 20

// Fetcher загружает изображения тайлов через кеш.
// Любая ошибка превращается в пустой тайл (nil), карта при этом не ломается.
type Fetcher struct {
	client *http.Client
	cache  cache.Repo
	ttl    time.Duration
	log    *logging.Logger
}

// NewFetcher создаёт загрузчик. cache может быть nil.
func NewFetcher(client *http.Client, c cache.Repo, ttl time.Duration) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Fetcher{
		client: client,
		cache:  c,
		ttl:    ttl,
		log:    logging.GetTilesLogger(),
	}
}

func cacheKey(url string) string {
	return "tile:" + url
}

// Fetch возвращает байты тайла или nil, если тайл недоступен
func (f *Fetcher) Fetch(ctx context.Context, url string) []byte {
	if f.cache != nil {
		if data, err := f.cache.Get(ctx, cacheKey(url)); err == nil {
			tileRequests.WithLabelValues("hit").Inc()
			logging.LogTileRequest(url, true)
			return data
		}
	}

	data, err := f.download(ctx, url)
	if err != nil {
		tileRequests.WithLabelValues("blank").Inc()
		f.log.Debug("tile %s rendered blank: %v", url, err)
		return nil
	}
	tileRequests.WithLabelValues("fetched").Inc()
	logging.LogTileRequest(url, false)

	if f.cache != nil {
		if err := f.cache.Set(ctx, cacheKey(url), data, f.ttl); err != nil {
			f.log.Warn("tile %s not cached: %v", url, err)
		}
	}
	return data
}

func (f *Fetcher) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTileBytes))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty tile body")
	}
	return data, nil
}
