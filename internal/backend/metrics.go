package backend

import "github.com/prometheus/client_golang/prometheus"

var (
	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "worldmap",
		Subsystem: "backend",
		Name:      "request_duration_seconds",
		Help:      "Длительность запросов к REST-бэкенду.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "status"})

	patchResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "worldmap",
		Subsystem: "backend",
		Name:      "patches_total",
		Help:      "Патчи координат проектов по результату.",
	}, []string{"result"})

	listCache = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "worldmap",
		Subsystem: "backend",
		Name:      "list_cache_total",
		Help:      "Обращения к кешу списков сущностей.",
	}, []string{"list", "result"})
)

// RegisterMetrics регистрирует метрики клиента
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{requestDuration, patchResults, listCache} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
