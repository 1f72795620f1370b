package compositor

import "github.com/prometheus/client_golang/prometheus"

var (
	patchOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "worldmap",
		Subsystem: "compositor",
		Name:      "patch_outcomes_total",
		Help:      "Итоги переносов маркеров: confirmed, rolled_back, ignored.",
	}, []string{"outcome"})

	renderedMarkers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "worldmap",
		Subsystem: "compositor",
		Name:      "rendered_markers",
		Help:      "Число маркеров в последнем наборе отрисовки.",
	})

	skippedEntities = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "worldmap",
		Subsystem: "compositor",
		Name:      "skipped_entities_total",
		Help:      "Сущности, пропущенные при отрисовке из-за некорректных данных.",
	})
)

// RegisterMetrics регистрирует метрики компоновщика
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{patchOutcomes, renderedMarkers, skippedEntities} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
