// tilewarm прогревает кеш тайлов для прямоугольника карты на нескольких уровнях
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/annel0/worldmap/internal/cache"
	"github.com/annel0/worldmap/internal/config"
	"github.com/annel0/worldmap/internal/dimension"
	"github.com/annel0/worldmap/internal/tiles"
)

func main() {
	var (
		configPath = flag.String("config", "", "путь к YAML конфигурации сервера")
		layers     = flag.String("layers", "overworld", "слои через запятую (overworld, nether, the_end)")
		zooms      = flag.String("zooms", "0,1,2", "уровни масштаба через запятую")
		minX       = flag.Int("min-x", -4, "левый тайл на нативном уровне")
		minY       = flag.Int("min-y", -4, "верхний тайл на нативном уровне")
		maxX       = flag.Int("max-x", 4, "правый тайл на нативном уровне")
		maxY       = flag.Int("max-y", 4, "нижний тайл на нативном уровне")
		parallel   = flag.Int("parallel", 0, "параллельных загрузок (по умолчанию из конфигурации)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	levels, err := parseZooms(*zooms)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	repo, err := cache.New(cfg.Cache)
	if err != nil {
		log.Fatalf("❌ Кеш недоступен: %v", err)
	}
	defer repo.Close()

	if *parallel <= 0 {
		*parallel = cfg.Tiles.Parallel
	}
	scheme := tiles.NewScheme(cfg.Tiles.BaseURL, cfg.Tiles.Bounds)
	fetcher := tiles.NewFetcher(&http.Client{Timeout: 30 * time.Second}, repo, cfg.Tiles.CacheTTL)
	loader := tiles.NewLoader(scheme, fetcher, *parallel, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var total tiles.LoadStats
	for _, layer := range strings.Split(*layers, ",") {
		d := dimension.Parse(layer)
		if !d.Known() {
			fmt.Printf("⚠️  Пропуск неизвестного слоя %q\n", layer)
			continue
		}
		for _, zoom := range levels {
			b := cfg.Tiles.Bounds
			coords := tiles.Range(zoom, atZoom(*minX, zoom, b), atZoom(*minY, zoom, b),
				atZoom(*maxX, zoom, b), atZoom(*maxY, zoom, b))
			start := time.Now()
			stats := loader.Show(ctx, d.String(), coords)
			fmt.Printf("🧱 %s z=%d: %d тайлов, загружено %d, пустых %d (%s)\n",
				d, zoom, stats.Requested, stats.Painted, stats.Blank, time.Since(start).Round(time.Millisecond))
			total.Requested += stats.Requested
			total.Painted += stats.Painted
			total.Blank += stats.Blank
			if ctx.Err() != nil {
				fmt.Println("⏹  Прервано")
				return
			}
		}
	}
	fmt.Printf("\n📊 Всего: %d, загружено %d, пустых %d\n", total.Requested, total.Painted, total.Blank)
}

// atZoom переводит номер нативного тайла на уровень zoom
func atZoom(v, zoom int, b tiles.ZoomBounds) int {
	if zoom >= b.MaxNativeZoom {
		return v << (zoom - b.MaxNativeZoom)
	}
	return v >> (b.MaxNativeZoom - zoom)
}

func parseZooms(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var z int
		if _, err := fmt.Sscanf(part, "%d", &z); err != nil {
			return nil, fmt.Errorf("неверный уровень масштаба %q", part)
		}
		out = append(out, z)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("не заданы уровни масштаба")
	}
	return out, nil
}
