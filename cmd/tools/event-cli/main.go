package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/annel0/worldmap/internal/eventbus"
	"github.com/gorilla/websocket"
)

const (
	defaultServerAddr = "http://localhost:8088"
	timeFormat        = "15:04:05"
)

func main() {
	var (
		serverAddr = flag.String("server", defaultServerAddr, "адрес сервера карты")
		command    = flag.String("cmd", "tail", "Command: tail, stats, types")
		eventTypes = flag.String("types", "", "Event types filter (comma-separated)")
		regions    = flag.String("regions", "", "Region IDs filter (comma-separated)")
		limit      = flag.Int("limit", 0, "Maximum number of events (0 — без ограничения)")
	)
	flag.Parse()

	switch *command {
	case "tail":
		if err := tailEvents(*serverAddr, &TailOptions{
			EventTypes: parseStringList(*eventTypes),
			Regions:    parseStringList(*regions),
			Limit:      *limit,
		}); err != nil {
			log.Fatalf("❌ Tail failed: %v", err)
		}

	case "stats":
		if err := showStats(*serverAddr); err != nil {
			log.Fatalf("❌ Stats failed: %v", err)
		}

	case "types":
		showTypes()

	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, stats, types")
		os.Exit(1)
	}
}

type TailOptions struct {
	EventTypes []string
	Regions    []string
	Limit      int
}

// streamMessage событие, как его отдаёт /ws
type streamMessage struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

func wsURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

// tailEvents выводит события в реальном времени
func tailEvents(server string, opts *TailOptions) error {
	addr, err := wsURL(server)
	if err != nil {
		return fmt.Errorf("invalid server address: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	fmt.Printf("🎬 Tailing events from %s (limit: %d)\n", addr, opts.Limit)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interrupt
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close()
	}()

	eventCount := 0
	for {
		var msg streamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || eventCount > 0 {
				break
			}
			return fmt.Errorf("stream error: %w", err)
		}
		if !matches(&msg, opts) {
			continue
		}

		printEvent(&msg)
		eventCount++
		if opts.Limit > 0 && eventCount >= opts.Limit {
			break
		}
	}

	fmt.Printf("\n📊 Total events: %d\n", eventCount)
	return nil
}

func matches(msg *streamMessage, opts *TailOptions) bool {
	if len(opts.EventTypes) > 0 && !contains(opts.EventTypes, msg.Type) {
		return false
	}
	if len(opts.Regions) > 0 {
		var edit eventbus.PolygonEdit
		if json.Unmarshal(msg.Payload, &edit) != nil || !contains(opts.Regions, edit.RegionID) {
			return false
		}
	}
	return true
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// showStats выводит статистику сервера
func showStats(server string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(strings.TrimRight(server, "/") + "/api/stats")
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to get stats: %s", resp.Status)
	}

	var body struct {
		Data struct {
			Server    map[string]interface{} `json:"server"`
			Events    eventbus.Stats         `json:"events"`
			Regions   string                 `json:"regions"`
			WSClients int                    `json:"ws_clients"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("invalid stats response: %w", err)
	}

	fmt.Println("📊 Event statistics")
	fmt.Printf("Published: %d\n", body.Data.Events.Published)
	fmt.Printf("Consumed:  %d\n", body.Data.Events.Consumed)
	fmt.Printf("Dropped:   %d\n", body.Data.Events.Dropped)
	fmt.Printf("Stream clients: %d\n", body.Data.WSClients)
	fmt.Printf("\n%s\n", body.Data.Regions)
	fmt.Printf("Uptime: %v, memory: %v MB\n", body.Data.Server["uptime"], body.Data.Server["memory_mb"])
	return nil
}

// showTypes выводит типы событий карты
func showTypes() {
	fmt.Println("📋 Available event types")
	for _, t := range []struct{ name, desc string }{
		{eventbus.TypeVertexAdded, "вершина добавлена в полигон региона"},
		{eventbus.TypeVertexMoved, "вершина региона перемещена"},
		{eventbus.TypeVertexRemoved, "вершина удалена из полигона региона"},
		{eventbus.TypeMarkerRelocated, "бэкенд подтвердил перенос маркера проекта"},
		{eventbus.TypeRelocateFailed, "перенос отклонён, маркер возвращён на место"},
	} {
		fmt.Printf("  %-24s %s\n", t.name, t.desc)
	}
}

// printEvent выводит событие в читаемом формате
func printEvent(msg *streamMessage) {
	fmt.Printf("[%s] [%s] %s\n", msg.Timestamp.Local().Format(timeFormat), msg.Type, msg.ID)

	switch msg.Type {
	case eventbus.TypeVertexAdded, eventbus.TypeVertexMoved, eventbus.TypeVertexRemoved:
		var e eventbus.PolygonEdit
		if json.Unmarshal(msg.Payload, &e) == nil {
			fmt.Printf("  Region: %s vertex #%d (%d vertices)\n", e.RegionID, e.Index, len(e.Vertices))
		}
	case eventbus.TypeMarkerRelocated:
		var e eventbus.MarkerRelocated
		if json.Unmarshal(msg.Payload, &e) == nil {
			fmt.Printf("  Project %s: (%d,%d,%d) -> (%d,%d,%d)\n", e.EntityID,
				e.From.X, e.From.Y, e.From.Z, e.To.X, e.To.Y, e.To.Z)
		}
	case eventbus.TypeRelocateFailed:
		var e eventbus.RelocateFailed
		if json.Unmarshal(msg.Payload, &e) == nil {
			fmt.Printf("  Project %s restored to (%d,%d,%d): %s\n", e.EntityID,
				e.RestoredTo.X, e.RestoredTo.Y, e.RestoredTo.Z, e.Error)
		}
	}
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
