package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/worldmap/internal/logging"
	"github.com/nats-io/nats.go"
)

// NATSInvalidator рассылает инвалидацию ключей кеша через NATS Pub/Sub.
// Нужен, когда у каждого узла свой in-memory кеш: после успешного патча
// координат проекта все узлы должны забыть закешированный список проектов.
type NATSInvalidator struct {
	conn    *nats.Conn
	config  *InvalidatorConfig
	subject string
	nodeID  string

	mu           sync.Mutex
	subscription *nats.Subscription
	handler      InvalidationHandler

	stopCh chan struct{}
	wg     sync.WaitGroup

	// Дедупликация
	recentKeys map[string]time.Time
	keysMutex  sync.Mutex

	publishedCount atomic.Int64
	receivedCount  atomic.Int64
	errorsCount    atomic.Int64
}

// InvalidatorConfig содержит конфигурацию для NATS invalidator.
type InvalidatorConfig struct {
	NATSURL       string        `yaml:"nats_url"`
	Subject       string        `yaml:"subject"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
	DedupeWindow  time.Duration `yaml:"dedupe_window"`
}

// InvalidationMessage сообщение об инвалидации ключа
type InvalidationMessage struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	NodeID    string    `json:"node_id"`
}

func (c *InvalidatorConfig) applyDefaults() {
	if c.Subject == "" {
		c.Subject = "worldmap.cache.invalidation"
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = 10
	}
	if c.ReconnectWait == 0 {
		c.ReconnectWait = 2 * time.Second
	}
	if c.DedupeWindow == 0 {
		c.DedupeWindow = time.Second
	}
}

// NewNATSInvalidator подключается к NATS
func NewNATSInvalidator(config *InvalidatorConfig, nodeID string) (*NATSInvalidator, error) {
	config.applyDefaults()

	opts := []nats.Option{
		nats.Name("worldmap-" + nodeID),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logging.Warn("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(config.NATSURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	n := &NATSInvalidator{
		conn:       conn,
		config:     config,
		subject:    config.Subject,
		nodeID:     nodeID,
		stopCh:     make(chan struct{}),
		recentKeys: make(map[string]time.Time),
	}
	n.startDedupeCleanup()

	logging.Info("NATS invalidator initialized: %s (subject: %s)", config.NATSURL, config.Subject)
	return n, nil
}

// PublishInvalidation отправляет уведомление об инвалидации ключа
func (n *NATSInvalidator) PublishInvalidation(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.isDuplicate(key) {
		return nil
	}

	data, err := json.Marshal(encodeInvalidation(key, n.nodeID))
	if err != nil {
		n.errorsCount.Add(1)
		return fmt.Errorf("failed to marshal invalidation message: %w", err)
	}

	if err := n.conn.Publish(n.subject, data); err != nil {
		n.errorsCount.Add(1)
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}

	n.recordKey(key)
	n.publishedCount.Add(1)
	logging.Debug("Published invalidation for key: %s", key)
	return nil
}

// SubscribeInvalidations подписывается на уведомления других узлов
func (n *NATSInvalidator) SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.subscription != nil {
		return fmt.Errorf("already subscribed to invalidations")
	}

	n.handler = handler
	sub, err := n.conn.Subscribe(n.subject, func(msg *nats.Msg) {
		n.receivedCount.Add(1)
		n.handleMessage(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to invalidations: %w", err)
	}
	n.subscription = sub

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		select {
		case <-ctx.Done():
		case <-n.stopCh:
		}
		n.unsubscribe()
	}()

	logging.Info("Subscribed to cache invalidations on subject: %s", n.subject)
	return nil
}

// Close закрывает соединение с NATS
func (n *NATSInvalidator) Close() error {
	close(n.stopCh)
	n.wg.Wait()
	n.conn.Close()
	logging.Info("NATS invalidator closed")
	return nil
}

// handleMessage применяет входящее сообщение. Свои сообщения и дубликаты пропускаются.
func (n *NATSInvalidator) handleMessage(data []byte) {
	msg, err := decodeInvalidation(data)
	if err != nil {
		n.errorsCount.Add(1)
		logging.Error("Failed to unmarshal invalidation message: %v", err)
		return
	}
	if msg.NodeID == n.nodeID || n.isDuplicate(msg.Key) {
		return
	}
	n.recordKey(msg.Key)

	if n.handler == nil {
		return
	}
	if err := n.handler(msg.Key); err != nil {
		n.errorsCount.Add(1)
		logging.Error("Invalidation handler failed for key %s: %v", msg.Key, err)
	}
}

func (n *NATSInvalidator) unsubscribe() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subscription == nil {
		return
	}
	if err := n.subscription.Unsubscribe(); err != nil {
		logging.Error("Failed to unsubscribe from invalidations: %v", err)
	}
	n.subscription = nil
}

func (n *NATSInvalidator) isDuplicate(key string) bool {
	n.keysMutex.Lock()
	defer n.keysMutex.Unlock()
	lastSeen, ok := n.recentKeys[key]
	return ok && time.Since(lastSeen) < n.config.DedupeWindow
}

func (n *NATSInvalidator) recordKey(key string) {
	n.keysMutex.Lock()
	n.recentKeys[key] = time.Now()
	n.keysMutex.Unlock()
}

func (n *NATSInvalidator) startDedupeCleanup() {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ticker := time.NewTicker(n.config.DedupeWindow * 10)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				n.keysMutex.Lock()
				for key, ts := range n.recentKeys {
					if time.Since(ts) > n.config.DedupeWindow {
						delete(n.recentKeys, key)
					}
				}
				n.keysMutex.Unlock()
			case <-n.stopCh:
				return
			}
		}
	}()
}

func encodeInvalidation(key, nodeID string) InvalidationMessage {
	return InvalidationMessage{Key: key, Timestamp: time.Now().UTC(), NodeID: nodeID}
}

func decodeInvalidation(data []byte) (InvalidationMessage, error) {
	var msg InvalidationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, err
	}
	if msg.Key == "" {
		return msg, fmt.Errorf("invalidation message without key")
	}
	return msg, nil
}

// InvalidatingRepo удаляет ключ локально и рассылает инвалидацию остальным узлам.
// Входящие инвалидации удаляют ключ из локального кеша.
type InvalidatingRepo struct {
	Repo
	invalidator Invalidator
}

// WithInvalidation оборачивает кеш рассылкой инвалидаций
func WithInvalidation(ctx context.Context, repo Repo, inv Invalidator) (*InvalidatingRepo, error) {
	ir := &InvalidatingRepo{Repo: repo, invalidator: inv}
	err := inv.SubscribeInvalidations(ctx, func(key string) error {
		return repo.Delete(context.Background(), key)
	})
	if err != nil {
		return nil, err
	}
	return ir, nil
}

// Delete удаляет ключ и уведомляет другие узлы
func (ir *InvalidatingRepo) Delete(ctx context.Context, key string) error {
	if err := ir.Repo.Delete(ctx, key); err != nil {
		return err
	}
	return ir.invalidator.PublishInvalidation(ctx, key)
}

// Close закрывает кеш и соединение NATS
func (ir *InvalidatingRepo) Close() error {
	err := ir.invalidator.Close()
	if cerr := ir.Repo.Close(); cerr != nil {
		return cerr
	}
	return err
}
