package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// QueueConfig 描述 RabbitMQ 告警队列的连接参数。
type QueueConfig struct {
	URL        string
	Queue      string
	Durable    bool
	AutoDelete bool
}

// QueueNotifier 将告警事件投递到 RabbitMQ，供下游风控系统消费。
type QueueNotifier struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewQueueNotifier 创建 RabbitMQ 告警通知器。
func NewQueueNotifier(cfg QueueConfig) (*QueueNotifier, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "delegateguard.alerts"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("创建 RabbitMQ channel 失败: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, cfg.Durable, cfg.AutoDelete, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("声明 RabbitMQ 队列失败: %w", err)
	}
	return &QueueNotifier{conn: conn, ch: ch, queue: queue}, nil
}

var _ Notifier = (*QueueNotifier)(nil)

// Channel 返回队列渠道。
func (n *QueueNotifier) Channel() Channel { return ChannelQueue }

// Notify 将告警事件以 JSON 形式投递到队列。
func (n *QueueNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.ch == nil {
		return errors.New("RabbitMQ 告警队列未初始化")
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化告警事件失败: %w", err)
	}
	return n.ch.PublishWithContext(ctx, "", n.queue, false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   event.AlertID,
		Body:        body,
	})
}

// Close 关闭 RabbitMQ 连接。
func (n *QueueNotifier) Close() error {
	if n == nil {
		return nil
	}
	var errs []error
	if n.ch != nil {
		if err := n.ch.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if n.conn != nil {
		if err := n.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
