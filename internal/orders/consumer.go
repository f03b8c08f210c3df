// Package orders clears carts once an order has been placed.
package orders

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	Topic   = "order-placed"
	GroupID = "jewel-cart"
)

type OrderPlaced struct {
	OrderID  string `json:"order_id"`
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id"`
}

// DeviceCarts clears the cart held for a device.
type DeviceCarts interface {
	ClearDevice(ctx context.Context, deviceID string) error
}

// AccountCarts deletes an account's remote snapshot.
type AccountCarts interface {
	DeleteSnapshot(ctx context.Context, userID string) error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Consumer struct {
	reader   messageReader
	devices  DeviceCarts
	accounts AccountCarts
	logger   *zap.Logger
}

func NewConsumer(devices DeviceCarts, accounts AccountCarts, logger *zap.Logger, brokers ...string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    Topic,
		GroupID:  GroupID,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, devices: devices, accounts: accounts, logger: logger}
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.consumeOne(ctx)
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Warn("error closing reader", zap.Error(err))
	}
}

func (c *Consumer) consumeOne(ctx context.Context) {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			c.logger.Warn("error reading message", zap.Error(err))
		}
		return
	}
	c.handle(ctx, m.Value)
}

func (c *Consumer) handle(ctx context.Context, value []byte) {
	var event OrderPlaced
	if err := json.Unmarshal(value, &event); err != nil {
		c.logger.Warn("error parsing message", zap.Error(err))
		return
	}
	if event.UserID == "" && event.DeviceID == "" {
		c.logger.Warn("order event names neither user nor device", zap.String("order_id", event.OrderID))
		return
	}

	// The device goes first: clearing it drops any pending push that would
	// recreate the account cart deleted below.
	if event.DeviceID != "" {
		if err := c.devices.ClearDevice(ctx, event.DeviceID); err != nil {
			c.logger.Warn("failed to clear device cart", zap.String("device_id", event.DeviceID), zap.Error(err))
		}
	}
	if event.UserID != "" {
		if err := c.accounts.DeleteSnapshot(ctx, event.UserID); err != nil {
			c.logger.Warn("failed to delete account cart", zap.String("user_id", event.UserID), zap.Error(err))
		}
	}
	c.logger.Info("cleared cart after order",
		zap.String("order_id", event.OrderID),
		zap.String("user_id", event.UserID),
		zap.String("device_id", event.DeviceID))
}
