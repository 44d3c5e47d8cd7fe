package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/DispatchBox/config"
	"github.com/BearBump/DispatchBox/internal/broker/kafka"
	"github.com/BearBump/DispatchBox/internal/broker/messages"
	"github.com/BearBump/DispatchBox/internal/engine"
)

type dispatchAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     dispatchAPIOpts
	eng      *engine.Engine
	consumer *kafka.Consumer
	closers  []func()
}

func mustBootstrapDispatchAPI() *dispatchAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		swaggerPath = "api/dispatch.swagger.json"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("config parse failed: %v", err))
	}

	httpAddr := cfg.Dispatch.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	topic := cfg.Kafka.PositionsTopicName
	if topic == "" {
		topic = messages.TopicDriverPositions
	}
	consumerGroup := cfg.Kafka.ConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "dispatch-api"
	}
	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	app := &dispatchAPIApp{ctx: ctx, cancel: cancel}

	opts := engine.OptionsFromConfig(cfg)
	geo, closeGeo := engine.GeoFromConfig(cfg, opts.Region.BBox)
	opts.Geo = geo
	app.closers = append(app.closers, closeGeo)

	if cfg.Kafka.PublishOrderEvents {
		producer := kafka.NewProducer(brokers)
		opts.Events = producer
		app.closers = append(app.closers, func() { _ = producer.Close() })
	}

	eng, err := engine.New(ctx, opts)
	if err != nil {
		app.Close()
		panic(fmt.Sprintf("engine start failed: %v", err))
	}
	app.eng = eng

	if cfg.Kafka.ConsumePositions {
		app.consumer = kafka.NewConsumer(brokers, topic, consumerGroup)
	}

	app.opts = dispatchAPIOpts{
		httpAddr:      httpAddr,
		swaggerPath:   swaggerPath,
		topic:         topic,
		consumerGroup: consumerGroup,
	}
	return app
}

func (a *dispatchAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.eng != nil {
		a.eng.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *dispatchAPIApp) Run() error {
	var consumer positionConsumer
	if a.consumer != nil {
		consumer = a.consumer
	}
	return runDispatchAPI(a.ctx, a.opts, a.eng, consumer)
}
