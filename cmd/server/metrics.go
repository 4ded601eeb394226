package main

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"

	"github.com/icco/taverna"
)

type domainMetrics struct {
	rolls        metric.Int64Counter
	turns        metric.Int64Counter
	logRows      metric.Int64Counter
	chatMessages metric.Int64Counter
}

var (
	metricsOnce sync.Once
	instruments *domainMetrics
)

// stats returns the domain counters, setting up the meter provider and its
// prometheus exporter on first use.
func stats() *domainMetrics {
	metricsOnce.Do(func() {
		instruments = newDomainMetrics(meterProvider().Meter("github.com/icco/taverna"))
	})
	return instruments
}

func meterProvider() metric.MeterProvider {
	exporter, err := otelprom.New()
	if err != nil {
		log.Errorw("could not create prometheus exporter", zap.Error(err))
		return noop.NewMeterProvider()
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	return provider
}

func newDomainMetrics(m metric.Meter) *domainMetrics {
	fallback := noop.NewMeterProvider().Meter(taverna.Service)
	counter := func(name, desc string) metric.Int64Counter {
		c, err := m.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			log.Errorw("could not create counter", "name", name, zap.Error(err))
			c, _ = fallback.Int64Counter(name)
		}
		return c
	}

	return &domainMetrics{
		rolls:        counter("taverna.dice.rolls", "Dice and table rolls resolved."),
		turns:        counter("taverna.initiative.turns", "Initiative turn advances."),
		logRows:      counter("taverna.combat_log.rows", "Combat log rows appended."),
		chatMessages: counter("taverna.chat.messages", "Chat messages posted."),
	}
}

func (d *domainMetrics) rolled(ctx context.Context, kind string, private bool) {
	d.rolls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("private", private),
	))
}

func (d *domainMetrics) loggedRows(ctx context.Context, rows []CombatLogEntry) {
	for _, row := range rows {
		d.logRows.Add(ctx, 1, metric.WithAttributes(attribute.String("action", string(row.Action))))
	}
}
