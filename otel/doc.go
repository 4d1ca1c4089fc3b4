// Package otel provides OpenTelemetry integration for write-behind tier metrics.
//
// This package implements the writebehind.MetricsCollector interface using
// OpenTelemetry, so tier latencies, store traffic, bundle sizes and queue
// depth can be exported to any OTEL backend.
//
// # Usage
//
//	import (
//	    "github.com/agilira/writebehind"
//	    wbotel "github.com/agilira/writebehind/otel"
//	    "go.opentelemetry.io/otel/exporters/prometheus"
//	    "go.opentelemetry.io/otel/sdk/metric"
//	)
//
//	exporter, _ := prometheus.New()
//	provider := metric.NewMeterProvider(metric.WithReader(exporter))
//
//	collector, _ := wbotel.NewOTelMetricsCollector(provider)
//
//	tier, _ := writebehind.New[string, User](writebehind.Config{
//	    WriteDelay:       5 * time.Second,
//	    MetricsCollector: collector,
//	}, fast, store)
//
// Histograms give percentiles (p50, p95, p99) for Get, load and store
// latencies. Store and erase failures share wb_store_errors_total and are
// told apart by the operation attribute.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package otel
