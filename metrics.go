// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package brio

import (
	goerrors "errors"

	"github.com/grailbio/brio/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// metrics counts the records and payload bytes moved through one
// writer or reader. A nil *metrics counts nothing.
type metrics struct {
	records *prometheus.CounterVec
	bytes   *prometheus.CounterVec
	format  string
}

var metricLabels = []string{"format", "store"}

func newMetrics(reg prometheus.Registerer, direction, format string) (*metrics, error) {
	if reg == nil {
		return nil, nil
	}
	records, err := newCounterVec(reg, "records_"+direction+"_total", "Number of records "+direction+".")
	if err != nil {
		return nil, err
	}
	bytes, err := newCounterVec(reg, "payload_bytes_"+direction+"_total", "Archive payload bytes "+direction+".")
	if err != nil {
		return nil, err
	}
	return &metrics{records: records, bytes: bytes, format: format}, nil
}

// newCounterVec registers a counter vector, reusing one that another
// writer or reader has already registered.
func newCounterVec(reg prometheus.Registerer, name, help string) (*prometheus.CounterVec, error) {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "brio",
		Name:      name,
		Help:      help,
	}, metricLabels)
	if err := reg.Register(c); err != nil {
		var e prometheus.AlreadyRegisteredError
		if goerrors.As(err, &e) {
			if existing, ok := e.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, errors.E(errors.Invalid, "brio: register metric "+name, err)
	}
	return c, nil
}

func (m *metrics) add(store string, payload int) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(m.format, store).Inc()
	m.bytes.WithLabelValues(m.format, store).Add(float64(payload))
}
