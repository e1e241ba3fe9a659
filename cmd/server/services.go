package main

import (
	"log/slog"

	"homeledger/internal/access"
	connectionservice "homeledger/internal/connection/service"
	historyservice "homeledger/internal/history/service"
	invitationservice "homeledger/internal/invitation/service"
	"homeledger/internal/platform/config"
	"homeledger/internal/platform/metrics"
	propertyservice "homeledger/internal/property/service"
	"homeledger/internal/storage"
	workservice "homeledger/internal/workrecord/service"
)

type services struct {
	properties  *propertyservice.Service
	work        *workservice.Service
	connections *connectionservice.Service
	history     *historyservice.Service
	invitations *invitationservice.Service
}

func buildServices(backend storage.Backend, cfg config.Server, log *slog.Logger, m *metrics.Metrics) *services {
	properties := propertyservice.New(backend, propertyservice.WithLogger(log), propertyservice.WithMetrics(m))
	gate := access.NewOwnershipGate(properties)
	connections := connectionservice.New(backend, gate, connectionservice.WithLogger(log), connectionservice.WithMetrics(m))
	history := historyservice.New(backend, gate)
	work := workservice.New(backend, gate, properties, history, connections,
		workservice.WithLogger(log),
		workservice.WithMetrics(m),
	)
	// Claims promote pending work; registered after construction to break the cycle.
	properties.AddClaimHook(work.PromotePendingTx)

	invitations := invitationservice.New(backend, properties, connections,
		invitationservice.WithTTL(cfg.InvitationTTL),
		invitationservice.WithLogger(log),
		invitationservice.WithMetrics(m),
	)
	return &services{
		properties:  properties,
		work:        work,
		connections: connections,
		history:     history,
		invitations: invitations,
	}
}
