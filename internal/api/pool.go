package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mozilla-ai/healthd/internal/contracts"
	"github.com/mozilla-ai/healthd/internal/errors"
	"github.com/mozilla-ai/healthd/internal/pool"
)

// PoolStats are the counters of the database connection pool.
type PoolStats struct {
	MinSize            int     `json:"minSize"`
	MaxSize            int     `json:"maxSize"`
	Size               int     `json:"size"`
	InUse              int     `json:"inUse"`
	Idle               int     `json:"idle"`
	Leaked             int     `json:"leaked"`
	Waiters            int     `json:"waiters"`
	AverageHealthScore float64 `json:"averageHealthScore"`
	Created            uint64  `json:"created"`
	Evicted            uint64  `json:"evicted"`
	Reclaimed          uint64  `json:"reclaimed"`
	Exhausted          uint64  `json:"exhausted"`
	ConnectErrors      uint64  `json:"connectErrors"`
	Closed             bool    `json:"closed"`
}

// PoolConnection describes one pooled connection.
type PoolConnection struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	LastUsedAt  time.Time `json:"lastUsedAt"`
	InUse       bool      `json:"inUse"`
	HealthScore float64   `json:"healthScore"`
	UseCount    int64     `json:"useCount"`
	Leaked      bool      `json:"leaked"`
}

// PoolStatsResponse is the response for GET /pool.
type PoolStatsResponse struct {
	Body PoolStats
}

// PoolConnectionsResponse is the response for GET /pool/connections.
type PoolConnectionsResponse struct {
	Body []PoolConnection
}

// RegisterPoolRoutes sets up routes reporting on the connection pool.
// A nil inspector reports errors.ErrPoolNotConfigured.
func RegisterPoolRoutes(routerAPI huma.API, inspector contracts.PoolInspector, apiPathPrefix string) {
	poolAPI := huma.NewGroup(routerAPI, apiPathPrefix)
	tags := []string{"Pool"}
	configured := !isNil(inspector)

	huma.Register(
		poolAPI,
		huma.Operation{
			OperationID: "getPoolStats",
			Method:      http.MethodGet,
			Summary:     "Get connection pool statistics",
			Tags:        tags,
		},
		func(ctx context.Context, _ *struct{}) (*PoolStatsResponse, error) {
			if !configured {
				return nil, errors.ErrPoolNotConfigured
			}
			return &PoolStatsResponse{Body: poolStats(inspector.Stats())}, nil
		},
	)

	huma.Register(
		poolAPI,
		huma.Operation{
			OperationID: "listPoolConnections",
			Method:      http.MethodGet,
			Path:        "/connections",
			Summary:     "List pooled connections",
			Tags:        tags,
		},
		func(ctx context.Context, _ *struct{}) (*PoolConnectionsResponse, error) {
			if !configured {
				return nil, errors.ErrPoolNotConfigured
			}
			conns := inspector.Connections()
			data := make([]PoolConnection, 0, len(conns))
			for _, c := range conns {
				data = append(data, PoolConnection{
					ID:          c.ID,
					CreatedAt:   c.CreatedAt,
					LastUsedAt:  c.LastUsedAt,
					InUse:       c.InUse,
					HealthScore: c.HealthScore,
					UseCount:    c.UseCount,
					Leaked:      c.Leaked,
				})
			}
			return &PoolConnectionsResponse{Body: data}, nil
		},
	)
}

func poolStats(s pool.Stats) PoolStats {
	return PoolStats{
		MinSize:            s.MinSize,
		MaxSize:            s.MaxSize,
		Size:               s.Size,
		InUse:              s.InUse,
		Idle:               s.Idle,
		Leaked:             s.Leaked,
		Waiters:            s.Waiters,
		AverageHealthScore: s.AverageHealthScore,
		Created:            s.Created,
		Evicted:            s.Evicted,
		Reclaimed:          s.Reclaimed,
		Exhausted:          s.Exhausted,
		ConnectErrors:      s.ConnectErrors,
		Closed:             s.Closed,
	}
}
