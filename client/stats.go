package client

import (
	"context"
	"net/http"
)

type (
	// StatOps reads the /v2/stats endpoints.
	StatOps struct {
		s sender
	}

	LeaderStats struct {
		Leader    string                   `json:"leader"`
		Followers map[string]FollowerStats `json:"followers"`
	}

	FollowerStats struct {
		Latency struct {
			Current           float64 `json:"current"`
			Average           float64 `json:"average"`
			StandardDeviation float64 `json:"standardDeviation"`
			Minimum           float64 `json:"minimum"`
			Maximum           float64 `json:"maximum"`
		} `json:"latency"`
		Counts struct {
			Fail    uint64 `json:"fail"`
			Success uint64 `json:"success"`
		} `json:"counts"`
	}

	SelfStats struct {
		Name       string `json:"name"`
		ID         string `json:"id"`
		State      string `json:"state"`
		StartTime  string `json:"startTime"`
		LeaderInfo struct {
			Leader    string `json:"leader"`
			Uptime    string `json:"uptime"`
			StartTime string `json:"startTime"`
		} `json:"leaderInfo"`
		RecvAppendRequestCnt uint64  `json:"recvAppendRequestCnt"`
		RecvPkgRate          float64 `json:"recvPkgRate"`
		RecvBandwidthRate    float64 `json:"recvBandwidthRate"`
		SendAppendRequestCnt uint64  `json:"sendAppendRequestCnt"`
		SendPkgRate          float64 `json:"sendPkgRate"`
		SendBandwidthRate    float64 `json:"sendBandwidthRate"`
	}

	// StoreStats maps operation counters, e.g. getsSuccess, to their value.
	StoreStats map[string]uint64
)

// Leader is only answered by the leader; followers return an HTTPError.
func (s *StatOps) Leader(ctx context.Context) (*LeaderStats, error) {
	stats := &LeaderStats{}
	if err := s.get(ctx, "/stats/leader", stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *StatOps) Self(ctx context.Context) (*SelfStats, error) {
	stats := &SelfStats{}
	if err := s.get(ctx, "/stats/self", stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *StatOps) Store(ctx context.Context) (StoreStats, error) {
	stats := StoreStats{}
	if err := s.get(ctx, "/stats/store", &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *StatOps) get(ctx context.Context, path string, v interface{}) error {
	raw, err := s.s.SendRaw(ctx, &Request{Method: http.MethodGet, Path: path})
	if err != nil {
		return err
	}
	return raw.decode(v)
}
