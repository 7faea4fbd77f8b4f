// Package metrics holds the hub's Prometheus instrumentation. Metrics are
// created eagerly so instrumented code never sees a nil collector; Register
// attaches them to the registry the server exposes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	FederationLoginsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authhub_federation_logins_total",
		Help: "Completed federation logins by provider and outcome.",
	}, []string{"provider", "outcome"})

	FederationUsersCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authhub_federation_users_created_total",
		Help: "Users created on first federation.",
	})

	AuthCodesIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authhub_auth_codes_issued_total",
		Help: "Authorization codes issued.",
	})

	AuthCodesRedeemedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authhub_auth_codes_redeemed_total",
		Help: "Authorization code redemption attempts by outcome.",
	}, []string{"outcome"})

	TokensIssuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authhub_tokens_issued_total",
		Help: "Token pairs issued by grant type.",
	}, []string{"grant_type"})

	TokensRevokedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authhub_tokens_revoked_total",
		Help: "Tokens revoked through the revocation endpoint or rotation.",
	})

	ActiveSessionsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "authhub_active_sessions",
		Help: "Login sessions currently alive in the session store.",
	})
)

// Register attaches all hub metrics to the given registry. Call once at
// startup.
func Register(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register metrics")
		return
	}

	collectors := []prometheus.Collector{
		FederationLoginsTotal,
		FederationUsersCreatedTotal,
		AuthCodesIssuedTotal,
		AuthCodesRedeemedTotal,
		TokensIssuedTotal,
		TokensRevokedTotal,
		ActiveSessionsGauge,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msg("Failed to register Prometheus collector")
		}
	}
}
