package health

import (
	"context"
	"sort"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure: cache down or a provider breaker open.
	Degraded Status = "degraded"
	// Unhealthy indicates the database is down or no provider is available.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db        Pinger
	cache     Pinger
	providers ProviderStates
}

// New creates a Service. cache and providers can be nil.
func New(db, cache Pinger, providers ProviderStates) *Service {
	return &Service{db: db, cache: cache, providers: providers}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	status := Healthy
	degrade := func() {
		if status == Healthy {
			status = Degraded
		}
	}

	checks["database"] = result(s.db.Ping(ctx))
	if checks["database"] == CheckError {
		status = Unhealthy
	}

	if s.cache != nil {
		checks["cache"] = result(s.cache.Ping(ctx))
		if checks["cache"] == CheckError {
			degrade()
		}
	}

	if s.providers != nil {
		avail := s.providers.Availability()
		names := make([]string, 0, len(avail))
		for name := range avail {
			names = append(names, name)
		}
		sort.Strings(names)
		up := 0
		for _, name := range names {
			if avail[name] {
				checks["embedding."+name] = CheckOK
				up++
			} else {
				checks["embedding."+name] = CheckError
				degrade()
			}
		}
		if len(names) > 0 && up == 0 {
			status = Unhealthy
		}
	}

	return Report{Status: status, Checks: checks}
}

func result(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}
