package health

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

const checkTimeout = 5 * time.Second

type Checker interface {
	Check(ctx context.Context) error
	Name() string
}

// NonCritical checkers degrade the overall status instead of failing it.
type NonCritical interface {
	NonCritical() bool
}

type Health struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

type CheckResult struct {
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type CheckerRegistry struct {
	checkers []Checker
}

func NewCheckerRegistry() *CheckerRegistry {
	return &CheckerRegistry{
		checkers: make([]Checker, 0),
	}
}

func (r *CheckerRegistry) Register(checker Checker) {
	r.checkers = append(r.checkers, checker)
}

func (r *CheckerRegistry) Check(ctx context.Context) Health {
	results := make(map[string]CheckResult, len(r.checkers))
	anyUnhealthy := false
	anyDegraded := false

	for _, checker := range r.checkers {
		err := checker.Check(ctx)
		result := CheckResult{
			Status:    StatusHealthy,
			Timestamp: time.Now(),
		}

		if err != nil {
			result.Message = err.Error()
			if nc, ok := checker.(NonCritical); ok && nc.NonCritical() {
				result.Status = StatusDegraded
				anyDegraded = true
			} else {
				result.Status = StatusUnhealthy
				anyUnhealthy = true
			}
		}

		results[checker.Name()] = result
	}

	overallStatus := StatusHealthy
	if anyUnhealthy {
		overallStatus = StatusUnhealthy
	} else if anyDegraded {
		overallStatus = StatusDegraded
	}

	return Health{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Checks:    results,
	}
}

type RedisChecker struct {
	client *redis.Client
}

func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

func (c *RedisChecker) Name() string {
	return "redis"
}

func (c *RedisChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// ProbeChecker adapts a boolean probe, such as the downstream health probe.
type ProbeChecker struct {
	name     string
	probe    func(ctx context.Context) bool
	critical bool
}

func NewProbeChecker(name string, critical bool, probe func(ctx context.Context) bool) *ProbeChecker {
	return &ProbeChecker{name: name, probe: probe, critical: critical}
}

func (c *ProbeChecker) Name() string {
	return c.name
}

func (c *ProbeChecker) NonCritical() bool {
	return !c.critical
}

func (c *ProbeChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if !c.probe(ctx) {
		return fmt.Errorf("%s is not reachable", c.name)
	}
	return nil
}
