package filtering

import (
	"context"
	"encoding/json"
	"fmt"

	celgo "github.com/google/cel-go/cel"

	"wabridge/internal/config"
	"wabridge/internal/constants"
	"wabridge/internal/logger"
	"wabridge/internal/message"
	"wabridge/pkg/cel"
	"wabridge/pkg/metrics"
	"wabridge/pkg/tracing"
)

type errorHandlingStatus int

const (
	errorHandlingDeny errorHandlingStatus = iota
	errorHandlingSkip
)

type rule struct {
	name       string
	expression string
	program    celgo.Program
}

// Service applies the operator's drop rules to normalized messages. A message
// passes when every rule evaluates to true.
type Service struct {
	rules     []rule
	onError   string
	evaluator *cel.Evaluator
	logger    logger.Logger
}

// NewService compiles every configured rule up front; an invalid expression is
// a startup error.
func NewService(cfg config.FilteringConfig, log logger.Logger) (*Service, error) {
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL evaluator: %w", err)
	}

	rules := make([]rule, 0, len(cfg.Rules))
	for i, rc := range cfg.Rules {
		program, err := evaluator.CompileFilter(rc.Expression)
		if err != nil {
			return nil, fmt.Errorf("filtering rule %d (%s): %w", i, rc.Name, err)
		}
		name := rc.Name
		if name == "" {
			name = fmt.Sprintf("rule_%d", i)
		}
		rules = append(rules, rule{name: name, expression: rc.Expression, program: program})
	}

	onError := cfg.Fallback.OnError
	if onError == "" {
		onError = constants.FallbackAllow
	}

	return &Service{
		rules:     rules,
		onError:   onError,
		evaluator: evaluator,
		logger:    log,
	}, nil
}

func (s *Service) RuleCount() int {
	return len(s.rules)
}

// Allow reports whether msg should be forwarded and, when it should not, the
// name of the rule that dropped it.
func (s *Service) Allow(ctx context.Context, msg message.NormalizedMessage, rawType string) (bool, string) {
	if len(s.rules) == 0 {
		return true, ""
	}

	ctx, span := tracing.GetTracer("filtering").Start(ctx, "filtering.allow")
	defer span.End()

	act := cel.Activation{
		Message: toMap(msg),
		RawType: rawType,
		Feed:    "message",
	}

	for _, r := range s.rules {
		result, err := s.evaluator.EvaluateFilter(ctx, r.program, act)
		if err != nil {
			metrics.IncFilteringRuleEvaluation(r.name, "error")
			if s.handleEvaluationError(ctx, r, err) == errorHandlingDeny {
				return false, r.name
			}
			continue
		}

		if !result {
			metrics.IncFilteringRuleEvaluation(r.name, "filtered")
			s.logger.DebugwCtx(ctx, "Rule filtered message",
				"rule_name", r.name,
				"from", msg.From,
			)
			return false, r.name
		}
		metrics.IncFilteringRuleEvaluation(r.name, "passed")
	}

	return true, ""
}

func (s *Service) handleEvaluationError(ctx context.Context, r rule, err error) errorHandlingStatus {
	if s.onError == constants.FallbackDeny {
		metrics.FallbackUsageTotal.WithLabelValues("filtering", "deny_on_error").Inc()
		s.logger.WarnwCtx(ctx, "Evaluation error, denying message (fallback: deny)",
			"rule_name", r.name,
			"error", err,
		)
		return errorHandlingDeny
	}

	metrics.FallbackUsageTotal.WithLabelValues("filtering", "allow_on_error").Inc()
	s.logger.WarnwCtx(ctx, "Evaluation error, allowing message (fallback: allow)",
		"rule_name", r.name,
		"error", err,
	)
	return errorHandlingSkip
}

// toMap exposes the message to CEL using its wire field names.
func toMap(msg message.NormalizedMessage) map[string]interface{} {
	data, err := json.Marshal(msg)
	if err != nil {
		return map[string]interface{}{}
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]interface{}{}
	}
	return out
}
