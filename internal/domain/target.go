package domain

import (
	"fmt"
	"time"
)

// Kind — вид SLO
type Kind string

const (
	KindAvailability Kind = "availability"
	KindErrorRate    Kind = "error_rate"
	KindLatency      Kind = "latency"
	KindThroughput   Kind = "throughput"
)

// BusinessImpact классификация влияния серии на бизнес
type BusinessImpact string

const (
	ImpactLow      BusinessImpact = "low"
	ImpactMedium   BusinessImpact = "medium"
	ImpactHigh     BusinessImpact = "high"
	ImpactCritical BusinessImpact = "critical"
)

// Weight вес влияния для приоритизации алертов
func (b BusinessImpact) Weight() int {
	switch b {
	case ImpactLow:
		return 1
	case ImpactMedium:
		return 2
	case ImpactHigh:
		return 3
	case ImpactCritical:
		return 4
	default:
		return 0
	}
}

// Target — конфигурация SLO. Загружается один раз при старте и в рантайме не меняется.
//
// Пороги задаются как отступ вниз от Objective:
// warning при compliance < Objective-WarningThreshold,
// breach при compliance < Objective-CriticalThreshold.
type Target struct {
	Name              string         `mapstructure:"name" yaml:"name" json:"name"`
	Kind              Kind           `mapstructure:"type" yaml:"type" json:"type"`
	Objective         float64        `mapstructure:"target" yaml:"target" json:"target"`
	WarningThreshold  float64        `mapstructure:"warning_threshold" yaml:"warning_threshold" json:"warning_threshold"`
	CriticalThreshold float64        `mapstructure:"critical_threshold" yaml:"critical_threshold" json:"critical_threshold"`
	Window            time.Duration  `mapstructure:"window" yaml:"window" json:"window"`
	Impact            BusinessImpact `mapstructure:"business_impact" yaml:"business_impact" json:"business_impact"`
	Description       string         `mapstructure:"description" yaml:"description" json:"description,omitempty"`
}

// AllowedErrorRate — бюджет ошибок в процентных пунктах
func (t Target) AllowedErrorRate() float64 {
	return 100 - t.Objective
}

// Normalize проставляет значения по умолчанию для необязательных полей
func (t Target) Normalize() Target {
	if t.Impact == "" {
		t.Impact = ImpactMedium
	}
	return t
}

// Validate проверяет одну цель. Возвращает *ConfigurationError.
func (t Target) Validate() error {
	fail := func(field, format string, args ...any) error {
		return &ConfigurationError{Target: t.Name, Field: field, Reason: fmt.Sprintf(format, args...)}
	}

	if t.Name == "" {
		return fail("name", "must not be empty")
	}
	if _, err := (Counters{}).Good(t.Kind); err != nil {
		return fail("type", "unknown slo type %q", t.Kind)
	}
	if t.Objective <= 0 || t.Objective >= 100 {
		return fail("target", "must be within (0, 100), got %v", t.Objective)
	}
	if t.WarningThreshold < 0 {
		return fail("warning_threshold", "must not be negative, got %v", t.WarningThreshold)
	}
	if t.CriticalThreshold < t.WarningThreshold {
		return fail("critical_threshold", "critical margin %v is tighter than warning margin %v",
			t.CriticalThreshold, t.WarningThreshold)
	}
	if t.Objective-t.CriticalThreshold < 0 {
		return fail("critical_threshold", "breach level %v is below zero", t.Objective-t.CriticalThreshold)
	}
	if t.Window <= 0 {
		return fail("window", "must be positive, got %v", t.Window)
	}
	if t.Impact != "" && t.Impact.Weight() == 0 {
		return fail("business_impact", "unknown impact %q", t.Impact)
	}
	return nil
}

// ValidateTargets проверяет весь каталог целей: каждая цель валидна, имена уникальны.
func ValidateTargets(targets []Target) error {
	if len(targets) == 0 {
		return &ConfigurationError{Field: "targets", Reason: "at least one slo target is required"}
	}
	seen := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		if err := t.Validate(); err != nil {
			return err
		}
		if _, dup := seen[t.Name]; dup {
			return &ConfigurationError{Target: t.Name, Field: "name", Reason: "duplicate target name"}
		}
		seen[t.Name] = struct{}{}
	}
	return nil
}
