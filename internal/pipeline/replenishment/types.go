package replenishment

import (
	"errors"
	"fmt"
)

const (
	// DaysOfCoverCap bounds days of cover so it stays finite for zero-velocity SKUs.
	DaysOfCoverCap = 999.0

	// coverEpsilon is the velocity floor used when dividing stock by ADS.
	coverEpsilon = 1e-9

	// salesWindowDays is the trailing window used for ADS30 and demand variability.
	salesWindowDays = 30

	// Weights of the blended velocity.
	weightADS7  = 0.5
	weightADS14 = 0.3
	weightADS30 = 0.2
)

// Config holds the tunable parameters of the replenishment math.
type Config struct {
	ProtectionWindowDays float64 // Default days of cover the business wants
	ServiceLevelZ        float64 // Service-level multiplier for sigma-based safety stock
	OverstockMultiple    float64 // Cover above this multiple of the window is BUY_LESS
	CriticalCoverDays    float64 // Cover below this is CRITICAL
	RiskCoverDays        float64 // Cover below this is RISK
	LowConfidenceDays    int     // History shorter than this is LOW confidence
	HighConfidenceDays   int     // History longer than this is HIGH confidence
	MaterialChangeRatio  float64 // Relative ADS drift tolerated before a new snapshot is written
}

// DefaultConfig returns the engine defaults
func DefaultConfig() Config {
	return Config{
		ProtectionWindowDays: 3,
		ServiceLevelZ:        1.65,
		OverstockMultiple:    4,
		CriticalCoverDays:    3,
		RiskCoverDays:        7,
		LowConfidenceDays:    7,
		HighConfidenceDays:   21,
		MaterialChangeRatio:  0.05,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	var errs []error
	if c.ProtectionWindowDays <= 0 {
		errs = append(errs, fmt.Errorf("protection window must be positive, got %v", c.ProtectionWindowDays))
	}
	if c.ServiceLevelZ < 0 {
		errs = append(errs, fmt.Errorf("service level z must not be negative, got %v", c.ServiceLevelZ))
	}
	if c.OverstockMultiple <= 1 {
		errs = append(errs, fmt.Errorf("overstock multiple must be above 1, got %v", c.OverstockMultiple))
	}
	if c.CriticalCoverDays <= 0 || c.RiskCoverDays < c.CriticalCoverDays {
		errs = append(errs, fmt.Errorf("cover thresholds must satisfy 0 < critical (%v) <= risk (%v)", c.CriticalCoverDays, c.RiskCoverDays))
	}
	if c.LowConfidenceDays <= 0 || c.HighConfidenceDays < c.LowConfidenceDays {
		errs = append(errs, fmt.Errorf("confidence bounds must satisfy 0 < low (%d) <= high (%d)", c.LowConfidenceDays, c.HighConfidenceDays))
	}
	if c.MaterialChangeRatio < 0 {
		errs = append(errs, fmt.Errorf("material change ratio must not be negative, got %v", c.MaterialChangeRatio))
	}
	return errors.Join(errs...)
}
