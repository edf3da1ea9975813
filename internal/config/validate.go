package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateMatching(); err != nil {
		return err
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateMatching() error {
	if c.Matching.Threshold < 50 || c.Matching.Threshold > 100 {
		return errors.New("matching.threshold must be between 50 and 100")
	}
	if c.Matching.RejectFloor < 0 || c.Matching.RejectFloor >= c.Matching.Threshold {
		return errors.New("matching.reject_floor must be non-negative and below matching.threshold")
	}
	if c.Matching.TxnCountDelta < 0 {
		return errors.New("matching.txn_count_delta must be >= 0")
	}
	if sum := c.Matching.Weights.Sum(); sum != 100 {
		return fmt.Errorf("matching.weights must sum to 100, got %d", sum)
	}
	for name, value := range map[string]int{
		"matching.weights.email_domain":      c.Matching.Weights.EmailDomain,
		"matching.weights.phone":             c.Matching.Weights.Phone,
		"matching.weights.address":           c.Matching.Weights.Address,
		"matching.weights.address_validated": c.Matching.Weights.AddressValidated,
		"matching.weights.tag_overlap":       c.Matching.Weights.TagOverlap,
		"matching.weights.txn_pattern":       c.Matching.Weights.TxnPattern,
		"matching.weights.created_proximity": c.Matching.Weights.CreatedProximity,
		"matching.weights.name_kind":         c.Matching.Weights.NameKind,
	} {
		if value < 0 {
			return fmt.Errorf("%s must be >= 0", name)
		}
	}
	return nil
}

func (c *Config) validateWorkers() error {
	if c.Matching.ScanWorkers < 1 || c.Matching.ScanWorkers > 64 {
		return errors.New("matching.scan_workers must be between 1 and 64")
	}
	if c.Matching.MergeWorkers < 1 || c.Matching.MergeWorkers > 64 {
		return errors.New("matching.merge_workers must be between 1 and 64")
	}
	return nil
}
