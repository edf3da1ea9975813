package config

const (
	defaultDataDir       = "~/.local/share/coalesce"
	defaultLogDir        = "~/.local/share/coalesce/logs"
	defaultLogFormat     = "console"
	defaultLogLevel      = "info"
	defaultThreshold     = 90
	defaultRejectFloor   = 10
	defaultTxnCountDelta = 3
	defaultScanWorkers   = 4
	defaultMergeWorkers  = 2
)

// DefaultWeights is the documented confidence rubric. It sums to 100.
func DefaultWeights() Weights {
	return Weights{
		EmailDomain:      25,
		Phone:            20,
		Address:          16,
		AddressValidated: 4,
		TagOverlap:       10,
		TxnPattern:       10,
		CreatedProximity: 10,
		NameKind:         5,
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Matching: Matching{
			Threshold:     defaultThreshold,
			RejectFloor:   defaultRejectFloor,
			TxnCountDelta: defaultTxnCountDelta,
			ScanWorkers:   defaultScanWorkers,
			MergeWorkers:  defaultMergeWorkers,
			Weights:       DefaultWeights(),
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
