package eigen

// DefaultConfig returns the per-class default parameter ranges an eigen
// starts from; a purchase may override individual fields within bounds.
func DefaultConfig(class Class) Config {
	cfg := Config{
		TradeFrequencyPerHour: 6,
		OrderSize: OrderSizeRange{
			Min: "1000000000000000",  // 0.001
			Max: "10000000000000000", // 0.01
		},
		OrderSizePct:       PercentRange{Min: 1, Max: 5},
		SpreadWidthBps:     100,
		ProfitTargetBps:    1500,
		StopLossBps:        3000,
		RebalanceThreshold: 0.7,
		WalletCount:        3,
		SlippageBps:        300,
		ReactiveSellPct:    25,
	}

	switch class {
	case ClassLite:
		cfg.TradeFrequencyPerHour = 2
		cfg.WalletCount = 1
	case ClassCore:
		// baseline above
	case ClassPro:
		cfg.TradeFrequencyPerHour = 12
		cfg.WalletCount = 5
		cfg.OrderSize.Max = "50000000000000000" // 0.05
		cfg.OrderSizePct = PercentRange{Min: 2, Max: 8}
	case ClassUltra:
		cfg.TradeFrequencyPerHour = 30
		cfg.WalletCount = 10
		cfg.OrderSize.Max = "200000000000000000" // 0.2
		cfg.OrderSizePct = PercentRange{Min: 2, Max: 10}
		cfg.ReactiveSellMode = true
	}
	return cfg
}

// FeeRateBps is the platform fee per class, accrued against trade volume.
func FeeRateBps(class Class) int {
	switch class {
	case ClassLite:
		return 100
	case ClassCore:
		return 80
	case ClassPro:
		return 60
	case ClassUltra:
		return 40
	default:
		return 100
	}
}
