package sim

// Counter accumulates seeded activity for the end-of-run report.
type Counter struct {
	Purchases     int
	TokensBought  int64
	RevenueEvents int
	RevenueMicro  int64
	Proposals     int
	Votes         int
}

func (c *Counter) AddPurchase(p Purchase) {
	c.Purchases++
	c.TokensBought += p.Amount
}

func (c *Counter) AddRevenue(micro int64) {
	c.RevenueEvents++
	c.RevenueMicro += micro
}

// RevenueMajor converts the accumulated micro-units to major units for
// human-readable output.
func (c Counter) RevenueMajor() float64 {
	return float64(c.RevenueMicro) / 1_000_000
}
