package clientdata

import "time"

// TTL constants for different data types.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// Very stable data (rarely changes)
	TTLTicker = 30 * 24 * time.Hour // 30 days - ISIN-to-ticker resolutions rarely change

	// Daily data
	TTLHistoricalPrice = 7 * 24 * time.Hour // 7 days - Daily closes never change once printed

	// Short-lived data (changes frequently)
	TTLExchangeRate = time.Hour        // 1 hour - Currency exchange rates
	TTLCurrentPrice = 10 * time.Minute // 10 minutes - Current price cache for batch operations
)
