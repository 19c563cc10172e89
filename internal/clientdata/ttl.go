package clientdata

import "time"

// TTL constants for different data types.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// Quotes back the periodic valuation refresh.
	TTLQuote = 10 * time.Minute

	// Live currency conversion rates.
	TTLExchangeRate = time.Hour
)
