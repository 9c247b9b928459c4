package tokens

// Default budget reservations. MaxPerTurn bounds context plus response;
// the system and response reserves are subtracted before any context is
// admitted.
const (
	DefaultMaxTokensPerTurn = 4000
	DefaultSystemReserve    = 200
	DefaultResponseReserve  = 1000
)

// Budget tracks the per-turn token allowance. The context budget is what
// remains after reserving room for the system prompt and the response.
type Budget struct {
	// MaxTokensPerTurn is the hard ceiling for context + response.
	MaxTokensPerTurn int

	// SystemReserve is the reservation used when the actual system
	// prompt cost is unknown.
	SystemReserve int

	// ResponseReserve is the room kept for the generated response.
	ResponseReserve int
}

// DefaultBudget returns a Budget with the default reservations.
func DefaultBudget() Budget {
	return Budget{
		MaxTokensPerTurn: DefaultMaxTokensPerTurn,
		SystemReserve:    DefaultSystemReserve,
		ResponseReserve:  DefaultResponseReserve,
	}
}

// ApplyDefaults fills zero values with defaults.
func (b *Budget) ApplyDefaults() {
	if b.MaxTokensPerTurn == 0 {
		b.MaxTokensPerTurn = DefaultMaxTokensPerTurn
	}
	if b.SystemReserve == 0 {
		b.SystemReserve = DefaultSystemReserve
	}
	if b.ResponseReserve == 0 {
		b.ResponseReserve = DefaultResponseReserve
	}
}

// Available returns the token allowance left for context after the given
// system prompt cost and response reservation. Zero arguments fall back
// to the configured reserves.
func (b Budget) Available(systemTokens, responseTokens int) int {
	if systemTokens == 0 {
		systemTokens = b.SystemReserve
	}
	if responseTokens == 0 {
		responseTokens = b.ResponseReserve
	}
	return b.MaxTokensPerTurn - systemTokens - responseTokens
}
