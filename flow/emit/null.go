package emit

// NullHandler discards every event. Useful as a placeholder subscriber
// in tests that only care about Subscribe/Unsubscribe bookkeeping.
func NullHandler(Event) {}
