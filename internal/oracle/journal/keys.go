package journal

const (
	keyLastCycle = "meta:last_cycle"
	prefixResult = "result:"
	prefixCycle  = "cycle:"
)

func KeyLastCycle() []byte { return []byte(keyLastCycle) }

// KeyResult is keyed by the lower-case address so both address forms hit one row.
func KeyResult(lower string) []byte { return []byte(prefixResult + lower) }

func KeyCycle(id string) []byte { return []byte(prefixCycle + id) }
