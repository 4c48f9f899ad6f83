package finality

// Level is the ordered finality of a tracked block.
type Level uint8

const (
	None Level = iota
	Soft
	Medium
	Hard
)

func (l Level) String() string {
	switch l {
	case None:
		return "none"
	case Soft:
		return "soft"
	case Medium:
		return "medium"
	case Hard:
		return "hard"
	}
	return "unknown"
}
