package chat

// Direction is the reading direction of a message.
type Direction string

const (
	LTR Direction = "ltr"
	RTL Direction = "rtl"
)

// DirectionOf returns RTL when text contains any rune from the Hebrew through
// Arabic Extended blocks.
func DirectionOf(text string) Direction {
	for _, r := range text {
		if r >= 0x0590 && r <= 0x08FF {
			return RTL
		}
	}
	return LTR
}
