package scaling

type Decision int

const (
	NoAction Decision = iota
	ScaleUp
	ScaleDown
)

func (d Decision) String() string {
	switch d {
	case ScaleUp:
		return "scale_up"
	case ScaleDown:
		return "scale_down"
	default:
		return "no_action"
	}
}
