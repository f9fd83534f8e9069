package util

// Unwrap returns innermost underlying error of stack wrapped error chain.
func Unwrap(err error) error {
	type hasUnderlying interface {
		Underlying() error
	}
	for {
		eh, ok := err.(hasUnderlying)
		if !ok || eh.Underlying() == nil {
			return err
		}
		err = eh.Underlying()
	}
}
