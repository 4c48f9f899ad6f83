package faults

import "errors"

func is(err error, k Kind) bool {
	return err != nil && errors.Is(err, k)
}
