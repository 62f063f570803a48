package retrypolicy

import "math/rand"

func randFloat() float64 {
	return rand.Float64()
}
