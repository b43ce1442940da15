package main

import "math/rand/v2"

func ShuffleInPlace[T any](input []T) {
	for i := len(input) - 1; i > 0; i-- {
		j := rand.IntN(i + 1)
		input[i], input[j] = input[j], input[i]
	}
}
