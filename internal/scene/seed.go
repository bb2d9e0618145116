package scene

import (
	"encoding/binary"
	"math/rand/v2"
	"strconv"

	"github.com/zeebo/blake3"

	"scenegen/internal/task"
)

// sampleRNG returns the generator for one sample and the seed recorded in
// its Spec. The stream depends only on (seed, index, kind), never on which
// worker or in what order samples run.
func sampleRNG(seed int64, index int, kind task.Kind) (*rand.Rand, uint64) {
	h := blake3.New()
	h.Write([]byte("scenegen/sample/v1\x00"))
	h.Write([]byte(strconv.FormatInt(seed, 10)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(index)))
	h.Write([]byte{0})
	h.Write([]byte(kind))

	sum := h.Sum(nil)

	s1 := binary.LittleEndian.Uint64(sum[0:8])
	s2 := binary.LittleEndian.Uint64(sum[8:16])
	return rand.New(rand.NewPCG(s1, s2)), s1
}

// pick selects n distinct entries of pool with a partial Fisher–Yates
// shuffle. pool is not modified.
func pick(rng *rand.Rand, pool []string, n int) []string {
	work := make([]string, len(pool))
	copy(work, pool)
	for i := 0; i < n; i++ {
		j := i + rng.IntN(len(work)-i)
		work[i], work[j] = work[j], work[i]
	}
	return work[:n]
}

// distinct drops repeated identifiers, keeping first occurrences.
func distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
