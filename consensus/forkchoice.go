package consensus

import (
	"bytes"

	"github.com/meridianchain/meridian/core"
)

// ChooseBestHead selects the canonical branch among candidates: the
// greatest block number, with ties broken by the lexicographically
// smallest hash. candidates must be non-empty.
func ChooseBestHead(candidates []core.ChainTip) core.ChainTip {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Height > best.Height {
			best = c
			continue
		}
		if c.Height == best.Height && bytes.Compare(c.Hash[:], best.Hash[:]) < 0 {
			best = c
		}
	}
	return best
}
