package bundle

import (
	"math/big"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/devlongs/sandwich-bot/pkg/types"
)

// Identity derives the dedup key of a victim set: the first 4 bytes of each
// hash, sorted, deduplicated and joined with "-". Order and repeats of the
// input do not matter.
func Identity(hashes []common.Hash) string {
	prefixes := mapset.NewThreadUnsafeSet[string]()
	for _, h := range hashes {
		prefixes.Add(hexutil.Encode(h[:4]))
	}
	ids := prefixes.ToSlice()
	sort.Strings(ids)
	return strings.Join(ids, "-")
}

// Assemble groups the optimized candidates targeting block into a bundle,
// most profitable first. It returns nil when none were optimized.
func Assemble(block *types.BlockContext, candidates []types.Candidate) *types.Bundle {
	var sandwiches []types.Candidate
	for _, c := range candidates {
		if c.Optimized != nil {
			sandwiches = append(sandwiches, c)
		}
	}
	if len(sandwiches) == 0 {
		return nil
	}
	sort.SliceStable(sandwiches, func(i, j int) bool {
		return sandwiches[i].Optimized.Revenue.Cmp(sandwiches[j].Optimized.Revenue) > 0
	})

	baseFee := block.NextBaseFee
	if baseFee == nil {
		baseFee = block.BaseFee
	}
	return &types.Bundle{
		TargetBlock: block.TargetBlock(),
		BaseFee:     new(big.Int).Set(baseFee),
		Sandwiches:  sandwiches,
	}
}
