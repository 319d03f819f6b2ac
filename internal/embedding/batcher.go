package embedding

import "sort"

const (
	// MaxBatchSize caps how many texts go to the model server per request.
	MaxBatchSize = 50
	// MaxWasteRatio caps the padding waste tolerated when growing a batch.
	MaxWasteRatio = 0.10
)

// batchItem keeps a text together with its position in the caller's input
// so results can be reassembled in the original order.
type batchItem struct {
	index int
	text  string
}

// packBatches sorts texts by length descending and packs them greedily.
// A batch is cut when it would exceed MaxBatchSize or when adding the next
// text would push the padding waste ratio past MaxWasteRatio. Because the
// first item of a batch is its longest, the waste of adding an item is
// (maxLen*(n+1) - sum) / (maxLen*(n+1)).
func packBatches(texts []string) [][]batchItem {
	if len(texts) == 0 {
		return nil
	}

	items := make([]batchItem, len(texts))
	for i, t := range texts {
		items[i] = batchItem{index: i, text: t}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return len(items[i].text) > len(items[j].text)
	})

	var batches [][]batchItem
	var current []batchItem
	maxLen := 0
	sumLen := 0

	for _, it := range items {
		if len(current) == 0 {
			current = []batchItem{it}
			maxLen = len(it.text)
			sumLen = len(it.text)
			continue
		}

		next := len(current) + 1
		waste := 0.0
		if maxLen > 0 {
			waste = float64(maxLen*next-(sumLen+len(it.text))) / float64(maxLen*next)
		}

		if next > MaxBatchSize || waste > MaxWasteRatio {
			batches = append(batches, current)
			current = []batchItem{it}
			maxLen = len(it.text)
			sumLen = len(it.text)
			continue
		}

		current = append(current, it)
		sumLen += len(it.text)
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}

	return batches
}
