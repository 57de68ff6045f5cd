package features

import "gocv.io/x/gocv"

// DefaultRatio is Lowe's ratio-test threshold.
const DefaultRatio = 0.7

// RatioTest keeps the best candidate of each knn pair when it is clearly
// better than the runner-up. Pairs with fewer than two candidates are dropped.
func RatioTest(knn [][]gocv.DMatch, ratio float64) []gocv.DMatch {
	good := make([]gocv.DMatch, 0, len(knn))
	for _, candidates := range knn {
		if len(candidates) < 2 {
			continue
		}
		if candidates[0].Distance < ratio*candidates[1].Distance {
			good = append(good, candidates[0])
		}
	}
	return good
}

// SymmetricFilter keeps forward matches (query→train) confirmed by a backward
// match (train→query) pairing the same two keypoints.
func SymmetricFilter(forward, backward []gocv.DMatch) []gocv.DMatch {
	back := make(map[int]int, len(backward))
	for _, m := range backward {
		back[m.QueryIdx] = m.TrainIdx
	}

	kept := make([]gocv.DMatch, 0, len(forward))
	for _, m := range forward {
		if q, ok := back[m.TrainIdx]; ok && q == m.QueryIdx {
			kept = append(kept, m)
		}
	}
	return kept
}
