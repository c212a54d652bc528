package services

import "github.com/food-passport/api/internal/domain"

const (
	// RankNone is the rank of a passport with no entries.
	RankNone = "Ẩm thực sơ khai"
	// RankBeyond names the open-ended milestone after the last rank.
	RankBeyond = "Thần Ăn"
)

var rankTable = []struct {
	threshold int
	name      string
}{
	{1, "Khách vãng lai"},
	{5, "Nhà săn vị"},
	{10, "Kẻ phiêu lưu"},
	{20, "Xuyên Việt"},
	{30, "Đại sứ ẩm thực"},
}

// RankFor returns the rank earned by count check-ins.
func RankFor(count int) string {
	rank := RankNone
	for _, step := range rankTable {
		if count >= step.threshold {
			rank = step.name
		}
	}
	return rank
}

// NextRankFor returns the first milestone above count. Past the last threshold the target is the
// count itself.
func NextRankFor(count int) domain.NextRank {
	for _, step := range rankTable {
		if step.threshold > count {
			return domain.NextRank{Name: step.name, Target: step.threshold}
		}
	}
	return domain.NextRank{Name: RankBeyond, Target: count}
}
