package services

import (
	"github.com/food-passport/api/internal/domain"
	"github.com/food-passport/api/internal/platform/textutil"
)

var (
	northernProvinces = []string{
		"Hà Nội", "Hải Phòng", "Quảng Ninh", "Bắc Ninh", "Bắc Giang", "Hải Dương", "Hưng Yên",
		"Thái Bình", "Nam Định", "Ninh Bình", "Vĩnh Phúc", "Phú Thọ", "Hà Nam", "Thanh Hóa", "Nghệ An",
		"Hà Tĩnh", "Lào Cai", "Yên Bái", "Điện Biên", "Lai Châu", "Sơn La", "Hòa Bình", "Thái Nguyên",
		"Tuyên Quang", "Cao Bằng", "Bắc Kạn", "Lạng Sơn", "Hà Giang",
	}
	centralProvinces = []string{
		"Quảng Bình", "Quảng Trị", "Thừa Thiên Huế", "Đà Nẵng", "Quảng Nam", "Quảng Ngãi", "Bình Định",
		"Phú Yên", "Khánh Hòa", "Ninh Thuận", "Bình Thuận", "Kon Tum", "Gia Lai", "Đắk Lắk", "Đắk Nông",
		"Lâm Đồng",
	}
	// Both spellings of Ho Chi Minh City normalize to the same key.
	southernProvinces = []string{
		"Thành phố Hồ Chí Minh", "TP. Hồ Chí Minh", "Bà Rịa - Vũng Tàu", "Bình Dương", "Bình Phước",
		"Đồng Nai", "Tây Ninh", "An Giang", "Bạc Liêu", "Bến Tre", "Cà Mau", "Cần Thơ", "Đồng Tháp",
		"Hậu Giang", "Kiên Giang", "Long An", "Sóc Trăng", "Tiền Giang", "Trà Vinh", "Vĩnh Long",
	}
)

type achievementRule struct {
	id          string
	title       string
	description string
	earned      func(unlocked map[string]struct{}) bool
}

var achievementRules = []achievementRule{
	{"start", "Lữ khách khởi động", "Mở khóa tỉnh đầu tiên", atLeast(1)},
	{"foodie", "Nhà săn vị", "Mở 5 tỉnh bất kỳ", atLeast(5)},
	{"explorer", "Kẻ phiêu lưu", "Mở 10 tỉnh", atLeast(10)},
	{"vietnam-run", "Xuyên Việt", "Mở 15 tỉnh", atLeast(15)},
	{"north", "Tinh thông Bắc Bộ", "Thu thập đủ tỉnh Bắc Bộ", coversAll(northernProvinces)},
	{"central", "Tinh thông Trung Bộ", "Thu thập đủ tỉnh Trung Bộ & Tây Nguyên", coversAll(centralProvinces)},
	{"south", "Tinh thông Nam Bộ", "Thu thập đủ tỉnh Nam Bộ", coversAll(southernProvinces)},
	{"grandmaster", "Đại sứ ẩm thực", "Chạm mốc 20 tỉnh", atLeast(20)},
}

func atLeast(n int) func(map[string]struct{}) bool {
	return func(unlocked map[string]struct{}) bool { return len(unlocked) >= n }
}

func coversAll(group []string) func(map[string]struct{}) bool {
	return func(unlocked map[string]struct{}) bool {
		for _, name := range group {
			if _, ok := unlocked[textutil.NormalizeRegionName(name)]; !ok {
				return false
			}
		}
		return true
	}
}

// AchievementsFor evaluates every badge against the unlocked regions. Counts use distinct
// normalized names.
func AchievementsFor(unlockedRegions []string) []domain.Achievement {
	unlocked := make(map[string]struct{}, len(unlockedRegions))
	for _, region := range unlockedRegions {
		if key := textutil.NormalizeRegionName(region); key != "" {
			unlocked[key] = struct{}{}
		}
	}
	achievements := make([]domain.Achievement, 0, len(achievementRules))
	for _, rule := range achievementRules {
		achievements = append(achievements, domain.Achievement{
			ID:          rule.id,
			Title:       rule.title,
			Description: rule.description,
			Earned:      rule.earned(unlocked),
		})
	}
	return achievements
}
