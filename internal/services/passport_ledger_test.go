package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/food-passport/api/internal/domain"
	"github.com/food-passport/api/internal/repositories"
	"github.com/food-passport/api/internal/repositories/memory"
)

type stubPublisher struct {
	mu     sync.Mutex
	events []CheckinEvent
	err    error
}

func (p *stubPublisher) PublishCheckin(_ context.Context, event CheckinEvent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return "msg-1", p.err
}

type stubInvalidator struct {
	mu       sync.Mutex
	prefixes []string
	err      error
}

func (s *stubInvalidator) Invalidate(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefixes = append(s.prefixes, prefix)
	return s.err
}

func (s *stubInvalidator) invalidated() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prefixes...)
}

type ledgerFixture struct {
	ledger    PassportLedger
	registry  *memory.Registry
	publisher *stubPublisher
	cache     *stubInvalidator
	logger    *recordingLogger
	now       time.Time
}

func newLedgerFixture(t *testing.T, users ...domain.User) *ledgerFixture {
	t.Helper()
	foods, reg := newTestRegistry(t, pho, bunBo, miQuang,
		domain.FoodRecord{Key: "cha_ca", DisplayName: "Chả cá Lã Vọng", RegionName: "Hà Nội", ImageURL: "https://img/cha_ca.jpg"},
	)
	for _, u := range users {
		if err := reg.Users().Insert(context.Background(), u); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	f := &ledgerFixture{
		registry:  reg,
		publisher: &stubPublisher{},
		cache:     &stubInvalidator{},
		logger:    &recordingLogger{},
		now:       time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC),
	}
	ledger, err := NewPassportLedger(PassportLedgerDeps{
		Users:     reg.Users(),
		Foods:     foods,
		Publisher: f.publisher,
		Cache:     f.cache,
		Logger:    f.logger,
		Clock:     func() time.Time { return f.now },
	})
	if err != nil {
		t.Fatalf("NewPassportLedger: %v", err)
	}
	f.ledger = ledger
	return f
}

func TestRankTable(t *testing.T) {
	cases := map[int]string{
		0:   RankNone,
		1:   "Khách vãng lai",
		4:   "Khách vãng lai",
		5:   "Nhà săn vị",
		9:   "Nhà săn vị",
		10:  "Kẻ phiêu lưu",
		19:  "Kẻ phiêu lưu",
		20:  "Xuyên Việt",
		29:  "Xuyên Việt",
		30:  "Đại sứ ẩm thực",
		120: "Đại sứ ẩm thực",
	}
	for count, want := range cases {
		if got := RankFor(count); got != want {
			t.Fatalf("RankFor(%d) = %q, want %q", count, got, want)
		}
	}
}

func TestRankIsMonotonic(t *testing.T) {
	order := map[string]int{RankNone: 0}
	for i, step := range rankTable {
		order[step.name] = i + 1
	}
	prev := 0
	for count := 0; count <= 50; count++ {
		level := order[RankFor(count)]
		if level < prev {
			t.Fatalf("rank decreased at count %d", count)
		}
		prev = level
	}
}

func TestNextRankFor(t *testing.T) {
	cases := []struct {
		count int
		want  domain.NextRank
	}{
		{0, domain.NextRank{Name: "Khách vãng lai", Target: 1}},
		{1, domain.NextRank{Name: "Nhà săn vị", Target: 5}},
		{19, domain.NextRank{Name: "Xuyên Việt", Target: 20}},
		{29, domain.NextRank{Name: "Đại sứ ẩm thực", Target: 30}},
		{30, domain.NextRank{Name: RankBeyond, Target: 30}},
		{42, domain.NextRank{Name: RankBeyond, Target: 42}},
	}
	for _, tc := range cases {
		if got := NextRankFor(tc.count); got != tc.want {
			t.Fatalf("NextRankFor(%d) = %+v, want %+v", tc.count, got, tc.want)
		}
	}
}

func TestCheckInUnlocksRegionOnceAcrossSpellings(t *testing.T) {
	f := newLedgerFixture(t, domain.User{ID: "u1", Username: "lan"})
	ctx := context.Background()

	first, err := f.ledger.CheckIn(ctx, CheckInCommand{UserID: "u1", FoodKey: "pho", RegionName: "Thành phố Hà Nội"})
	if err != nil {
		t.Fatalf("first checkin: %v", err)
	}
	if len(first.UnlockedRegions) != 1 || first.UnlockedRegions[0] != "Thành phố Hà Nội" {
		t.Fatalf("expected region stored as given, got %v", first.UnlockedRegions)
	}

	second, err := f.ledger.CheckIn(ctx, CheckInCommand{UserID: "u1", FoodKey: "cha_ca", RegionName: "Hà Nội"})
	if err != nil {
		t.Fatalf("second checkin: %v", err)
	}
	if len(second.UnlockedRegions) != 1 {
		t.Fatalf("expected region unlocked once, got %v", second.UnlockedRegions)
	}
	if second.Progress.Current != 2 || second.CurrentRank != "Khách vãng lai" {
		t.Fatalf("unexpected progression %+v", second.Progress)
	}

	if len(f.publisher.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(f.publisher.events))
	}
	if !f.publisher.events[0].NewRegion || f.publisher.events[1].NewRegion {
		t.Fatalf("unexpected new-region flags %+v", f.publisher.events)
	}
	if ev := f.publisher.events[1]; ev.Type != CheckinEventType || ev.EntryCount != 2 || ev.FoodKey != "cha_ca" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if prefixes := f.cache.invalidated(); len(prefixes) != 2 || prefixes[0] != snapshotCachePrefix {
		t.Fatalf("expected snapshot invalidation, got %v", prefixes)
	}
}

func TestCheckInDefaultsRegionToFood(t *testing.T) {
	f := newLedgerFixture(t, domain.User{ID: "u1"})
	progression, err := f.ledger.CheckIn(context.Background(), CheckInCommand{UserID: "u1", FoodKey: "MI_QUANG"})
	if err != nil {
		t.Fatalf("checkin: %v", err)
	}
	if len(progression.UnlockedRegions) != 1 || progression.UnlockedRegions[0] != "Quảng Nam" {
		t.Fatalf("expected food region unlocked, got %v", progression.UnlockedRegions)
	}
	if progression.Entries[0].FoodKey != "mi_quang" {
		t.Fatalf("expected canonical food key, got %s", progression.Entries[0].FoodKey)
	}
}

func TestCheckInErrors(t *testing.T) {
	f := newLedgerFixture(t, domain.User{ID: "u1"})
	ctx := context.Background()

	if _, err := f.ledger.CheckIn(ctx, CheckInCommand{UserID: "u1"}); !IsValidation(err) {
		t.Fatalf("expected validation error for missing food, got %v", err)
	}
	if _, err := f.ledger.CheckIn(ctx, CheckInCommand{UserID: "u1", FoodKey: "banh_xeo"}); !errors.Is(err, ErrFoodNotFound) {
		t.Fatalf("expected ErrFoodNotFound, got %v", err)
	}
	if _, err := f.ledger.CheckIn(ctx, CheckInCommand{UserID: "ghost", FoodKey: "pho"}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if len(f.publisher.events) != 0 {
		t.Fatalf("failed check-ins must not publish")
	}
}

type conflictingUsers struct {
	repositories.UserRepository
}

func (conflictingUsers) UpdatePassport(context.Context, string, repositories.PassportMutation) (domain.User, error) {
	return domain.User{}, repositories.NewConflictError("users.update_passport")
}

func TestCheckInConflictIsRetryable(t *testing.T) {
	foods, _ := newTestRegistry(t, pho)
	ledger, err := NewPassportLedger(PassportLedgerDeps{Users: conflictingUsers{}, Foods: foods})
	if err != nil {
		t.Fatalf("NewPassportLedger: %v", err)
	}
	if _, err := ledger.CheckIn(context.Background(), CheckInCommand{UserID: "u1", FoodKey: "pho"}); !errors.Is(err, ErrPassportConflict) {
		t.Fatalf("expected ErrPassportConflict, got %v", err)
	}
}

func TestCheckInSideEffectFailuresAreSwallowed(t *testing.T) {
	f := newLedgerFixture(t, domain.User{ID: "u1"})
	f.publisher.err = errors.New("pubsub down")
	f.cache.err = errors.New("redis down")

	if _, err := f.ledger.CheckIn(context.Background(), CheckInCommand{UserID: "u1", FoodKey: "pho"}); err != nil {
		t.Fatalf("checkin should succeed: %v", err)
	}
	if len(f.logger.lines) != 2 {
		t.Fatalf("expected two warnings, got %v", f.logger.lines)
	}
}

func TestConcurrentCheckInsAreSerialized(t *testing.T) {
	f := newLedgerFixture(t, domain.User{ID: "u1"})
	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.ledger.CheckIn(context.Background(), CheckInCommand{UserID: "u1", FoodKey: "pho"}); err != nil {
				t.Errorf("checkin: %v", err)
			}
		}()
	}
	wg.Wait()

	progression, err := f.ledger.GetPassport(context.Background(), "u1")
	if err != nil {
		t.Fatalf("get passport: %v", err)
	}
	if progression.Progress.Current != n || progression.CurrentRank != "Đại sứ ẩm thực" {
		t.Fatalf("expected %d entries at top rank, got %+v", n, progression.Progress)
	}
	if len(progression.UnlockedRegions) != 1 {
		t.Fatalf("expected a single region, got %v", progression.UnlockedRegions)
	}
	if got := len(f.cache.invalidated()); got != n {
		t.Fatalf("expected one invalidation per checkin, got %d", got)
	}
	f.publisher.mu.Lock()
	published := len(f.publisher.events)
	f.publisher.mu.Unlock()
	if published != n {
		t.Fatalf("expected one event per checkin, got %d", published)
	}
}

func TestGetPassportRecentFoods(t *testing.T) {
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	day := 24 * time.Hour
	user := domain.User{ID: "u1", Passport: []domain.PassportEntry{
		{FoodKey: "pho", CheckinAt: now.Add(-30 * day)},
		{FoodKey: "pho", CheckinAt: now.Add(-20 * day)},
		{FoodKey: "bun_bo_hue", CheckinAt: now.Add(-10 * day)},
		{FoodKey: "removed_dish", CheckinAt: now.Add(-8 * day)},
		{FoodKey: "cha_ca", CheckinAt: now.Add(-7 * day)},
		{FoodKey: "mi_quang", CheckinAt: now.Add(-2 * day), ImageURL: "https://img/mine.jpg"},
		{FoodKey: "pho", CheckinAt: now.Add(-time.Hour)},
	}}
	f := newLedgerFixture(t, user)

	progression, err := f.ledger.GetPassport(context.Background(), "u1")
	if err != nil {
		t.Fatalf("get passport: %v", err)
	}
	recent := progression.RecentFoods
	if len(recent) != 5 {
		t.Fatalf("expected 5 recent foods, got %d", len(recent))
	}
	wantKeys := []string{"pho", "mi_quang", "cha_ca", "removed_dish", "bun_bo_hue"}
	for i, key := range wantKeys {
		if recent[i].FoodKey != key {
			t.Fatalf("position %d: expected %s, got %s", i, key, recent[i].FoodKey)
		}
	}
	if recent[0].Name != "Phở" || recent[0].Location != "Hà Nội" || recent[0].Tag != recentFoodTag {
		t.Fatalf("unexpected newest item %+v", recent[0])
	}
	if recent[1].Image != "https://img/mine.jpg" {
		t.Fatalf("expected entry image, got %s", recent[1].Image)
	}
	if recent[2].Image != placeholderImage || recent[2].Tag != "" {
		t.Fatalf("entry exactly 7 days old should use placeholder and no tag: %+v", recent[2])
	}
	if recent[3].Name != unknownFoodName || recent[3].RegionName != "" {
		t.Fatalf("expected unknown fallback, got %+v", recent[3])
	}
	if progression.Progress.NextRank.Name != "Kẻ phiêu lưu" || progression.Progress.NextRank.Target != 10 {
		t.Fatalf("unexpected next rank %+v", progression.Progress.NextRank)
	}
	if progression.CurrentRank != "Nhà săn vị" {
		t.Fatalf("expected rank derived from count, got %s", progression.CurrentRank)
	}
}

func TestGetPassportEmptyUser(t *testing.T) {
	f := newLedgerFixture(t, domain.User{ID: "u1"})
	progression, err := f.ledger.GetPassport(context.Background(), "u1")
	if err != nil {
		t.Fatalf("get passport: %v", err)
	}
	if progression.CurrentRank != RankNone || progression.Entries == nil || progression.UnlockedRegions == nil {
		t.Fatalf("unexpected empty progression %+v", progression)
	}
	if len(progression.RecentFoods) != 0 || len(progression.Achievements) != len(achievementRules) {
		t.Fatalf("unexpected derived views %+v", progression)
	}
	if _, err := f.ledger.GetPassport(context.Background(), "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestAchievementsFor(t *testing.T) {
	earned := func(list []domain.Achievement) map[string]bool {
		out := map[string]bool{}
		for _, a := range list {
			out[a.ID] = a.Earned
		}
		return out
	}

	none := earned(AchievementsFor(nil))
	for id, ok := range none {
		if ok {
			t.Fatalf("achievement %s earned with no regions", id)
		}
	}

	dup := earned(AchievementsFor([]string{"Hà Nội", "Thành phố Hà Nội", "TP. Hà Nội"}))
	if !dup["start"] || dup["foodie"] {
		t.Fatalf("duplicate spellings should count once: %v", dup)
	}

	north := append([]string(nil), northernProvinces...)
	north[0] = "Thành phố Hà Nội"
	got := earned(AchievementsFor(north))
	if !got["north"] || !got["grandmaster"] || got["central"] || got["south"] {
		t.Fatalf("unexpected northern achievements %v", got)
	}

	south := earned(AchievementsFor([]string{
		"Hồ Chí Minh", "Bà Rịa - Vũng Tàu", "Bình Dương", "Bình Phước", "Đồng Nai", "Tây Ninh",
		"An Giang", "Bạc Liêu", "Bến Tre", "Cà Mau", "Cần Thơ", "Đồng Tháp", "Hậu Giang",
		"Kiên Giang", "Long An", "Sóc Trăng", "Tiền Giang", "Trà Vinh", "Vĩnh Long",
	}))
	if !south["south"] || !south["vietnam-run"] || south["grandmaster"] {
		t.Fatalf("unexpected southern achievements %v", south)
	}
}
