// Command seed loads the bundled food catalog into Firestore. Existing entries are left untouched.
package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/food-passport/api/internal/platform/config"
	pfirestore "github.com/food-passport/api/internal/platform/firestore"
	"github.com/food-passport/api/internal/platform/observability"
	firestoreRepo "github.com/food-passport/api/internal/repositories/firestore"
	"github.com/food-passport/api/internal/services"
)

//go:embed foods.json
var bundledCatalog []byte

type catalogEntry struct {
	Key                string `json:"key"`
	DisplayName        string `json:"displayName"`
	RegionName         string `json:"regionName"`
	Story              string `json:"story"`
	EatingInstructions string `json:"eatingInstructions"`
	ImageURL           string `json:"imageUrl"`
}

type seedReport struct {
	Created int
	Skipped int
}

func main() {
	env, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	project := flag.String("project", firstNonEmpty(env["API_FIRESTORE_PROJECT_ID"], env["API_FIREBASE_PROJECT_ID"]), "Firestore project id")
	emulator := flag.String("emulator", env["API_FIRESTORE_EMULATOR_HOST"], "Firestore emulator host")
	file := flag.String("file", "", "catalog JSON file; defaults to the bundled catalog")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall deadline")
	flag.Parse()

	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.Named("seed")

	if strings.TrimSpace(*project) == "" {
		logger.Fatal("firestore project is required (flag -project or API_FIRESTORE_PROJECT_ID)")
	}

	data := bundledCatalog
	if *file != "" {
		data, err = os.ReadFile(*file)
		if err != nil {
			logger.Fatal("failed to read catalog file", zap.String("file", *file), zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	provider := pfirestore.NewProvider(config.FirestoreConfig{ProjectID: *project, EmulatorHost: *emulator})
	defer func() {
		if err := provider.Close(context.Background()); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	registry, err := services.NewFoodRegistry(services.FoodRegistryDeps{Foods: firestoreRepo.NewFoodRepository(provider)})
	if err != nil {
		logger.Fatal("failed to build food registry", zap.Error(err))
	}

	report, err := seedCatalog(ctx, registry, data, logger)
	if err != nil {
		logger.Fatal("seeding failed", zap.Error(err), zap.Int("created", report.Created))
	}
	logger.Info("catalog seeded", zap.Int("created", report.Created), zap.Int("skipped", report.Skipped))
}

// seedCatalog creates every entry in data. Entries whose key already exists count as skipped.
func seedCatalog(ctx context.Context, registry services.FoodRegistry, data []byte, logger *zap.Logger) (seedReport, error) {
	var entries []catalogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return seedReport{}, fmt.Errorf("decode catalog: %w", err)
	}

	var report seedReport
	for _, entry := range entries {
		_, err := registry.Create(ctx, services.FoodRecord{
			Key:                entry.Key,
			DisplayName:        entry.DisplayName,
			RegionName:         entry.RegionName,
			Story:              entry.Story,
			EatingInstructions: entry.EatingInstructions,
			ImageURL:           entry.ImageURL,
		})
		switch {
		case err == nil:
			report.Created++
		case errors.Is(err, services.ErrFoodConflict):
			report.Skipped++
			logger.Debug("food already present", zap.String("key", entry.Key))
		default:
			return report, fmt.Errorf("create %q: %w", entry.Key, err)
		}
	}
	return report, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
