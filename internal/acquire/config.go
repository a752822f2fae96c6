package acquire

import (
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"

	"github.com/sells-group/qualify-cli/internal/model"
)

// Backend kinds.
const (
	BackendApify  = "apify"
	BackendReader = "reader"
)

// Apify actors.
const (
	ActorProfileScraper = "apify/instagram-profile-scraper"
	ActorDetailsScraper = "apify/instagram-scraper"
)

// ScraperConfig describes one backend attempt.
type ScraperConfig struct {
	Name       string        `validate:"required"`
	Backend    string        `validate:"oneof=apify reader"`
	Actor      string        `validate:"required_if=Backend apify"`
	Timeout    time.Duration `validate:"gt=0"`
	Retries    int           `validate:"min=0,max=5"`
	RetryDelay time.Duration `validate:"min=0"`
	Priority   int
	PostLimit  int           `validate:"min=0"`
	// Input builds the actor input for a subject. Unused by the reader.
	Input func(subject string, postLimit int) map[string]any
}

func profileScraperInput(subject string, postLimit int) map[string]any {
	return map[string]any{
		"usernames":    []string{subject},
		"resultsLimit": postLimit,
	}
}

func detailsScraperInput(subject string, postLimit int) map[string]any {
	return map[string]any{
		"directUrls":    []string{model.ProfileURL(subject)},
		"resultsType":   "details",
		"resultsLimit":  postLimit,
		"addParentData": false,
	}
}

// DefaultScraperConfigs returns the ordered backends per depth. Deep and
// extended lists hold only structured backends; their shallow fallback is
// the light list.
func DefaultScraperConfigs() map[model.Depth][]ScraperConfig {
	return map[model.Depth][]ScraperConfig{
		model.DepthLight: {
			{
				Name: "apify-profile", Backend: BackendApify, Actor: ActorProfileScraper,
				Timeout: 45 * time.Second, Retries: 2, RetryDelay: 2 * time.Second,
				Priority: 1, Input: profileScraperInput,
			},
			{
				Name: "reader", Backend: BackendReader,
				Timeout: 30 * time.Second, Retries: 1, RetryDelay: time.Second,
				Priority: 2,
			},
		},
		model.DepthDeep: {
			{
				Name: "apify-profile", Backend: BackendApify, Actor: ActorProfileScraper,
				Timeout: 90 * time.Second, Retries: 2, RetryDelay: 3 * time.Second,
				Priority: 1, PostLimit: 12, Input: profileScraperInput,
			},
			{
				Name: "apify-details", Backend: BackendApify, Actor: ActorDetailsScraper,
				Timeout: 120 * time.Second, Retries: 1, RetryDelay: 5 * time.Second,
				Priority: 2, PostLimit: 12, Input: detailsScraperInput,
			},
		},
		model.DepthExtended: {
			{
				Name: "apify-profile", Backend: BackendApify, Actor: ActorProfileScraper,
				Timeout: 180 * time.Second, Retries: 2, RetryDelay: 5 * time.Second,
				Priority: 1, PostLimit: 50, Input: profileScraperInput,
			},
			{
				Name: "apify-details", Backend: BackendApify, Actor: ActorDetailsScraper,
				Timeout: 240 * time.Second, Retries: 1, RetryDelay: 5 * time.Second,
				Priority: 2, PostLimit: 50, Input: detailsScraperInput,
			},
		},
	}
}

// DefaultTTLs scale with depth: richer data is kept longer.
func DefaultTTLs() map[model.Depth]time.Duration {
	return map[model.Depth]time.Duration{
		model.DepthLight:    12 * time.Hour,
		model.DepthDeep:     24 * time.Hour,
		model.DepthExtended: 48 * time.Hour,
	}
}

// validateConfigs checks every config and returns the lists sorted by
// priority.
func validateConfigs(in map[model.Depth][]ScraperConfig) (map[model.Depth][]ScraperConfig, error) {
	v := validator.New()
	out := make(map[model.Depth][]ScraperConfig, len(in))
	for _, d := range []model.Depth{model.DepthLight, model.DepthDeep, model.DepthExtended} {
		list := in[d]
		if len(list) == 0 {
			return nil, eris.Errorf("acquire: no scraper configs for depth %s", d)
		}
		sorted := make([]ScraperConfig, len(list))
		copy(sorted, list)
		for _, c := range sorted {
			if err := v.Struct(c); err != nil {
				return nil, eris.Wrapf(err, "acquire: invalid scraper config %q", c.Name)
			}
			if c.Backend == BackendApify && c.Input == nil {
				return nil, eris.Errorf("acquire: scraper config %q has no input builder", c.Name)
			}
		}
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })
		out[d] = sorted
	}
	return out, nil
}
