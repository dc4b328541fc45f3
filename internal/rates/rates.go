// Package rates provides the local-currency/USD exchange rate: a manual override first,
// then the live API, then the last rate that was used.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/rs/zerolog"
)

// Provider is the contract the ledger and the aggregator depend on.
// Lookups fail soft: a network problem yields domain.ErrRateUnavailable, never a panic.
type Provider interface {
	CurrentRate(ctx context.Context) (float64, error)
	HistoricalRate(ctx context.Context, date civil.Date) (float64, error)
}

// Source names where the current rate came from.
type Source string

const (
	SourceManual    Source = "manual"
	SourceAPI       Source = "api"
	SourceLastKnown Source = "last_known"
	SourceNone      Source = "none"
)

// Info describes the current rate state.
type Info struct {
	Rate       float64 `json:"rate"`
	Source     Source  `json:"source"`
	Manual     bool    `json:"manual"`
	ManualRate float64 `json:"manualRate,omitempty"`
	LastAPI    float64 `json:"lastApi,omitempty"`
}

// Options configures a Service.
type Options struct {
	CurrentURL    string
	HistoricalURL string
	Timeout       time.Duration
	LookbackDays  int
	// Currency is the key read from the current-rate payload's "rates" object.
	Currency string
}

// Service is the production Provider.
type Service struct {
	client *http.Client
	opts   Options
	cache  Cache
	log    zerolog.Logger

	mu      sync.Mutex
	manual  float64
	lastAPI float64
}

// NewService creates a Service. A nil cache means an in-process MemoryCache.
func NewService(opts Options, cache Cache, log zerolog.Logger) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 5
	}
	if opts.Currency == "" {
		opts.Currency = "VES"
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Service{
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
		cache:  cache,
		log:    log.With().Str("component", "rates").Logger(),
	}
}

// SetManualOverride pins the rate until cleared. Non-positive rates are rejected.
func (s *Service) SetManualOverride(ctx context.Context, rate float64) error {
	if rate <= 0 {
		return fmt.Errorf("SetManualOverride: rate %v must be positive: %w", rate, domain.ErrInvalidInput)
	}
	s.mu.Lock()
	s.manual = rate
	s.mu.Unlock()

	s.remember(ctx, rate)
	s.log.Info().Float64("rate", rate).Msg("manual rate set")
	return nil
}

// ClearManualOverride returns to live lookups.
func (s *Service) ClearManualOverride() {
	s.mu.Lock()
	s.manual = 0
	s.mu.Unlock()
	s.log.Info().Msg("manual rate cleared")
}

// CurrentRate implements Provider.
func (s *Service) CurrentRate(ctx context.Context) (float64, error) {
	rate, _, err := s.current(ctx)
	return rate, err
}

func (s *Service) current(ctx context.Context) (float64, Source, error) {
	s.mu.Lock()
	manual := s.manual
	s.mu.Unlock()
	if manual > 0 {
		return manual, SourceManual, nil
	}

	rate, err := s.fetchCurrent(ctx)
	if err == nil {
		s.mu.Lock()
		s.lastAPI = rate
		s.mu.Unlock()
		s.remember(ctx, rate)
		return rate, SourceAPI, nil
	}
	s.log.Error().Err(err).Msg("live rate lookup failed")

	last, ok, cerr := s.cache.Get(ctx)
	if cerr != nil {
		s.log.Error().Err(cerr).Msg("reading last known rate")
	}
	if ok {
		s.log.Warn().Float64("rate", last).Msg("using last known rate")
		return last, SourceLastKnown, nil
	}
	return 0, SourceNone, fmt.Errorf("CurrentRate: %w", domain.ErrRateUnavailable)
}

// HistoricalRate implements Provider. It walks back day by day, since weekends and
// holidays have no published rate.
func (s *Service) HistoricalRate(ctx context.Context, date civil.Date) (float64, error) {
	for i := 0; i < s.opts.LookbackDays; i++ {
		day := date.AddDays(-i)
		rate, err := s.fetchHistorical(ctx, day)
		if err != nil {
			s.log.Error().Err(err).Str("date", day.String()).Msg("historical rate lookup failed")
			continue
		}
		if rate > 0 {
			s.log.Info().Float64("rate", rate).Str("date", day.String()).Str("requested", date.String()).Msg("historical rate found")
			return rate, nil
		}
	}
	s.log.Warn().Str("date", date.String()).Msg("no historical rate near date")
	return 0, fmt.Errorf("HistoricalRate: %s: %w", date, domain.ErrRateUnavailable)
}

// RateFor returns the historical rate for a back-dated entry and the current rate otherwise.
func (s *Service) RateFor(ctx context.Context, date *civil.Date) (float64, error) {
	if date != nil && date.Before(civil.DateOf(time.Now())) {
		return s.HistoricalRate(ctx, *date)
	}
	return s.CurrentRate(ctx)
}

// Info reports the current rate and where it came from.
func (s *Service) Info(ctx context.Context) Info {
	rate, src, _ := s.current(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		Rate:       rate,
		Source:     src,
		Manual:     s.manual > 0,
		ManualRate: s.manual,
		LastAPI:    s.lastAPI,
	}
}

func (s *Service) remember(ctx context.Context, rate float64) {
	if err := s.cache.Set(ctx, rate); err != nil {
		s.log.Error().Err(err).Msg("storing last known rate")
	}
}

type latestResponse struct {
	Rates map[string]float64 `json:"rates"`
}

func (s *Service) fetchCurrent(ctx context.Context) (float64, error) {
	var body latestResponse
	if err := s.getJSON(ctx, s.opts.CurrentURL, &body); err != nil {
		return 0, fmt.Errorf("fetchCurrent: %w", err)
	}
	rate := body.Rates[s.opts.Currency]
	if rate <= 0 {
		return 0, fmt.Errorf("fetchCurrent: no %s rate in response", s.opts.Currency)
	}
	return rate, nil
}

type historicalResponse struct {
	Rates []struct {
		USD flexFloat `json:"usd"`
	} `json:"rates"`
}

// flexFloat accepts both 36.5 and "36.5".
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("flexFloat: %w", err)
	}
	*f = flexFloat(v)
	return nil
}

func (s *Service) fetchHistorical(ctx context.Context, day civil.Date) (float64, error) {
	u, err := url.Parse(s.opts.HistoricalURL)
	if err != nil {
		return 0, fmt.Errorf("fetchHistorical: parsing url: %w", err)
	}
	q := u.Query()
	q.Set("from", day.String())
	q.Set("to", day.String())
	u.RawQuery = q.Encode()

	var body historicalResponse
	if err := s.getJSON(ctx, u.String(), &body); err != nil {
		return 0, fmt.Errorf("fetchHistorical: %w", err)
	}
	if len(body.Rates) == 0 {
		return 0, nil
	}
	return float64(body.Rates[0].USD), nil
}

func (s *Service) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("requesting %s: status %d", req.URL.Host, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Fixed is a Provider with a constant rate, for tools that take the rate on the command line.
type Fixed float64

// CurrentRate implements Provider.
func (f Fixed) CurrentRate(ctx context.Context) (float64, error) {
	if f <= 0 {
		return 0, fmt.Errorf("Fixed: %w", domain.ErrRateUnavailable)
	}
	return float64(f), nil
}

// HistoricalRate implements Provider.
func (f Fixed) HistoricalRate(ctx context.Context, date civil.Date) (float64, error) {
	return f.CurrentRate(ctx)
}

var (
	_ Provider = (*Service)(nil)
	_ Provider = Fixed(0)
)
