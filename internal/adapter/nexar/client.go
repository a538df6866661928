// Package nexar implements partsearch.Searcher against the Nexar GraphQL API.
package nexar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Strob0t/CircuitForge/internal/adapter/otel"
	"github.com/Strob0t/CircuitForge/internal/logger"
	"github.com/Strob0t/CircuitForge/internal/port/cache"
	"github.com/Strob0t/CircuitForge/internal/port/partsearch"
	"github.com/Strob0t/CircuitForge/internal/resilience"
)

const searchQuery = `query SearchMPN($que: String!) {
  supSearch(q: $que, start: 0, limit: 1) {
    results {
      part {
        mpn
        genericMpn
        manufacturer { name }
        shortDescription
        sellers(authorizedOnly: true) {
          company { name }
          offers {
            prices { quantity price }
            clickUrl
          }
        }
      }
    }
  }
}`

const cacheKeyPrefix = "parts:"

// Config configures a Client.
type Config struct {
	ClientID        string
	ClientSecret    string
	TokenURL        string
	GraphQLURL      string
	Timeout         time.Duration
	CacheTTL        time.Duration
	PreferredSeller string
}

// Client searches parts via Nexar. Lookups are cached and guarded by a
// circuit breaker.
type Client struct {
	cfg     Config
	http    *http.Client
	tokens  *tokenSource
	breaker *resilience.Breaker
	cache   cache.Cache
}

// New creates a Client. cache and breaker may be nil.
func New(cfg Config, c cache.Cache, breaker *resilience.Breaker) *Client {
	hc := &http.Client{Timeout: cfg.Timeout}
	return &Client{
		cfg:  cfg,
		http: hc,
		tokens: &tokenSource{
			clientID:     cfg.ClientID,
			clientSecret: cfg.ClientSecret,
			tokenURL:     cfg.TokenURL,
			httpClient:   hc,
			now:          time.Now,
		},
		breaker: breaker,
		cache:   c,
	}
}

// Search implements partsearch.Searcher.
func (c *Client) Search(ctx context.Context, query string) (_ *partsearch.PartInfo, err error) {
	query = strings.TrimSpace(query)
	key := cacheKeyPrefix + strings.ToLower(query)

	if c.cache != nil {
		if info, ok := cache.GetJSON[partsearch.PartInfo](ctx, c.cache, key); ok {
			return &info, nil
		}
	}

	ctx, span := otel.StartPartSearchSpan(ctx, query)
	defer func() { otel.EndSpan(span, err) }()

	var info *partsearch.PartInfo
	call := func(ctx context.Context) error {
		var callErr error
		info, callErr = c.search(ctx, query)
		return callErr
	}
	if c.breaker != nil {
		err = c.breaker.ExecuteContext(ctx, call)
	} else {
		err = call(ctx)
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, fmt.Errorf("%w: %w", partsearch.ErrUnavailable, err)
	}
	if err != nil {
		return nil, err
	}

	if c.cache != nil && c.cfg.CacheTTL > 0 {
		if setErr := cache.SetJSON(ctx, c.cache, key, info, c.cfg.CacheTTL); setErr != nil {
			slog.Warn("part search cache write failed", append(logger.Attrs(ctx), "error", setErr)...)
		}
	}
	return info, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type searchResponse struct {
	Data struct {
		SupSearch struct {
			Results []struct {
				Part part `json:"part"`
			} `json:"results"`
		} `json:"supSearch"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type part struct {
	MPN          string `json:"mpn"`
	GenericMPN   string `json:"genericMpn"`
	Manufacturer struct {
		Name string `json:"name"`
	} `json:"manufacturer"`
	ShortDescription string   `json:"shortDescription"`
	Sellers          []seller `json:"sellers"`
}

type seller struct {
	Company struct {
		Name string `json:"name"`
	} `json:"company"`
	Offers []struct {
		Prices []struct {
			Quantity int     `json:"quantity"`
			Price    float64 `json:"price"`
		} `json:"prices"`
		ClickURL string `json:"clickUrl"`
	} `json:"offers"`
}

func (c *Client) search(ctx context.Context, query string) (*partsearch.PartInfo, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(graphQLRequest{Query: searchQuery, Variables: map[string]any{"que": query}})
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.GraphQLURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("graphql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("token", token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graphql request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate()
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("graphql request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}
	if len(sr.Errors) > 0 {
		msgs := make([]string, len(sr.Errors))
		for i, e := range sr.Errors {
			msgs[i] = e.Message
		}
		return nil, fmt.Errorf("graphql: %s", strings.Join(msgs, "; "))
	}
	if len(sr.Data.SupSearch.Results) == 0 {
		return nil, partsearch.ErrNotFound
	}

	info := toPartInfo(sr.Data.SupSearch.Results[0].Part, c.cfg.PreferredSeller)
	info.Query = query
	return info, nil
}

// toPartInfo picks the preferred seller (substring match), else the first
// one, and takes the first price break of its first offer.
func toPartInfo(p part, preferred string) *partsearch.PartInfo {
	info := &partsearch.PartInfo{
		MPN:          p.MPN,
		GenericMPN:   p.GenericMPN,
		Manufacturer: p.Manufacturer.Name,
		Description:  p.ShortDescription,
	}
	if len(p.Sellers) == 0 {
		return info
	}

	chosen := p.Sellers[0]
	if preferred != "" {
		for _, s := range p.Sellers {
			if strings.Contains(s.Company.Name, preferred) {
				chosen = s
				break
			}
		}
	}

	info.Seller = chosen.Company.Name
	if len(chosen.Offers) > 0 {
		offer := chosen.Offers[0]
		info.Link = offer.ClickURL
		if len(offer.Prices) > 0 {
			info.Price = offer.Prices[0].Price
		}
	}
	return info
}
