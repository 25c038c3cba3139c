package sheetsync

import (
	"context"
	"strings"

	"bitbucket.org/mmdatafocus/shopops_backend/config"
	"bitbucket.org/mmdatafocus/shopops_backend/models"
	"bitbucket.org/mmdatafocus/shopops_backend/utils"
	"github.com/agnivade/levenshtein"
)

// Resolver turns raw product names into resolved identities, consulting the
// memo cache before the oracle and degrading to identity normalization when
// the oracle is unavailable or fails.
type Resolver struct {
	oracle NameOracle
}

func NewResolver() *Resolver {
	return &Resolver{oracle: newAnthropicOracle()}
}

func NewResolverWithOracle(oracle NameOracle) *Resolver {
	return &Resolver{oracle: oracle}
}

// FallbackIdentity is the zero-knowledge normalization: the raw name is its
// own canonical name, categorized as other. Used when the oracle is down,
// disabled, or silent about a name.
func FallbackIdentity(rawName string) models.ResolvedIdentity {
	trimmed := strings.TrimSpace(rawName)
	if trimmed == "" {
		return models.ResolvedIdentity{
			Name:           "Unknown Product",
			NameNormalized: "unknown product",
			Category:       models.ProductCategoryOther,
		}
	}
	return models.ResolvedIdentity{
		Name:           trimmed,
		NameNormalized: strings.ToLower(trimmed),
		Category:       models.ProductCategoryOther,
	}
}

func identityFromCache(cached *models.ProductNameCache) models.ResolvedIdentity {
	return models.ResolvedIdentity{
		Name:           cached.NormalizedName,
		NameNormalized: strings.ToLower(strings.TrimSpace(cached.NormalizedName)),
		Category:       cached.Category,
		Brand:          cached.Brand,
	}
}

func identityFromOracle(rawName string, result *OracleResult) models.ResolvedIdentity {
	name := strings.TrimSpace(result.Name)
	if name == "" {
		name = strings.TrimSpace(rawName)
	}
	var brand *string
	if result.Brand != nil && strings.TrimSpace(*result.Brand) != "" {
		b := strings.TrimSpace(*result.Brand)
		brand = &b
	}
	return models.ResolvedIdentity{
		Name:           name,
		NameNormalized: strings.ToLower(name),
		Category:       models.CoerceProductCategory(strings.TrimSpace(result.Category)),
		Brand:          brand,
	}
}

func (r *Resolver) cacheIdentity(ctx context.Context, rawName string, identity models.ResolvedIdentity) {
	err := models.SaveProductNameCache(ctx, &models.ProductNameCache{
		RawName:        rawName,
		NormalizedName: identity.Name,
		Category:       identity.Category,
		Brand:          identity.Brand,
	})
	if err != nil {
		config.LogError(config.GetLogger(), ModuleSheetSync, "cacheIdentity", rawName, nil, err)
	}
}

// ResolveName resolves a single raw name: cache, then oracle, then fallback.
// It never returns an error; a failed oracle call degrades to the fallback
// identity, which is deliberately NOT written to the cache so a later sync
// can retry the oracle.
func (r *Resolver) ResolveName(ctx context.Context, rawName string) models.ResolvedIdentity {
	logger := config.GetLogger()

	trimmed := strings.TrimSpace(rawName)
	if trimmed == "" {
		return FallbackIdentity(rawName)
	}

	cached, err := models.LookupProductNameCache(ctx, trimmed)
	if err != nil {
		config.LogError(logger, ModuleSheetSync, "ResolveName", "cache lookup", rawName, err)
	}
	if cached != nil {
		return identityFromCache(cached)
	}

	result, err := r.oracle.NormalizeOne(ctx, trimmed)
	if err != nil {
		if err != errOracleDisabled {
			config.LogError(logger, ModuleSheetSync, "ResolveName", "oracle call", rawName, err)
		}
		return FallbackIdentity(rawName)
	}

	identity := identityFromOracle(trimmed, result)
	r.cacheIdentity(ctx, trimmed, identity)
	return identity
}

// ResolveNames resolves a set of raw names, batching the cache misses into
// oracle calls of at most ORACLE_BATCH_SIZE names each. Keys of the returned
// map are the raw names as given.
func (r *Resolver) ResolveNames(ctx context.Context, rawNames []string) map[string]models.ResolvedIdentity {
	logger := config.GetLogger()
	resolved := make(map[string]models.ResolvedIdentity, len(rawNames))

	var uncached []string
	for _, rawName := range rawNames {
		trimmed := strings.TrimSpace(rawName)
		if trimmed == "" {
			continue
		}
		if _, done := resolved[rawName]; done {
			continue
		}

		cached, err := models.LookupProductNameCache(ctx, trimmed)
		if err != nil {
			config.LogError(logger, ModuleSheetSync, "ResolveNames", "cache lookup", rawName, err)
		}
		if cached != nil {
			resolved[rawName] = identityFromCache(cached)
			continue
		}
		uncached = append(uncached, rawName)
	}
	uncached = utils.UniqueSlice(uncached)

	batchSize := oracleBatchSize()
	for start := 0; start < len(uncached); start += batchSize {
		end := start + batchSize
		if end > len(uncached) {
			end = len(uncached)
		}
		batch := uncached[start:end]

		results, err := r.oracle.NormalizeBatch(ctx, batch)
		if err != nil && err != errOracleDisabled {
			config.LogError(logger, ModuleSheetSync, "ResolveNames", "oracle batch", batch, err)
		}

		matched := MatchOracleResults(batch, results)
		for _, rawName := range batch {
			result, ok := matched[rawName]
			if !ok {
				resolved[rawName] = FallbackIdentity(rawName)
				continue
			}
			identity := identityFromOracle(rawName, result)
			r.cacheIdentity(ctx, strings.TrimSpace(rawName), identity)
			resolved[rawName] = identity
		}
	}

	return resolved
}

// MatchOracleResults pairs batch answers back to their input names via the
// echoed "original" field. Exact case-insensitive matches bind first; the
// leftovers bind to the closest unmatched input within a small edit
// distance, tolerating the oracle lightly rewriting its echo.
func MatchOracleResults(rawNames []string, results []OracleResult) map[string]*OracleResult {
	matched := make(map[string]*OracleResult, len(results))
	taken := make(map[string]bool, len(rawNames))

	var leftovers []*OracleResult
	for index := range results {
		result := &results[index]
		echo := strings.ToLower(strings.TrimSpace(result.Original))
		bound := false
		for _, rawName := range rawNames {
			if taken[rawName] {
				continue
			}
			if strings.ToLower(strings.TrimSpace(rawName)) == echo {
				matched[rawName] = result
				taken[rawName] = true
				bound = true
				break
			}
		}
		if !bound {
			leftovers = append(leftovers, result)
		}
	}

	for _, result := range leftovers {
		echo := strings.ToLower(strings.TrimSpace(result.Original))
		if echo == "" {
			continue
		}
		bestDistance := echoMatchMaxDistance + 1
		bestName := ""
		for _, rawName := range rawNames {
			if taken[rawName] {
				continue
			}
			distance := levenshtein.ComputeDistance(strings.ToLower(strings.TrimSpace(rawName)), echo)
			if distance < bestDistance {
				bestDistance = distance
				bestName = rawName
			}
		}
		if bestName != "" {
			matched[bestName] = result
			taken[bestName] = true
		}
	}

	return matched
}

// Oracles occasionally normalize diacritics or whitespace in the echoed
// original; anything further off than this is treated as a different name.
const echoMatchMaxDistance = 3
