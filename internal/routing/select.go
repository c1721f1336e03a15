// Package routing decides which provider serves a request and walks the
// fallback chain when the choice fails.
package routing

// Provider names used throughout the gateway.
const (
	ProviderOpenAI      = "openai"
	ProviderDeepSeek    = "deepseek"
	ProviderHuggingFace = "huggingface"
)

// canonicalChain is the fallback order applied after the primary choice.
var canonicalChain = []string{ProviderOpenAI, ProviderDeepSeek, ProviderHuggingFace}

// Hints are the client-supplied routing inputs. All fields are optional.
type Hints struct {
	Task             string
	Budget           string
	LatencySensitive bool
	Override         string
}

// Decision is the routing outcome: the primary provider and a human-readable
// reason, surfaced verbatim by the routing preview endpoint.
type Decision struct {
	Provider string
	Reason   string
}

// Select is a pure function from hints to a primary provider. First match
// wins; the order here is a client-visible contract.
func Select(h Hints) Decision {
	switch {
	case h.Override != "":
		return Decision{h.Override, "explicit provider override"}
	case h.Task == "summarization":
		return Decision{ProviderDeepSeek, "summarization routes to deepseek for cost efficiency"}
	case h.Task == "reasoning":
		return Decision{ProviderHuggingFace, "reasoning routes to huggingface open models"}
	case h.LatencySensitive:
		return Decision{ProviderOpenAI, "latency-sensitive requests route to openai"}
	case h.Budget == "low":
		return Decision{ProviderDeepSeek, "low budget routes to deepseek"}
	case h.Budget == "high":
		return Decision{ProviderOpenAI, "high budget routes to openai"}
	default:
		return Decision{ProviderOpenAI, "default provider"}
	}
}

// Chain builds the ordered provider list for one request: primary first, then
// the canonical chain with the primary removed, at most three entries.
func Chain(primary string) []string {
	chain := make([]string, 0, 3)
	chain = append(chain, primary)
	for _, p := range canonicalChain {
		if p == primary || len(chain) == 3 {
			continue
		}
		chain = append(chain, p)
	}
	return chain
}
