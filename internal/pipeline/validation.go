package pipeline

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dvloznov/just-save/internal/domain"
)

// decodeAnalysis decodes the analysis object. payload is the sanitized JSON;
// stripped is the fence-stripped response, used to salvage the subscriptions
// and categories when the response was cut inside the insights block.
func decodeAnalysis(payload, stripped string) (analysisResponse, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &obj); err != nil {
		salvaged, ok := salvageBeforeInsights(stripped)
		if !ok {
			return analysisResponse{}, fmt.Errorf("decodeAnalysis: unmarshal JSON: %v: %w", err, domain.ErrNoJSONFound)
		}
		obj = salvaged
	}

	var resp analysisResponse

	if subs, ok := obj["subscriptions"].([]interface{}); ok {
		for _, item := range subs {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			cand, err := subscriptionFromObject(m)
			if err != nil {
				continue
			}
			resp.Subscriptions = append(resp.Subscriptions, cand)
		}
	}

	if cats, ok := obj["categories"].([]interface{}); ok {
		for _, item := range cats {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			label, err := getStringField(m, "category", true)
			if err != nil {
				continue
			}
			resp.Categories = append(resp.Categories, CategoryAssignment{
				Category: label,
				Indices:  parseIndices(m["transactionIndices"]),
			})
		}
	}

	resp.Insights, resp.InsightsErr = decodeInsights(obj)

	return resp, nil
}

// salvageBeforeInsights re-parses text with everything from the "insights"
// key onwards removed. It only helps when insights is the last key, which is
// the order the prompt asks for.
func salvageBeforeInsights(text string) (map[string]interface{}, bool) {
	idx := strings.LastIndex(text, `"insights"`)
	start := strings.Index(text, "{")
	if idx < 0 || start < 0 || start > idx {
		return nil, false
	}

	head := strings.TrimRight(text[start:idx], " \t\r\n,") + "}"

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(head), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func subscriptionFromObject(m map[string]interface{}) (SubscriptionCandidate, error) {
	name, err := getOptionalStringField(m, "name")
	if err != nil {
		return SubscriptionCandidate{}, err
	}
	freq, err := getOptionalStringField(m, "frequency")
	if err != nil {
		freq = nil
	}
	conf, err := getOptionalStringField(m, "confidence")
	if err != nil {
		conf = nil
	}
	amount, err := getOptionalFloat64Field(m, "amount")
	if err != nil {
		amount = nil
	}

	cand := SubscriptionCandidate{
		Amount:  amount,
		Indices: parseIndices(m["transactionIndices"]),
	}
	if name != nil {
		cand.Name = *name
	}
	if freq != nil {
		cand.Frequency = strings.ToLower(*freq)
	}
	if conf != nil {
		cand.Confidence = strings.ToLower(*conf)
	}
	return cand, nil
}

// decodeInsights returns the insights block, or the defaults together with
// ErrMalformedInsights when it is missing or unusable.
func decodeInsights(obj map[string]interface{}) (domain.Insights, error) {
	v, ok := obj["insights"]
	if !ok || v == nil {
		return domain.DefaultInsights(), fmt.Errorf("decodeInsights: missing: %w", domain.ErrMalformedInsights)
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return domain.DefaultInsights(), fmt.Errorf("decodeInsights: insights is %T, want object: %w", v, domain.ErrMalformedInsights)
	}

	overview, err := getStringField(m, "overview", true)
	if err != nil {
		return domain.DefaultInsights(), fmt.Errorf("decodeInsights: %v: %w", err, domain.ErrMalformedInsights)
	}
	insight, _ := getOptionalStringField(m, "insight")
	recommendation, _ := getOptionalStringField(m, "recommendation")

	out := domain.Insights{Overview: strings.TrimSpace(overview)}
	if insight != nil {
		out.Insight = *insight
	}
	if recommendation != nil {
		out.Recommendation = *recommendation
	}
	return out, nil
}

// parseIndices keeps the positive whole numbers of a transactionIndices list.
// Numeric strings are accepted; anything else is dropped. Range checking is
// left to ResolveIndex.
func parseIndices(v interface{}) []int {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}

	out := make([]int, 0, len(list))
	for _, item := range list {
		var f float64
		switch val := item.(type) {
		case float64:
			f = val
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(val))
			if err != nil {
				continue
			}
			f = float64(n)
		default:
			continue
		}
		if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || f < 1 || f > math.MaxInt32 {
			continue
		}
		out = append(out, int(f))
	}
	return out
}
